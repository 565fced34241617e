package agent

import (
	"fmt"
	"strings"
)

// Turn is one entry in a conversation: a speaker tag and its text.
type Turn struct {
	Speaker string // "user", "assistant", "observation"
	Text    string
}

// ConversationContext is an ordered, append-only record of turns. Only the
// trailing window is rendered into prompts; the full history stays in
// memory for the session's lifetime.
type ConversationContext struct {
	turns  []Turn
	window int
}

// NewConversationContext creates a context rendering the last window turns.
func NewConversationContext(window int) *ConversationContext {
	if window <= 0 {
		window = 8
	}
	return &ConversationContext{window: window}
}

// Append adds a turn.
func (c *ConversationContext) Append(speaker, text string) {
	c.turns = append(c.turns, Turn{Speaker: speaker, Text: text})
}

// Len returns the total number of turns recorded.
func (c *ConversationContext) Len() int { return len(c.turns) }

// Render formats the trailing window for inclusion in a prompt.
func (c *ConversationContext) Render() string {
	start := 0
	if len(c.turns) > c.window {
		start = len(c.turns) - c.window
	}

	var sb strings.Builder
	for _, turn := range c.turns[start:] {
		switch turn.Speaker {
		case "observation":
			sb.WriteString("Observation: " + turn.Text + "\n")
		default:
			sb.WriteString(fmt.Sprintf("%s: %s\n", capitalize(turn.Speaker), turn.Text))
		}
	}
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
