// Package agent runs the bounded reasoning loop: the model thinks, may
// request one action per turn, sees the result as an observation, and must
// land on a final answer within the turn budget.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/InfamousPlatypus/Lucenta/internal/logging"
	"github.com/InfamousPlatypus/Lucenta/internal/memory"
	"github.com/InfamousPlatypus/Lucenta/internal/router"
	"github.com/InfamousPlatypus/Lucenta/internal/scheduler"
	"github.com/InfamousPlatypus/Lucenta/internal/tools"
)

// DefaultMaxTurns bounds the reasoning loop.
const DefaultMaxTurns = 6

// StepEvent types reported through the step callback.
const (
	EventThinking    = "thinking"
	EventAction      = "action"
	EventObservation = "observation"
	EventComplete    = "complete"
	EventError       = "error"
)

// StepEvent is one progress notification from the loop.
type StepEvent struct {
	Type    string
	Turn    int
	Message string
	Action  string
	Output  string
	Err     error
}

// StepCallback receives progress events. May be nil.
type StepCallback func(StepEvent)

// MemoryStore is the slice of the note store the loop needs.
type MemoryStore interface {
	Remember(content string) (*memory.Note, error)
	Recall(query string, limit int) ([]*memory.Note, error)
}

// TaskScheduler is the slice of the scheduler the loop needs.
type TaskScheduler interface {
	Schedule(description string, runAt time.Time) (*scheduler.Task, error)
}

// Result is the outcome of one loop run.
type Result struct {
	Answer      string
	Turns       int
	ActionsUsed []string
	Completed   bool
}

// Loop is the reasoning loop.
type Loop struct {
	gen       router.Generator
	registry  *tools.Registry
	notes     MemoryStore
	scheduler TaskScheduler
	callback  StepCallback
	maxTurns  int
	window    int
	log       *logging.Logger
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithMaxTurns overrides the turn budget.
func WithMaxTurns(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxTurns = n
		}
	}
}

// WithWindow overrides the rendered context window.
func WithWindow(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.window = n
		}
	}
}

// WithCallback sets the progress callback.
func WithCallback(cb StepCallback) LoopOption {
	return func(l *Loop) { l.callback = cb }
}

// WithMemory attaches the note store backing remember/recall.
func WithMemory(m MemoryStore) LoopOption {
	return func(l *Loop) { l.notes = m }
}

// WithScheduler attaches the task scheduler backing schedule.
func WithScheduler(s TaskScheduler) LoopOption {
	return func(l *Loop) { l.scheduler = s }
}

// NewLoop creates a reasoning loop.
func NewLoop(gen router.Generator, registry *tools.Registry, opts ...LoopOption) *Loop {
	l := &Loop{
		gen:      gen,
		registry: registry,
		maxTurns: DefaultMaxTurns,
		window:   8,
		log:      logging.Global().WithComponent("Loop"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

const loopSystemTemplate = `You are Lucenta, a personal assistant.
You reason in turns. On each turn you may either answer directly, or
request exactly one action using this format:

Action: tool_name({"arg": "value"})

Available actions:
- remember({"content": "..."}): store a durable note
- recall({"query": "..."}): retrieve stored notes
- schedule({"task": "...", "delay_minutes": 30}): run a task later
%s
After an action you will see its result as an Observation line. When you
have enough information, reply with the final answer and no Action.`

// Run drives the loop until the model answers or the budget runs out.
func (l *Loop) Run(ctx context.Context, message string) (*Result, error) {
	conv := NewConversationContext(l.window)
	conv.Append("user", message)

	system := fmt.Sprintf(loopSystemTemplate, l.registry.Describe())
	result := &Result{}

	for turn := 0; turn < l.maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result.Turns = turn + 1
		lastTurn := turn == l.maxTurns-1

		prompt := conv.Render()
		if lastTurn {
			prompt += "\nYou have used all your reasoning turns. Give your final answer now without any Action.\n"
		}

		l.emit(StepEvent{Type: EventThinking, Turn: turn + 1})
		resp, err := l.gen.Generate(ctx, prompt, system, router.ClassifyComplexity(message))
		if err != nil {
			l.emit(StepEvent{Type: EventError, Turn: turn + 1, Err: err})
			return nil, fmt.Errorf("reasoning turn %d: %w", turn+1, err)
		}
		if resp.Degraded {
			result.Answer = resp.Content
			return result, nil
		}

		reply := resp.Content
		if reply == "" {
			reply = resp.Rationale
		}

		directive, found, parseErr := ParseDirective(reply)
		if !found || lastTurn {
			// Directives on the forced final turn are ignored.
			result.Answer = strings.TrimSpace(stripDirective(reply))
			result.Completed = true
			l.emit(StepEvent{Type: EventComplete, Turn: turn + 1, Message: result.Answer})
			return result, nil
		}

		conv.Append("assistant", reply)

		if parseErr != nil {
			l.log.Warn("malformed directive on turn %d: %v", turn+1, parseErr)
			conv.Append("observation", "Error: "+parseErr.Error())
			l.emit(StepEvent{Type: EventObservation, Turn: turn + 1, Err: parseErr})
			continue
		}

		l.emit(StepEvent{Type: EventAction, Turn: turn + 1, Action: directive.Name})
		result.ActionsUsed = append(result.ActionsUsed, directive.Name)

		output, err := l.execute(ctx, directive)
		if err != nil {
			// Errors go back to the model as observations; the loop
			// never aborts on a failed action.
			conv.Append("observation", "Error: "+err.Error())
			l.emit(StepEvent{Type: EventObservation, Turn: turn + 1, Action: directive.Name, Err: err})
			continue
		}

		conv.Append("observation", output)
		l.emit(StepEvent{Type: EventObservation, Turn: turn + 1, Action: directive.Name, Output: output})
	}

	// The budget ran out with a directive on the final turn reply. The
	// forced-answer branch above normally prevents this; keep whatever
	// the model last said rather than returning nothing.
	result.Answer = "I ran out of reasoning turns before finding a complete answer."
	return result, nil
}

// execute runs a directive: built-in first, then the tool directory.
func (l *Loop) execute(ctx context.Context, d *Directive) (string, error) {
	switch d.Name {
	case "remember":
		return l.remember(d.Args)
	case "recall":
		return l.recall(d.Args)
	case "schedule":
		return l.schedule(d.Args)
	default:
		return l.registry.Run(ctx, d.Name, d.Args)
	}
}

func (l *Loop) remember(args map[string]any) (string, error) {
	if l.notes == nil {
		return "", fmt.Errorf("memory is not configured")
	}
	content := tools.StringArg(args, "content")
	if content == "" {
		content = tools.StringArg(args, "query")
	}
	note, err := l.notes.Remember(content)
	if err != nil {
		return "", err
	}
	return "Stored note " + note.ID, nil
}

func (l *Loop) recall(args map[string]any) (string, error) {
	if l.notes == nil {
		return "", fmt.Errorf("memory is not configured")
	}
	notes, err := l.notes.Recall(tools.StringArg(args, "query"), 5)
	if err != nil {
		return "", err
	}
	if len(notes) == 0 {
		return "No matching notes.", nil
	}
	var sb strings.Builder
	for _, n := range notes {
		sb.WriteString("- " + n.Content + "\n")
	}
	return sb.String(), nil
}

func (l *Loop) schedule(args map[string]any) (string, error) {
	if l.scheduler == nil {
		return "", fmt.Errorf("scheduler is not configured")
	}
	task := tools.StringArg(args, "task")
	if task == "" {
		return "", fmt.Errorf("schedule requires a task description")
	}
	delay, ok := tools.FloatArg(args, "delay_minutes")
	if !ok || delay < 0 {
		return "", fmt.Errorf("schedule requires a non-negative delay_minutes")
	}
	runAt := time.Now().Add(time.Duration(delay * float64(time.Minute)))
	scheduled, err := l.scheduler.Schedule(task, runAt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Scheduled %q for %s", task, scheduled.RunAt.Format(time.Kitchen)), nil
}

func (l *Loop) emit(ev StepEvent) {
	if l.callback != nil {
		l.callback(ev)
	}
}

// stripDirective removes a trailing directive line from a forced answer.
func stripDirective(text string) string {
	return directivePattern.ReplaceAllString(text, "")
}
