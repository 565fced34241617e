package memory

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/InfamousPlatypus/Lucenta/internal/router"
)

const reflectionSystem = `You maintain the assistant's long-term memory.
Given a finished conversation, decide what is worth keeping.
Respond only with directive lines, one per line:
STORE: <a single durable fact about the user or their projects>
DELETE: <note id that is now stale>
If nothing is worth keeping, respond with NOTHING.`

// Reflect asks the model what the finished conversation taught us and
// applies the resulting STORE/DELETE directives. Reflection failures are
// logged, never surfaced; memory upkeep must not break the chat path.
func (s *Store) Reflect(ctx context.Context, gen router.Generator, conversation string) {
	notes, err := s.All()
	if err != nil {
		log.Warn().Err(err).Msg("reflection skipped: cannot list notes")
		return
	}

	var sb strings.Builder
	sb.WriteString("Current notes:\n")
	for _, n := range notes {
		sb.WriteString("- [" + n.ID + "] " + n.Content + "\n")
	}
	sb.WriteString("\nConversation:\n")
	sb.WriteString(conversation)

	resp, err := gen.Generate(ctx, sb.String(), reflectionSystem, router.ComplexityLow)
	if err != nil {
		log.Warn().Err(err).Msg("reflection call failed")
		return
	}
	if resp.Degraded {
		return
	}

	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "STORE:"):
			content := strings.TrimSpace(strings.TrimPrefix(line, "STORE:"))
			if content == "" {
				continue
			}
			if _, err := s.Remember(content); err != nil {
				log.Warn().Err(err).Msg("reflection store failed")
			}
		case strings.HasPrefix(line, "DELETE:"):
			id := strings.TrimSpace(strings.TrimPrefix(line, "DELETE:"))
			if id == "" {
				continue
			}
			if err := s.Forget(id); err != nil {
				log.Warn().Err(err).Str("id", id).Msg("reflection delete failed")
			}
		}
	}
}
