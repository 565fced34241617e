// Package memory stores the assistant's long-lived notes as markdown files
// under a single directory. Recall is lexical: substring hits rank first,
// then token overlap. No embeddings.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Note is one remembered fact.
type Note struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

// Store is a directory of note files.
type Store struct {
	dir string
}

// NewStore opens (creating if needed) a note store at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}
	log.Info().Str("dir", dir).Msg("memory store opened")
	return &Store{dir: dir}, nil
}

// Remember persists a new note and returns it.
func (s *Store) Remember(content string) (*Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty note")
	}

	note := &Note{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now(),
	}

	body := fmt.Sprintf("---\ncreated: %s\n---\n\n%s\n",
		note.CreatedAt.Format(time.RFC3339), note.Content)
	if err := os.WriteFile(s.notePath(note.ID), []byte(body), 0644); err != nil {
		return nil, fmt.Errorf("write note: %w", err)
	}

	log.Debug().Str("id", note.ID).Int("len", len(content)).Msg("note stored")
	return note, nil
}

// Forget removes a note by ID. Forgetting a missing note is not an error.
func (s *Store) Forget(id string) error {
	err := os.Remove(s.notePath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove note: %w", err)
	}
	log.Debug().Str("id", id).Msg("note forgotten")
	return nil
}

// All loads every note, newest first.
func (s *Store) All() ([]*Note, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read memory directory: %w", err)
	}

	var notes []*Note
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		note, err := s.load(entry.Name())
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable note")
			continue
		}
		notes = append(notes, note)
	}

	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	return notes, nil
}

// Recall returns up to limit notes relevant to the query. Substring
// matches outrank token-overlap matches; zero-overlap notes are excluded.
func (s *Store) Recall(query string, limit int) ([]*Note, error) {
	if limit <= 0 {
		limit = 5
	}

	notes, err := s.All()
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryTokens := tokenize(queryLower)

	type scored struct {
		note  *Note
		score float64
	}
	var matches []scored

	for _, note := range notes {
		contentLower := strings.ToLower(note.Content)
		var score float64
		if queryLower != "" && strings.Contains(contentLower, queryLower) {
			score = 2.0
		} else {
			score = overlap(queryTokens, tokenize(contentLower))
		}
		if score > 0 {
			matches = append(matches, scored{note, score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]*Note, len(matches))
	for i, m := range matches {
		out[i] = m.note
	}
	return out, nil
}

func (s *Store) notePath(id string) string {
	return filepath.Join(s.dir, "note_"+id+".md")
}

func (s *Store) load(name string) (*Note, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}

	id := strings.TrimSuffix(strings.TrimPrefix(name, "note_"), ".md")
	note := &Note{ID: id}

	text := string(data)
	if strings.HasPrefix(text, "---\n") {
		if end := strings.Index(text[4:], "\n---\n"); end >= 0 {
			header := text[4 : 4+end]
			note.Content = strings.TrimSpace(text[4+end+5:])
			for _, line := range strings.Split(header, "\n") {
				if after, ok := strings.CutPrefix(line, "created: "); ok {
					if t, err := time.Parse(time.RFC3339, strings.TrimSpace(after)); err == nil {
						note.CreatedAt = t
					}
				}
			}
			return note, nil
		}
	}
	note.Content = strings.TrimSpace(text)
	return note, nil
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) > 2 {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	var hits int
	for tok := range a {
		if _, ok := b[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
