package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const slugMaxLen = 40

// slugify turns a goal into a filesystem-safe filename stem: lowercased,
// runs of non-alphanumerics collapsed to single underscores, capped.
func slugify(goal string) string {
	var sb strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(goal)) {
		if 'a' <= r && r <= 'z' || '0' <= r && r <= '9' {
			sb.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.Trim(sb.String(), "_")
	if len(slug) > slugMaxLen {
		slug = strings.Trim(slug[:slugMaxLen], "_")
	}
	if slug == "" {
		slug = "report"
	}
	return slug
}

// saveReport writes the report under a goal-derived, timestamped filename
// and returns the path.
func saveReport(dir, goal, report string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create reports directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.md", slugify(goal), time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
