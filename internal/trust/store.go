// Package trust persists the set of domains the user has approved for
// unattended fetching. The set survives restarts; session-wide approval
// does not, and lives with the workflow instance instead.
package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// defaultDomains seed a fresh store with well-known research sources.
var defaultDomains = []string{
	"arxiv.org",
	"ncbi.nlm.nih.gov",
	"pubmed.ncbi.nlm.nih.gov",
	"wikipedia.org",
	"cnn.com",
}

// Store is a mutex-guarded, file-backed domain set.
type Store struct {
	mu      sync.Mutex
	path    string
	domains map[string]struct{}
}

// NewStore loads (or seeds) the trust store at path. The file is a flat
// JSON array of domain strings.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		domains: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var domains []string
		if err := json.Unmarshal(data, &domains); err != nil {
			return nil, fmt.Errorf("parse trust store %s: %w", path, err)
		}
		for _, d := range domains {
			s.domains[normalize(d)] = struct{}{}
		}
	case os.IsNotExist(err):
		for _, d := range defaultDomains {
			s.domains[d] = struct{}{}
		}
		if err := s.save(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read trust store %s: %w", path, err)
	}

	return s, nil
}

// Trusted reports whether domain (or a parent of it) is in the store.
// "pdfs.arxiv.org" matches a stored "arxiv.org".
func (s *Store) Trusted(domain string) bool {
	domain = normalize(domain)
	if domain == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[domain]; ok {
		return true
	}
	for stored := range s.domains {
		if strings.HasSuffix(domain, "."+stored) {
			return true
		}
	}
	return false
}

// Add persists a domain. Adding an already-trusted domain is a no-op.
func (s *Store) Add(domain string) error {
	domain = normalize(domain)
	if domain == "" {
		return fmt.Errorf("empty domain")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[domain]; ok {
		return nil
	}
	s.domains[domain] = struct{}{}
	return s.save()
}

// Domains returns the stored domains, sorted.
func (s *Store) Domains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.domains))
	for d := range s.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// save writes the store to disk. Caller holds the lock.
func (s *Store) save() error {
	domains := make([]string, 0, len(s.domains))
	for d := range s.domains {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	data, err := json.MarshalIndent(domains, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trust store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create trust store directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write trust store: %w", err)
	}
	return nil
}

func normalize(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "www.")
	return domain
}
