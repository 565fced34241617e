package trust

import (
	"path/filepath"
	"testing"
)

func TestNewStoreSeedsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_domains.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !s.Trusted("arxiv.org") {
		t.Error("Expected arxiv.org to be trusted by default")
	}
	if !s.Trusted("wikipedia.org") {
		t.Error("Expected wikipedia.org to be trusted by default")
	}
	if s.Trusted("example.com") {
		t.Error("Expected example.com to be untrusted")
	}
}

func TestTrustedMatchesSubdomains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_domains.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !s.Trusted("en.wikipedia.org") {
		t.Error("Expected subdomain of a trusted domain to be trusted")
	}
	if !s.Trusted("www.arxiv.org") {
		t.Error("Expected www prefix to be normalized away")
	}
	if s.Trusted("notarxiv.org") {
		t.Error("Expected notarxiv.org not to match arxiv.org")
	}
}

func TestAddIsIdempotentAndDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted_domains.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := s.Add("example.com"); err != nil {
		t.Fatalf("Unexpected error adding domain: %v", err)
	}
	before := len(s.Domains())
	if err := s.Add("example.com"); err != nil {
		t.Fatalf("Unexpected error on repeat add: %v", err)
	}
	if len(s.Domains()) != before {
		t.Error("Expected repeat add to be a no-op")
	}

	// Reload from disk and verify the domain survived.
	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("Unexpected error reloading: %v", err)
	}
	if !reloaded.Trusted("example.com") {
		t.Error("Expected added domain to survive reload")
	}
}
