package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDocWorkerExtractsTextAndPDFLinks(t *testing.T) {
	page := `<html><head><title>Paper Index</title></head><body>
		<nav>skip this chrome</nav>
		<p>Recent submissions on error correction.</p>
		<a href="/pdf/2401.00001.pdf">First paper</a>
		<a href="https://arxiv.org/pdf/2401.00002">Second paper</a>
		<a href="/about">About</a>
		<script>var junk = 1;</script>
	</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	doc, err := NewDocWorker(server.Client()).Fetch(context.Background(), server.URL+"/list")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if doc.Title != "Paper Index" {
		t.Errorf("Expected title %q, got %q", "Paper Index", doc.Title)
	}
	if !strings.Contains(doc.Text, "Recent submissions") {
		t.Errorf("Expected body text extracted, got %q", doc.Text)
	}
	if strings.Contains(doc.Text, "skip this chrome") || strings.Contains(doc.Text, "var junk") {
		t.Errorf("Expected nav and script content stripped, got %q", doc.Text)
	}
	if len(doc.PDFLinks) != 2 {
		t.Fatalf("Expected 2 pdf links, got %d: %v", len(doc.PDFLinks), doc.PDFLinks)
	}
	if !strings.HasSuffix(doc.PDFLinks[0], "/pdf/2401.00001.pdf") {
		t.Errorf("Expected relative pdf link resolved, got %q", doc.PDFLinks[0])
	}
}

func TestDocWorkerPlainTextBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("just plain text\n"))
	}))
	defer server.Close()

	doc, err := NewDocWorker(server.Client()).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Text != "just plain text" {
		t.Errorf("Expected raw text body, got %q", doc.Text)
	}
}

func TestDocWorkerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewDocWorker(server.Client()).Fetch(context.Background(), server.URL)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestIsPDFLink(t *testing.T) {
	tests := []struct {
		href string
		want bool
	}{
		{"https://example.com/paper.pdf", true},
		{"https://example.com/paper.PDF?download=1", true},
		{"https://arxiv.org/pdf/2401.00001", true},
		{"https://example.com/paper.html", false},
		{"https://example.com/pdfs-explained", false},
	}
	for _, tt := range tests {
		if got := IsPDFLink(tt.href); got != tt.want {
			t.Errorf("IsPDFLink(%q) = %v, want %v", tt.href, got, tt.want)
		}
	}
}

func TestSearchWorkerParsesResults(t *testing.T) {
	page := `<html><body>
		<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fone">Result One</a>
		<a class="result__snippet" href="#">Snippet for one.</a>
		<a class="result__a" href="https://example.com/two">Result Two</a>
		<a class="result__snippet" href="#">Snippet for two.</a>
	</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("q") != "test query" {
			t.Errorf("Expected query forwarded, got %q", r.FormValue("q"))
		}
		w.Write([]byte(page))
	}))
	defer server.Close()

	worker := NewSearchWorker(server.Client())
	worker.SetEndpoint(server.URL)

	results, err := worker.Search(context.Background(), "test query")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].URL != "https://example.com/one" {
		t.Errorf("Expected redirect unwrapped, got %q", results[0].URL)
	}
	if results[0].Snippet != "Snippet for one." {
		t.Errorf("Expected snippet attached, got %q", results[0].Snippet)
	}
	if results[1].Title != "Result Two" {
		t.Errorf("Expected second title, got %q", results[1].Title)
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	if got := FormatResults(nil); got != "No results found." {
		t.Errorf("Unexpected empty formatting: %q", got)
	}
}
