package workers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/InfamousPlatypus/Lucenta/internal/logging"
)

const searchEndpoint = "https://html.duckduckgo.com/html/"

// SearchResult is one hit from the web search worker.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchWorker queries the DuckDuckGo HTML endpoint. No API key needed.
type SearchWorker struct {
	client   *http.Client
	endpoint string
	maxHits  int
	log      *logging.Logger
}

// NewSearchWorker creates a search worker.
func NewSearchWorker(client *http.Client) *SearchWorker {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SearchWorker{
		client:   client,
		endpoint: searchEndpoint,
		maxHits:  5,
		log:      logging.Global().WithComponent("Search"),
	}
}

// SetEndpoint overrides the search endpoint (used in tests).
func (w *SearchWorker) SetEndpoint(endpoint string) { w.endpoint = endpoint }

// Search runs a query and returns the top hits.
func (w *SearchWorker) Search(ctx context.Context, query string) ([]SearchResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q: status %d", query, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	results := parseSearchResults(string(body), w.maxHits)
	w.log.Debug("search %q: %d results", query, len(results))
	return results, nil
}

// FormatResults renders hits as the labeled text blob workers produce.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var sb strings.Builder
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet))
	}
	return sb.String()
}

// parseSearchResults walks the result page looking for result anchors
// (class result__a) and their snippets (class result__snippet).
func parseSearchResults(page string, limit int) []SearchResult {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var results []SearchResult
	var current *SearchResult

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit && current == nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			class := attr(n, "class")
			switch {
			case strings.Contains(class, "result__a"):
				if current != nil {
					results = append(results, *current)
				}
				current = &SearchResult{
					Title: textContent(n),
					URL:   cleanResultURL(attr(n, "href")),
				}
			case strings.Contains(class, "result__snippet") && current != nil:
				current.Snippet = textContent(n)
				results = append(results, *current)
				current = nil
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if current != nil && len(results) < limit {
		results = append(results, *current)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// cleanResultURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...).
func cleanResultURL(href string) string {
	if strings.Contains(href, "uddg=") {
		if u, err := url.Parse(href); err == nil {
			if target := u.Query().Get("uddg"); target != "" {
				return target
			}
		}
	}
	return href
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
