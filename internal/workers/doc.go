// Package workers implements the fetch-and-extract workers the research
// workflow delegates to: a web search worker and a document worker that
// turns fetched pages into plain text.
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

// maxBodyBytes caps how much of a fetched document we read.
const maxBodyBytes = 2 << 20 // 2 MiB

const userAgent = "Lucenta/1.0 (personal research agent)"

// Document is the extracted form of one fetched page.
type Document struct {
	URL      string
	Title    string
	Text     string
	PDFLinks []string // absolute URLs, in page order
}

// DocWorker fetches documents and extracts readable text.
type DocWorker struct {
	client *http.Client
	log    *logging.Logger
}

// NewDocWorker creates a document worker.
func NewDocWorker(client *http.Client) *DocWorker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DocWorker{
		client: client,
		log:    logging.Global().WithComponent("DocWorker"),
	}
}

// Fetch retrieves rawURL and extracts its text. Non-HTML bodies come back
// as raw text; PDF links found in HTML pages are collected for step-into.
func (w *DocWorker) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}

	doc := &Document{URL: rawURL}
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "html") {
		w.extractHTML(doc, body)
	} else {
		doc.Text = strings.TrimSpace(string(body))
	}

	w.log.Debug("fetched %s: %d chars, %d pdf links", rawURL, len(doc.Text), len(doc.PDFLinks))
	return doc, nil
}

func (w *DocWorker) extractHTML(doc *Document, body []byte) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		doc.Text = strings.TrimSpace(string(body))
		return
	}

	base, _ := url.Parse(doc.URL)
	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "footer":
				return
			case "title":
				if doc.Title == "" && n.FirstChild != nil {
					doc.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				if href := attr(n, "href"); href != "" && IsPDFLink(href) {
					doc.PDFLinks = append(doc.PDFLinks, resolve(base, href))
				}
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	doc.Text = strings.TrimSpace(sb.String())
}

// IsPDFLink reports whether a link looks like a PDF document.
func IsPDFLink(href string) bool {
	lower := strings.ToLower(href)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	return strings.HasSuffix(lower, ".pdf") || strings.Contains(lower, "arxiv.org/pdf/")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
