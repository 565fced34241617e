package workflow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/InfamousPlatypus/Lucenta/internal/router"
	"github.com/InfamousPlatypus/Lucenta/internal/trust"
	"github.com/InfamousPlatypus/Lucenta/internal/workers"
)

// fakeGen answers each pipeline phase by matching the system prompt.
type fakeGen struct {
	mu           sync.Mutex
	plan         string
	verdict      string
	report       string
	summary      string
	reportPrompt string
}

func (g *fakeGen) Generate(ctx context.Context, prompt, system string, c router.Complexity) (*router.ModelResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch system {
	case planSystemPrompt:
		return &router.ModelResponse{Content: g.plan}, nil
	case validateSystemPrompt:
		return &router.ModelResponse{Content: g.verdict}, nil
	case reportSystemPrompt:
		g.reportPrompt = prompt
		return &router.ModelResponse{Content: g.report}, nil
	case summarySystemPrompt:
		return &router.ModelResponse{Content: g.summary}, nil
	default:
		return nil, fmt.Errorf("unexpected system prompt: %s", system)
	}
}

// scriptedApprover replays decisions and counts prompts.
type scriptedApprover struct {
	mu        sync.Mutex
	decisions []Decision
	calls     int
}

func (a *scriptedApprover) Decide(ctx context.Context, req ApprovalRequest) (Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := DecisionProceed
	if a.calls < len(a.decisions) {
		d = a.decisions[a.calls]
	}
	a.calls++
	return d, nil
}

func (a *scriptedApprover) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestTrust(t *testing.T) *trust.Store {
	t.Helper()
	s, err := trust.NewStore(filepath.Join(t.TempDir(), "trusted_domains.json"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return s
}

func newDocServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var pdfHits atomic.Int32
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Landing page text.</p>
			<a href="/paper.pdf">Paper</a></body></html>`)
	})
	mux.HandleFunc("/external", func(w http.ResponseWriter, r *http.Request) {
		// The linked paper's host differs from the page's host, so its
		// domain is judged on its own by the trust gate.
		pdfURL := strings.Replace(server.URL, "127.0.0.1", "localhost", 1) + "/paper.pdf"
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><p>Citing page text.</p>
			<a href=%q>Paper</a></body></html>`, pdfURL)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Plain page text.</p></body></html>`)
	})
	mux.HandleFunc("/paper.pdf", func(w http.ResponseWriter, r *http.Request) {
		pdfHits.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "PDF BODY CONTENT")
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &pdfHits
}

func fetchPlan(url string) string {
	return fmt.Sprintf(`[{"worker": "docling", "action": "fetch", "args": {"url": %q}, "description": "read page"}]`, url)
}

func newTestBoss(t *testing.T, gen *fakeGen, ts *trust.Store, opts ...BossOption) (*Boss, string) {
	t.Helper()
	reportsDir := t.TempDir()
	docs := workers.NewDocWorker(nil)
	search := workers.NewSearchWorker(nil)
	return NewBoss(gen, search, docs, ts, reportsDir, opts...), reportsDir
}

func TestRunEmptyPlanCompletes(t *testing.T) {
	gen := &fakeGen{plan: "[]"}
	boss, reportsDir := newTestBoss(t, gen, newTestTrust(t))

	outcome, err := boss.Run(context.Background(), "nothing to do", DepthStandard)
	if err != nil {
		t.Fatalf("Expected empty plan to complete, got error: %v", err)
	}
	if outcome.State != StateDone {
		t.Errorf("Expected done, got %s", outcome.State)
	}
	if outcome.Steps != 0 {
		t.Errorf("Expected 0 executed steps, got %d", outcome.Steps)
	}
	if !strings.Contains(outcome.Summary, "No evidence") {
		t.Errorf("Expected no-evidence summary, got %q", outcome.Summary)
	}

	entries, _ := os.ReadDir(reportsDir)
	if len(entries) != 1 {
		t.Fatalf("Expected a persisted report, found %d files", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "nothing_to_do_") || !strings.HasSuffix(entries[0].Name(), ".md") {
		t.Errorf("Unexpected report filename: %s", entries[0].Name())
	}
}

func TestRunUnplannableGoalReportsIt(t *testing.T) {
	gen := &fakeGen{plan: "I am not sure how to approach this, sorry."}
	boss, reportsDir := newTestBoss(t, gen, newTestTrust(t))

	outcome, err := boss.Run(context.Background(), "unplannable goal", DepthStandard)
	if err != nil {
		t.Fatalf("Expected a degraded outcome, not an error: %v", err)
	}
	if outcome.State != StateFailed {
		t.Errorf("Expected failed state, got %s", outcome.State)
	}
	if !strings.Contains(outcome.Summary, "could not produce a plan") {
		t.Errorf("Expected a user-visible explanation, got %q", outcome.Summary)
	}

	entries, _ := os.ReadDir(reportsDir)
	if len(entries) != 0 {
		t.Errorf("Expected no report for an unplannable goal, found %d files", len(entries))
	}
}

func TestRunTrustedDomainNeverPrompts(t *testing.T) {
	server, _ := newDocServer(t)
	ts := newTestTrust(t)
	if err := ts.Add("127.0.0.1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	gen := &fakeGen{
		plan:    fetchPlan(server.URL + "/page"),
		verdict: "VALID",
		report:  "## Executive Summary\nfindings",
		summary: "Short summary.",
	}
	approver := &scriptedApprover{}
	boss, _ := newTestBoss(t, gen, ts, WithApprover(approver))

	outcome, err := boss.Run(context.Background(), "read the page", DepthStandard)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if approver.count() != 0 {
		t.Errorf("Expected no approval prompts for a trusted domain, got %d", approver.count())
	}
	if outcome.Steps != 1 {
		t.Errorf("Expected the fetch to execute, got %d steps", outcome.Steps)
	}
}

func TestRunTrustChoicePersistsAndParsesBackground(t *testing.T) {
	server, pdfHits := newDocServer(t)
	ts := newTestTrust(t)

	gen := &fakeGen{
		plan:    fetchPlan(server.URL + "/page"),
		verdict: "VALID",
		report:  "## Executive Summary\nfindings",
		summary: "Short summary.",
	}
	approver := &scriptedApprover{decisions: []Decision{DecisionTrust}}
	boss, _ := newTestBoss(t, gen, ts, WithApprover(approver))

	if _, err := boss.Run(context.Background(), "read the page", DepthStandard); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if approver.count() != 1 {
		t.Errorf("Expected one prompt, got %d", approver.count())
	}
	if !ts.Trusted("127.0.0.1") {
		t.Error("Expected trust decision to persist the domain")
	}
	if pdfHits.Load() != 1 {
		t.Errorf("Expected the linked PDF parsed in the background, hits=%d", pdfHits.Load())
	}
	// The background parse was awaited: its content made it into synthesis.
	if !strings.Contains(gen.reportPrompt, "PDF BODY CONTENT") {
		t.Error("Expected background parse output in the synthesis prompt")
	}
	if !strings.Contains(gen.reportPrompt, "Landing page text.") {
		t.Error("Expected page text in the synthesis prompt")
	}
}

func TestRunStopEndsOnlyCurrentBatch(t *testing.T) {
	server, _ := newDocServer(t)
	ts := newTestTrust(t)

	plan := fmt.Sprintf(`[
		{"action": "fetch", "args": {"url": %q}},
		{"action": "fetch", "args": {"url": %q}}
	]`, server.URL+"/plain", server.URL+"/plain")

	gen := &fakeGen{plan: plan, verdict: "VALID", report: "r", summary: "s"}
	approver := &scriptedApprover{decisions: []Decision{DecisionStop, DecisionProceed}}
	boss, _ := newTestBoss(t, gen, ts, WithApprover(approver))

	outcome, err := boss.Run(context.Background(), "stop the first batch", DepthStandard)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// Stop declines the first step's batch; the second step is still
	// offered on its own and proceeds.
	if approver.count() != 2 {
		t.Errorf("Expected the second step to prompt after a stop, got %d prompts", approver.count())
	}
	if outcome.Steps != 1 {
		t.Errorf("Expected one executed step, got %d", outcome.Steps)
	}
	if outcome.Skipped != 1 {
		t.Errorf("Expected only the stopped batch skipped, got %d", outcome.Skipped)
	}
	if outcome.State != StateDone {
		t.Errorf("Expected the run to still synthesize, got %s", outcome.State)
	}
}

func TestRunStepIntoLinkOnOtherDomainIsGated(t *testing.T) {
	server, pdfHits := newDocServer(t)
	ts := newTestTrust(t)
	if err := ts.Add("127.0.0.1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The citing page is trusted, but its linked paper lives on a host
	// the trust store has never seen.
	gen := &fakeGen{
		plan:    fetchPlan(server.URL + "/external"),
		verdict: "VALID",
		report:  "r",
		summary: "s",
	}
	approver := &scriptedApprover{decisions: []Decision{DecisionSkip}}
	boss, _ := newTestBoss(t, gen, ts, WithApprover(approver))

	if _, err := boss.Run(context.Background(), "read the page", DepthStandard); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if approver.count() != 1 {
		t.Errorf("Expected a prompt for the off-domain paper, got %d", approver.count())
	}
	if pdfHits.Load() != 0 {
		t.Errorf("Expected the declined paper not to be fetched, hits=%d", pdfHits.Load())
	}
}

func TestRunSearchResultLinksAreGatedAndParsed(t *testing.T) {
	docServer, _ := newDocServer(t)
	searchServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
			<a class="result__a" href="%s/page">Landing page</a>
			<a class="result__snippet" href="#">A page about the topic.</a>
		</body></html>`, docServer.URL)
	}))
	t.Cleanup(searchServer.Close)

	gen := &fakeGen{
		plan:    `[{"worker": "search", "action": "search", "args": {"query": "topic"}}]`,
		verdict: "VALID",
		report:  "r",
		summary: "s",
	}
	approver := &scriptedApprover{decisions: []Decision{DecisionProceed}}
	ts := newTestTrust(t)

	search := workers.NewSearchWorker(nil)
	search.SetEndpoint(searchServer.URL)
	boss := NewBoss(gen, search, workers.NewDocWorker(nil), ts, t.TempDir(), WithApprover(approver))

	outcome, err := boss.Run(context.Background(), "learn about the topic", DepthStandard)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if outcome.Steps != 1 {
		t.Errorf("Expected the search step to execute, got %d", outcome.Steps)
	}
	if approver.count() != 1 {
		t.Errorf("Expected one prompt for the untrusted result link, got %d", approver.count())
	}
	// The approved result link was visited in the background and its
	// content reached synthesis alongside the snippets.
	if !strings.Contains(gen.reportPrompt, "A page about the topic.") {
		t.Error("Expected the result snippet in the synthesis prompt")
	}
	if !strings.Contains(gen.reportPrompt, "Landing page text.") {
		t.Error("Expected the visited page's text in the synthesis prompt")
	}
}

func TestRunSkipDropsOnlyThatStep(t *testing.T) {
	server, _ := newDocServer(t)
	ts := newTestTrust(t)

	plan := fmt.Sprintf(`[
		{"action": "fetch", "args": {"url": %q}},
		{"action": "fetch", "args": {"url": %q}}
	]`, server.URL+"/page", server.URL+"/page")

	gen := &fakeGen{plan: plan, verdict: "VALID", report: "r", summary: "s"}
	approver := &scriptedApprover{decisions: []Decision{DecisionSkip, DecisionProceed}}
	boss, _ := newTestBoss(t, gen, ts, WithApprover(approver))

	outcome, err := boss.Run(context.Background(), "skip one", DepthStandard)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if outcome.Steps != 1 {
		t.Errorf("Expected one executed step, got %d", outcome.Steps)
	}
	if outcome.Skipped != 1 {
		t.Errorf("Expected one skipped step, got %d", outcome.Skipped)
	}
}

func TestRunApproveAllPromptsOnce(t *testing.T) {
	server, _ := newDocServer(t)
	ts := newTestTrust(t)

	plan := fmt.Sprintf(`[
		{"action": "fetch", "args": {"url": %q}},
		{"action": "fetch", "args": {"url": %q}}
	]`, server.URL+"/page", server.URL+"/page")

	gen := &fakeGen{plan: plan, verdict: "VALID", report: "r", summary: "s"}
	approver := &scriptedApprover{decisions: []Decision{DecisionApproveAll}}
	boss, _ := newTestBoss(t, gen, ts, WithApprover(approver))

	outcome, err := boss.Run(context.Background(), "approve all", DepthStandard)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if approver.count() != 1 {
		t.Errorf("Expected one prompt for the whole session, got %d", approver.count())
	}
	if outcome.Steps != 2 {
		t.Errorf("Expected both steps executed, got %d", outcome.Steps)
	}
	// Session approval is not persisted as trust.
	if ts.Trusted("127.0.0.1") {
		t.Error("Expected session approval not to persist the domain")
	}
}

func TestRunStrictValidationRejects(t *testing.T) {
	gen := &fakeGen{
		plan:    `[{"action": "search", "args": {"query": "x"}}]`,
		verdict: "This plan does not serve the goal at all.",
	}
	boss, _ := newTestBoss(t, gen, newTestTrust(t), WithStrictValidation())

	outcome, err := boss.Run(context.Background(), "strict goal", DepthStandard)
	if err == nil {
		t.Fatal("Expected strict validation to fail the run")
	}
	if outcome.State != StateFailed {
		t.Errorf("Expected failed state, got %s", outcome.State)
	}
}

func TestRunLenientValidationProceeds(t *testing.T) {
	server, _ := newDocServer(t)
	ts := newTestTrust(t)
	ts.Add("127.0.0.1")

	gen := &fakeGen{
		plan:    fetchPlan(server.URL + "/page"),
		verdict: "Hmm, not sure about step 1.",
		report:  "r",
		summary: "s",
	}
	boss, _ := newTestBoss(t, gen, ts)

	outcome, err := boss.Run(context.Background(), "lenient goal", DepthStandard)
	if err != nil {
		t.Fatalf("Expected lenient validation to proceed, got %v", err)
	}
	if outcome.State != StateDone {
		t.Errorf("Expected done, got %s", outcome.State)
	}
}
