// Package workflow runs the research pipeline: plan the steps, sanity-check
// the plan, execute it with trust gating and background document parsing,
// then synthesize a report and a short summary. Trusted domains fetch
// unattended; everything else goes through the approval gate.
package workflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/InfamousPlatypus/Lucenta/internal/bus"
	"github.com/InfamousPlatypus/Lucenta/internal/logging"
	"github.com/InfamousPlatypus/Lucenta/internal/router"
	"github.com/InfamousPlatypus/Lucenta/internal/trust"
	"github.com/InfamousPlatypus/Lucenta/internal/workers"
)

// State is the workflow's lifecycle phase.
type State string

const (
	StatePlanning     State = "planning"
	StateValidating   State = "validating"
	StateExecuting    State = "executing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Research depths.
const (
	DepthStandard = "standard"
	DepthDeep     = "deep"
)

// stepIntoLimit caps how many PDF links one fetched page forks into.
const stepIntoLimit = 2

// evidenceCap bounds how much of one document enters the synthesis prompt.
const evidenceCap = 6000

// Outcome is the result of one workflow run.
type Outcome struct {
	ID         string
	Summary    string
	ReportPath string
	Steps      int
	Skipped    int
	State      State
}

// Boss drives the plan-execute-synthesize pipeline.
type Boss struct {
	gen        router.Generator
	search     *workers.SearchWorker
	docs       *workers.DocWorker
	trustStore *trust.Store
	approver   Approver
	events     *bus.Bus
	reportsDir string
	strict     bool
	log        *logging.Logger
}

// BossOption customizes a Boss.
type BossOption func(*Boss)

// WithApprover sets the human-in-the-loop approver. Without one, untrusted
// fetches are skipped rather than silently approved.
func WithApprover(a Approver) BossOption {
	return func(b *Boss) { b.approver = a }
}

// WithEvents attaches a progress bus.
func WithEvents(events *bus.Bus) BossOption {
	return func(b *Boss) { b.events = events }
}

// WithStrictValidation fails the run when the plan check does not come
// back VALID. The default is lenient: log and proceed.
func WithStrictValidation() BossOption {
	return func(b *Boss) { b.strict = true }
}

// NewBoss creates a workflow Boss.
func NewBoss(gen router.Generator, search *workers.SearchWorker, docs *workers.DocWorker, trustStore *trust.Store, reportsDir string, opts ...BossOption) *Boss {
	b := &Boss{
		gen:        gen,
		search:     search,
		docs:       docs,
		trustStore: trustStore,
		reportsDir: reportsDir,
		log:        logging.Global().WithComponent("Workflow"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// runState is the per-run mutable state. The session approval flag lives
// here: it never outlives a run.
type runState struct {
	goal            string
	sessionApproved bool

	// Synchronous step results keep plan order; background parse results
	// accumulate separately and are folded in only after the join, so
	// synthesis always sees sync results first.
	evidence []labeledEvidence

	mu         sync.Mutex
	bgEvidence []labeledEvidence
	bg         sync.WaitGroup
}

type labeledEvidence struct {
	label   string
	content string
}

func (rs *runState) add(label, content string) {
	rs.evidence = append(rs.evidence, labeledEvidence{label: label, content: truncate(content, evidenceCap)})
}

func (rs *runState) addBackground(label, content string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.bgEvidence = append(rs.bgEvidence, labeledEvidence{label: label, content: truncate(content, evidenceCap)})
}

// Run executes the full pipeline for a goal.
func (b *Boss) Run(ctx context.Context, goal, depth string) (*Outcome, error) {
	outcome := &Outcome{ID: uuid.NewString(), State: StatePlanning}
	rs := &runState{goal: goal}

	b.log.Info("run %s: planning %q (depth=%s)", outcome.ID, truncate(goal, 80), depth)

	steps, planned := b.plan(ctx, goal, depth)
	if !planned {
		// The planner produced prose with no extractable step array.
		// Degrade to a visible result rather than raising.
		outcome.State = StateFailed
		outcome.Summary = "I could not produce a plan for this goal."
		return outcome, nil
	}
	b.publish(bus.TypePlan, fmt.Sprintf("planned %d steps", len(steps)), map[string]any{"run": outcome.ID})

	outcome.State = StateValidating
	if err := b.validate(ctx, goal, steps); err != nil {
		outcome.State = StateFailed
		return outcome, err
	}

	outcome.State = StateExecuting
	executed, skipped := b.execute(ctx, rs, steps)
	outcome.Steps = executed
	outcome.Skipped = skipped

	// Every dispatched background parse is awaited before synthesis,
	// regardless of how the approval prompts went. Background results
	// land after all synchronous ones, in completion order.
	rs.bg.Wait()
	rs.mu.Lock()
	rs.evidence = append(rs.evidence, rs.bgEvidence...)
	rs.mu.Unlock()

	outcome.State = StateSynthesizing
	summary, reportPath, err := b.synthesize(ctx, rs)
	if err != nil {
		outcome.State = StateFailed
		return outcome, err
	}

	outcome.Summary = summary
	outcome.ReportPath = reportPath
	outcome.State = StateDone
	b.publish(bus.TypeReport, reportPath, map[string]any{"run": outcome.ID})
	return outcome, nil
}

const planSystemPrompt = `You are a research planner. Reply with only a JSON
array of steps, no prose. Each step is an object:
{"worker": "search"|"docling"|"tool", "action": "search"|"fetch"|..., "args": {...}, "description": "..."}
Use "search" steps with {"query": ...} args and "fetch" steps with {"url": ...} args.`

// plan asks for a step array. The boolean is false when the planner output
// contained no array at all; a legal empty array reports true with no steps.
func (b *Boss) plan(ctx context.Context, goal, depth string) ([]Step, bool) {
	count := "3 to 5"
	if depth == DepthDeep {
		count = "at least 7"
	}
	prompt := fmt.Sprintf("Research goal: %s\n\nProduce %s steps.", goal, count)

	resp, err := b.gen.Generate(ctx, prompt, planSystemPrompt, router.ComplexityHigh)
	if err != nil {
		b.log.Warn("planning call failed: %v", err)
		return nil, false
	}
	if resp.Degraded {
		return nil, false
	}

	steps, invalid := ParsePlan(resp.Content)
	for _, inv := range invalid {
		b.log.Warn("dropping malformed step (%s): %s", inv.Reason, inv.Raw)
		if inv.Reason == "no JSON array found" || strings.HasPrefix(inv.Reason, "array does not parse") {
			return nil, false
		}
	}
	return steps, true
}

const validateSystemPrompt = `You check research plans. If the plan plausibly
serves the goal, reply with the single word VALID. Otherwise explain briefly
what is wrong.`

// validate asks the model whether the plan serves the goal. An empty plan
// skips the check; an empty run is legal and synthesizes to a no-evidence
// report.
func (b *Boss) validate(ctx context.Context, goal string, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Goal: " + goal + "\nPlan:\n")
	for i, s := range steps {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s %v - %s\n", i+1, s.Worker, s.Action, s.Args, s.Description))
	}

	resp, err := b.gen.Generate(ctx, sb.String(), validateSystemPrompt, router.ComplexityLow)
	if err != nil {
		b.log.Warn("validation call failed, proceeding: %v", err)
		return nil
	}
	if resp.Degraded {
		return nil
	}

	verdict := strings.TrimSpace(resp.Content)
	if strings.HasPrefix(strings.ToUpper(verdict), "VALID") {
		return nil
	}
	if b.strict {
		return fmt.Errorf("plan rejected: %s", truncate(verdict, 200))
	}
	b.log.Warn("plan validation not clean, proceeding anyway: %s", truncate(verdict, 120))
	return nil
}

// execute runs the plan in order. Returns executed and skipped counts.
func (b *Boss) execute(ctx context.Context, rs *runState, steps []Step) (int, int) {
	executed, skipped := 0, 0

	for i, step := range steps {
		if ctx.Err() != nil {
			skipped += len(steps) - i
			break
		}

		b.publish(bus.TypeStep, fmt.Sprintf("step %d/%d: %s", i+1, len(steps), step.Action), nil)

		var err error
		switch step.Action {
		case "search":
			err = b.runSearch(ctx, rs, step)
		case "fetch", "parse_document":
			var ok bool
			ok, err = b.runFetch(ctx, rs, step)
			if !ok && err == nil {
				skipped++
				continue
			}
		default:
			err = fmt.Errorf("no worker handles action %q", step.Action)
		}

		if err != nil {
			b.log.Warn("step %d (%s) failed: %v", i+1, step.Action, err)
			rs.add(fmt.Sprintf("step-%d-error", i+1), err.Error())
			skipped++
			continue
		}
		executed++
	}

	return executed, skipped
}

func (b *Boss) runSearch(ctx context.Context, rs *runState, step Step) error {
	query := asString(step.Args["query"])
	if query == "" {
		query = rs.goal
	}
	results, err := b.search.Search(ctx, query)
	if err != nil {
		return err
	}
	rs.add("search: "+query, workers.FormatResults(results))

	// Visit the result links: each one goes through the gate, and the
	// approved ones fork into background parses. "Stop" ends the offers
	// for this result batch only; later plan steps still run.
	for _, hit := range results {
		if hit.URL == "" || ctx.Err() != nil {
			continue
		}
		proceed, stopBatch, gateErr := b.gate(ctx, rs, hit.URL, "search result: "+hit.Title)
		if gateErr != nil {
			b.log.Warn("skipping result %s: %v", hit.URL, gateErr)
			continue
		}
		if stopBatch {
			break
		}
		if proceed {
			b.dispatchParse(ctx, rs, hit.URL)
		}
	}
	return nil
}

// runFetch gates the fetch on trust, fetches the page, and steps into the
// first PDF links as background parses. Returns false when the step was
// skipped by the gate.
func (b *Boss) runFetch(ctx context.Context, rs *runState, step Step) (bool, error) {
	rawURL := asString(step.Args["url"])
	if rawURL == "" {
		return false, fmt.Errorf("fetch step has no url")
	}

	proceed, stopBatch, err := b.gate(ctx, rs, rawURL, "planned fetch")
	if err != nil {
		return false, err
	}
	if !proceed || stopBatch {
		return false, nil
	}

	doc, err := b.docs.Fetch(ctx, rawURL)
	if err != nil {
		return true, err
	}
	rs.add("document: "+rawURL, doc.Text)

	// Step into the first PDF links on the page. A linked paper may live
	// on a different domain than the page that cites it, so each link is
	// gated on its own before the background parse is dispatched.
	links := doc.PDFLinks
	if len(links) > stepIntoLimit {
		links = links[:stepIntoLimit]
	}
	for _, link := range links {
		linkOK, linkStop, linkErr := b.gate(ctx, rs, link, "linked paper")
		if linkErr != nil {
			b.log.Warn("skipping linked paper %s: %v", link, linkErr)
			continue
		}
		if linkStop {
			break
		}
		if linkOK {
			b.dispatchParse(ctx, rs, link)
		}
	}
	return true, nil
}

// gate applies the trust store and, failing that, the approver. It returns
// whether this URL may proceed and whether the user asked to stop the
// remaining approval offers in the current step's batch of links.
func (b *Boss) gate(ctx context.Context, rs *runState, rawURL, reason string) (proceed, stopBatch bool, err error) {
	domain := domainOf(rawURL)
	if domain == "" {
		return false, false, fmt.Errorf("unparseable url %q", rawURL)
	}

	if rs.sessionApproved || b.trustStore.Trusted(domain) {
		return true, false, nil
	}

	if b.approver == nil {
		b.log.Warn("no approver configured, skipping untrusted fetch of %s", domain)
		return false, false, nil
	}

	b.publish(bus.TypeApproval, rawURL, map[string]any{"domain": domain})
	decision, err := b.approver.Decide(ctx, ApprovalRequest{URL: rawURL, Domain: domain, Reason: reason})
	if err != nil {
		return false, false, err
	}

	switch decision {
	case DecisionProceed:
		return true, false, nil
	case DecisionSkip:
		return false, false, nil
	case DecisionStop:
		return false, true, nil
	case DecisionTrust:
		if err := b.trustStore.Add(domain); err != nil {
			b.log.Warn("could not persist trust for %s: %v", domain, err)
		}
		return true, false, nil
	case DecisionApproveAll:
		rs.sessionApproved = true
		return true, false, nil
	default:
		return false, false, nil
	}
}

// dispatchParse forks a background document parse into the run's join set.
func (b *Boss) dispatchParse(ctx context.Context, rs *runState, rawURL string) {
	rs.bg.Add(1)
	go func() {
		defer rs.bg.Done()
		doc, err := b.docs.Fetch(ctx, rawURL)
		if err != nil {
			b.log.Warn("background parse of %s failed: %v", rawURL, err)
			rs.addBackground("background-error: "+rawURL, err.Error())
			return
		}
		rs.addBackground("document: "+rawURL, doc.Text)
	}()
}

const reportSystemPrompt = `You write research reports in markdown with three
sections: ## Executive Summary, ## Detailed Findings, ## Sources. Ground every
claim in the provided evidence and cite sources by their labels.`

const summarySystemPrompt = `Summarize the report in 2-3 sentences of plain prose.`

func (b *Boss) synthesize(ctx context.Context, rs *runState) (summary, reportPath string, err error) {
	rs.mu.Lock()
	evidence := make([]labeledEvidence, len(rs.evidence))
	copy(evidence, rs.evidence)
	rs.mu.Unlock()

	var report string
	if len(evidence) == 0 {
		report = fmt.Sprintf("# %s\n\nNo evidence was gathered for this goal.\n", rs.goal)
		summary = "No evidence was gathered; nothing to report."
	} else {
		var sb strings.Builder
		sb.WriteString("Goal: " + rs.goal + "\n\nEvidence:\n")
		for _, ev := range evidence {
			sb.WriteString("\n### " + ev.label + "\n" + ev.content + "\n")
		}

		resp, genErr := b.gen.Generate(ctx, sb.String(), reportSystemPrompt, router.ComplexityHigh)
		if genErr != nil {
			return "", "", fmt.Errorf("synthesize report: %w", genErr)
		}
		report = resp.Content

		head := report
		if len(head) > 2000 {
			head = truncate(head, 2000)
		}
		sumResp, genErr := b.gen.Generate(ctx, head, summarySystemPrompt, router.ComplexityLow)
		if genErr != nil {
			b.log.Warn("summary call failed, using report head: %v", genErr)
			summary = truncate(report, 400)
		} else {
			summary = sumResp.Content
		}
	}

	reportPath, err = saveReport(b.reportsDir, rs.goal, report)
	if err != nil {
		return "", "", err
	}
	return summary, reportPath, nil
}

func (b *Boss) publish(eventType, message string, data map[string]any) {
	if b.events != nil {
		b.events.Publish(bus.Event{Type: eventType, Message: message, Data: data})
	}
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
