package workflow

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Decision is the user's answer to an approval prompt.
type Decision int

const (
	// DecisionProceed runs the step this once.
	DecisionProceed Decision = iota
	// DecisionSkip drops the step and continues with the plan.
	DecisionSkip
	// DecisionStop declines the rest of the current batch of link offers.
	// Later plan steps still run and prompt on their own.
	DecisionStop
	// DecisionTrust runs the step and persists the domain as trusted.
	DecisionTrust
	// DecisionApproveAll runs the step and silences prompts for the rest
	// of this workflow run. Not persisted.
	DecisionApproveAll
)

// ApprovalRequest describes the fetch awaiting approval.
type ApprovalRequest struct {
	URL    string
	Domain string
	Reason string
}

// Approver answers approval requests. The CLI implementation prompts the
// terminal; tests script their own.
type Approver interface {
	Decide(ctx context.Context, req ApprovalRequest) (Decision, error)
}

// PromptApprover reads decisions interactively. It holds one buffered
// reader for its whole lifetime: wrapping the input anew on every prompt
// would swallow type-ahead meant for whoever reads the terminal next.
type PromptApprover struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPromptApprover creates an interactive approver on the given streams.
// Pass the session's shared reader when other code reads the same input.
func NewPromptApprover(in *bufio.Reader, out io.Writer) *PromptApprover {
	return &PromptApprover{in: in, out: out}
}

// Decide prompts [Y/n/stop/trust/all] and maps the reply to a decision.
// Unrecognized input proceeds, matching the default choice.
func (p *PromptApprover) Decide(ctx context.Context, req ApprovalRequest) (Decision, error) {
	fmt.Fprintf(p.out, "\nFetch %s (%s)?\n[Y] yes once  [n] skip  [stop] skip the rest of this batch  [trust] always allow %s  [all] approve everything this session\n> ",
		req.URL, req.Reason, req.Domain)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return DecisionStop, fmt.Errorf("read approval: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no":
		return DecisionSkip, nil
	case "stop", "abort":
		return DecisionStop, nil
	case "trust":
		return DecisionTrust, nil
	case "all":
		return DecisionApproveAll, nil
	default:
		return DecisionProceed, nil
	}
}
