// Package router selects a model gateway per request and shapes raw model
// output into rationale and content segments. It holds a default provider
// for everyday traffic and an optional step-up provider that is spent only
// when a demanding request arrives while the local host is saturated.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/InfamousPlatypus/Lucenta/internal/llm"
	"github.com/InfamousPlatypus/Lucenta/internal/logging"
)

// NoProviderMarker is the content returned when no gateway can serve a
// request. Downstream parsers treat it as a degraded placeholder, never as
// a model answer.
const NoProviderMarker = "[no provider available: install a local model or configure an API key]"

// RoutingPolicy sets the load thresholds that gate step-up routing.
type RoutingPolicy struct {
	CPUThreshold float64
	MemThreshold float64
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() RoutingPolicy {
	return RoutingPolicy{CPUThreshold: 70.0, MemThreshold: 70.0}
}

// ModelResponse is the shaped result of one generation call.
type ModelResponse struct {
	Rationale string // leading "Thought:" segment, may be empty
	Content   string // the answer text
	Model     string // which model produced it, empty when degraded
	Escalated bool   // true when the step-up provider served the call
	Degraded  bool   // true when no provider was available
}

// RouteDecision records why a provider was chosen. Logged on every call.
type RouteDecision struct {
	Provider   string
	Reason     string
	Complexity Complexity
	CPUPercent float64
	MemPercent float64
}

// Generator is the narrow interface the rest of the system sees.
type Generator interface {
	Generate(ctx context.Context, prompt, system string, complexity Complexity) (*ModelResponse, error)
}

// Router picks between a default and a step-up provider.
type Router struct {
	defaultProvider llm.Provider
	stepUpProvider  llm.Provider
	policy          RoutingPolicy
	sampler         LoadSampler
	log             *logging.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithStepUp configures the step-up provider.
func WithStepUp(p llm.Provider) Option {
	return func(r *Router) { r.stepUpProvider = p }
}

// WithPolicy overrides the routing thresholds.
func WithPolicy(policy RoutingPolicy) Option {
	return func(r *Router) { r.policy = policy }
}

// WithSampler replaces the load sampler (used in tests).
func WithSampler(s LoadSampler) Option {
	return func(r *Router) { r.sampler = s }
}

// New creates a Router around a default provider.
func New(defaultProvider llm.Provider, opts ...Option) *Router {
	r := &Router{
		defaultProvider: defaultProvider,
		policy:          DefaultPolicy(),
		sampler:         &SystemLoadSampler{},
		log:             logging.Global().WithComponent("Router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route decides which provider serves a request of the given complexity.
// The step-up provider is chosen only for high-complexity work arriving
// while the host is over its load thresholds; the remote budget is not
// spent just because a caller asked for "high".
func (r *Router) Route(complexity Complexity) RouteDecision {
	sample := r.sampler.Sample()

	decision := RouteDecision{
		Complexity: complexity,
		CPUPercent: sample.CPUPercent,
		MemPercent: sample.MemPercent,
	}

	stepUpReady := r.stepUpProvider != nil && r.stepUpProvider.Available()
	overloaded := sample.CPUPercent > r.policy.CPUThreshold || sample.MemPercent > r.policy.MemThreshold

	switch {
	case complexity == ComplexityHigh && stepUpReady && overloaded:
		decision.Provider = r.stepUpProvider.Name()
		decision.Reason = fmt.Sprintf("high complexity under load (cpu=%.0f%% mem=%.0f%%)",
			sample.CPUPercent, sample.MemPercent)
	case r.defaultProvider != nil && r.defaultProvider.Available():
		decision.Provider = r.defaultProvider.Name()
		decision.Reason = "default gateway"
	case stepUpReady:
		decision.Provider = r.stepUpProvider.Name()
		decision.Reason = "default gateway unavailable"
	default:
		decision.Provider = ""
		decision.Reason = "no gateway available"
	}

	return decision
}

// Generate routes the request, calls the chosen provider, and shapes the
// reply. A step-up failure is retried exactly once on the default provider
// before the error surfaces.
func (r *Router) Generate(ctx context.Context, prompt, system string, complexity Complexity) (*ModelResponse, error) {
	decision := r.Route(complexity)
	r.log.Debug("route: provider=%s complexity=%s reason=%s", decision.Provider, decision.Complexity, decision.Reason)

	if decision.Provider == "" {
		r.log.Warn("no provider available, returning degraded response")
		return &ModelResponse{Content: NoProviderMarker, Degraded: true}, nil
	}

	provider := r.defaultProvider
	escalated := false
	if r.stepUpProvider != nil && decision.Provider == r.stepUpProvider.Name() {
		provider = r.stepUpProvider
		escalated = true
	}

	resp, err := provider.Generate(ctx, &llm.GenerateRequest{Prompt: prompt, SystemPrompt: system})
	if err != nil && escalated && r.defaultProvider != nil && r.defaultProvider.Available() {
		// One retry on the default gateway before giving up.
		r.log.Warn("step-up provider %s failed (%v), retrying on %s", provider.Name(), err, r.defaultProvider.Name())
		provider = r.defaultProvider
		escalated = false
		resp, err = provider.Generate(ctx, &llm.GenerateRequest{Prompt: prompt, SystemPrompt: system})
	}
	if err != nil {
		return nil, fmt.Errorf("generate via %s: %w", provider.Name(), err)
	}

	shaped := shapeResponse(resp.Content)
	shaped.Model = resp.Model
	shaped.Escalated = escalated
	return shaped, nil
}

// shapeResponse splits raw model text into rationale and content. Models
// are prompted to emit "Thought:" and "Content:" labels but frequently
// drop them; absent markers mean the whole text is content.
func shapeResponse(raw string) *ModelResponse {
	text := strings.TrimSpace(raw)
	resp := &ModelResponse{Content: text}

	for _, marker := range []string{"Content:", "Final Answer:"} {
		if idx := strings.Index(text, marker); idx >= 0 {
			head := strings.TrimSpace(text[:idx])
			resp.Content = strings.TrimSpace(text[idx+len(marker):])
			resp.Rationale = strings.TrimSpace(strings.TrimPrefix(head, "Thought:"))
			return resp
		}
	}

	if strings.HasPrefix(text, "Thought:") {
		// Rationale with no content marker: treat the first line as
		// rationale and the remainder as content.
		body := strings.TrimPrefix(text, "Thought:")
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			resp.Rationale = strings.TrimSpace(body[:nl])
			resp.Content = strings.TrimSpace(body[nl+1:])
		} else {
			resp.Rationale = strings.TrimSpace(body)
			resp.Content = ""
		}
	}

	return resp
}
