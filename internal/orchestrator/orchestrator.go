// Package orchestrator receives user messages and picks the cheapest path
// that can answer them: a recognized intent is served by direct tool calls,
// research requests run the workflow, everything else enters the reasoning
// loop.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/InfamousPlatypus/Lucenta/internal/agent"
	"github.com/InfamousPlatypus/Lucenta/internal/intent"
	"github.com/InfamousPlatypus/Lucenta/internal/logging"
	"github.com/InfamousPlatypus/Lucenta/internal/memory"
	"github.com/InfamousPlatypus/Lucenta/internal/router"
	"github.com/InfamousPlatypus/Lucenta/internal/tools"
	"github.com/InfamousPlatypus/Lucenta/internal/workflow"
)

// Paths a message can take.
const (
	PathFast     = "fastpath"
	PathWorkflow = "workflow"
	PathLoop     = "loop"
)

// Reply is the orchestrator's answer to one message.
type Reply struct {
	Text       string
	Path       string
	ReportPath string
}

// Researcher runs the research workflow. *workflow.Boss satisfies it.
type Researcher interface {
	Run(ctx context.Context, goal, depth string) (*workflow.Outcome, error)
}

// Reasoner runs the reasoning loop. *agent.Loop satisfies it.
type Reasoner interface {
	Run(ctx context.Context, message string) (*agent.Result, error)
}

// Orchestrator dispatches messages.
type Orchestrator struct {
	classifier *intent.Classifier
	weather    *tools.WeatherClient
	researcher Researcher
	reasoner   Reasoner
	notes      *memory.Store
	gen        router.Generator
	reflect    bool
	log        *logging.Logger
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithReflection turns on post-conversation memory reflection. Needs both
// a note store and a generator.
func WithReflection(notes *memory.Store, gen router.Generator) OrchestratorOption {
	return func(o *Orchestrator) {
		o.notes = notes
		o.gen = gen
		o.reflect = true
	}
}

// New creates an Orchestrator.
func New(weather *tools.WeatherClient, researcher Researcher, reasoner Reasoner, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		classifier: intent.NewClassifier(),
		weather:    weather,
		researcher: researcher,
		reasoner:   reasoner,
		log:        logging.Global().WithComponent("Orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var greetings = []string{
	"Hello! What can I do for you?",
	"Hi! Ready when you are.",
	"Hey there. What's on your mind?",
}

// Handle answers one message.
func (o *Orchestrator) Handle(ctx context.Context, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return &Reply{Text: "Say something and I'll do my best.", Path: PathFast}, nil
	}

	if goal, depth, ok := researchRequest(message); ok {
		return o.handleResearch(ctx, goal, depth)
	}

	if match, ok := o.classifier.Classify(message); ok {
		if reply, handled := o.handleIntent(ctx, match, message); handled {
			return reply, nil
		}
	}

	return o.handleLoop(ctx, message)
}

// researchRequest detects the research prefixes.
func researchRequest(message string) (goal, depth string, ok bool) {
	lower := strings.ToLower(message)
	if after, found := strings.CutPrefix(lower, "deep research "); found {
		return strings.TrimSpace(message[len(message)-len(after):]), workflow.DepthDeep, true
	}
	if after, found := strings.CutPrefix(lower, "research "); found {
		return strings.TrimSpace(message[len(message)-len(after):]), workflow.DepthStandard, true
	}
	return "", "", false
}

func (o *Orchestrator) handleResearch(ctx context.Context, goal, depth string) (*Reply, error) {
	o.log.Info("research request (depth=%s): %s", depth, goal)
	outcome, err := o.researcher.Run(ctx, goal, depth)
	if err != nil {
		return nil, fmt.Errorf("research %q: %w", goal, err)
	}

	text := outcome.Summary
	if outcome.ReportPath != "" {
		text += "\n\nFull report: " + outcome.ReportPath
	}
	return &Reply{Text: text, Path: PathWorkflow, ReportPath: outcome.ReportPath}, nil
}

// handleIntent serves a classified intent with direct tool calls. The
// boolean reports whether the intent was actually served; unserved intents
// fall through to the reasoning loop.
func (o *Orchestrator) handleIntent(ctx context.Context, match intent.Match, message string) (*Reply, bool) {
	switch match.Intent {
	case intent.IntentGreeting:
		return &Reply{Text: greetings[len(message)%len(greetings)], Path: PathFast}, true

	case intent.IntentWeather:
		location := intent.ExtractLocation(message)
		if location == "" {
			return &Reply{Text: "Which city should I check the weather for?", Path: PathFast}, true
		}

		loc, err := o.weather.Geocode(ctx, location)
		if err != nil {
			o.log.Warn("weather fast-path geocode failed: %v", err)
			return nil, false
		}
		cond, err := o.weather.CurrentConditions(ctx, loc.Latitude, loc.Longitude)
		if err != nil {
			o.log.Warn("weather fast-path conditions failed: %v", err)
			return nil, false
		}

		text := fmt.Sprintf("Currently in %s, %s: %s, %.1f°C, wind %.0f km/h.",
			loc.Name, loc.Country, cond.Description, cond.TemperatureC, cond.WindSpeedKmh)
		return &Reply{Text: text, Path: PathFast}, true
	}

	return nil, false
}

func (o *Orchestrator) handleLoop(ctx context.Context, message string) (*Reply, error) {
	result, err := o.reasoner.Run(ctx, message)
	if err != nil {
		return nil, err
	}

	if o.reflect && o.notes != nil && o.gen != nil {
		conversation := "User: " + message + "\nAssistant: " + result.Answer
		o.notes.Reflect(ctx, o.gen, conversation)
	}

	return &Reply{Text: result.Answer, Path: PathLoop}, nil
}
