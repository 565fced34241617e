package router

import "strings"

// Complexity grades how demanding a prompt is likely to be.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

var (
	highComplexityKeywords = []string{
		"research", "analyze", "analyse", "architecture", "design",
		"compare", "plan", "synthesize", "strategy", "explain why",
		"trade-off", "tradeoff", "evaluate", "in depth",
	}
	mediumComplexityKeywords = []string{
		"summarize", "summarise", "write", "draft", "translate",
		"refactor", "debug", "how do i", "how to",
	}
)

// ClassifyComplexity grades a prompt with keyword heuristics. Long prompts
// bump the grade one notch; short chit-chat stays low.
func ClassifyComplexity(prompt string) Complexity {
	lower := strings.ToLower(prompt)

	for _, kw := range highComplexityKeywords {
		if strings.Contains(lower, kw) {
			return ComplexityHigh
		}
	}
	for _, kw := range mediumComplexityKeywords {
		if strings.Contains(lower, kw) {
			if len(lower) > 400 {
				return ComplexityHigh
			}
			return ComplexityMedium
		}
	}
	if len(lower) > 600 {
		return ComplexityMedium
	}
	return ComplexityLow
}
