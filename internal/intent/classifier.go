// Package intent recognizes a small set of request shapes with a
// bag-of-words classifier so common questions never hit the model.
package intent

import (
	"math"
	"strings"
	"unicode"
)

// Known intents.
const (
	IntentWeather  = "weather"
	IntentGreeting = "greeting"
)

// threshold is the minimum cosine similarity to claim an intent.
const threshold = 0.55

// Match is a classified utterance.
type Match struct {
	Intent string
	Score  float64
}

// Classifier scores utterances against per-intent example sets.
type Classifier struct {
	examples map[string][]map[string]int
}

// NewClassifier creates a classifier with the stock intents.
func NewClassifier() *Classifier {
	c := &Classifier{examples: make(map[string][]map[string]int)}

	c.addExamples(IntentWeather,
		"what's the weather in paris",
		"what is the weather like today",
		"how hot is it outside",
		"will it rain tomorrow in london",
		"current temperature in berlin",
		"is it cold in oslo right now",
	)
	c.addExamples(IntentGreeting,
		"hello",
		"hi there",
		"hey how are you",
		"good morning",
		"good evening",
	)

	return c
}

func (c *Classifier) addExamples(intent string, utterances ...string) {
	for _, u := range utterances {
		c.examples[intent] = append(c.examples[intent], countVector(u))
	}
}

// Classify returns the best-scoring intent, or ok=false when nothing
// clears the threshold.
func (c *Classifier) Classify(utterance string) (Match, bool) {
	vec := countVector(utterance)
	if len(vec) == 0 {
		return Match{}, false
	}

	var best Match
	for intent, examples := range c.examples {
		for _, example := range examples {
			if score := cosine(vec, example); score > best.Score {
				best = Match{Intent: intent, Score: score}
			}
		}
	}

	if best.Score < threshold {
		return Match{}, false
	}
	return best, true
}

// ExtractLocation pulls a place name out of a weather utterance: the
// tokens after "in"/"at"/"for", or failing that the trailing capitalized
// words.
func ExtractLocation(utterance string) string {
	words := strings.Fields(strings.TrimRight(utterance, "?!. "))

	for i, w := range words {
		switch strings.ToLower(w) {
		case "in", "at", "for":
			if i+1 < len(words) {
				return strings.Join(words[i+1:], " ")
			}
		}
	}

	// Trailing capitalized run: "weather Paris", "temperature New York".
	start := -1
	for i := len(words) - 1; i >= 0; i-- {
		r := []rune(words[i])
		if len(r) > 0 && unicode.IsUpper(r[0]) {
			start = i
			continue
		}
		break
	}
	if start > 0 { // never the first word; that's just sentence case
		return strings.Join(words[start:], " ")
	}
	return ""
}

func countVector(s string) map[string]int {
	vec := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		vec[tok]++
	}
	return vec
}

func cosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for tok, count := range a {
		normA += float64(count * count)
		if other, ok := b[tok]; ok {
			dot += float64(count * other)
		}
	}
	for _, count := range b {
		normB += float64(count * count)
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
