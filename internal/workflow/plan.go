package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Step is one executable unit of a research plan.
type Step struct {
	Worker      string         `json:"worker"`
	Action      string         `json:"action"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description"`
}

// InvalidStep records a plan entry that could not be salvaged.
type InvalidStep struct {
	Raw    string
	Reason string
}

// ParsePlan extracts the first JSON array from model output and turns its
// entries into steps. Malformed entries are repaired where possible and
// reported as InvalidStep otherwise; parsing never fails the whole plan.
func ParsePlan(text string) ([]Step, []InvalidStep) {
	arr := extractJSONArray(text)
	if arr == "" {
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return nil, []InvalidStep{{Raw: truncate(text, 200), Reason: "no JSON array found"}}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(arr), &entries); err != nil {
		return nil, []InvalidStep{{Raw: truncate(arr, 200), Reason: "array does not parse: " + err.Error()}}
	}

	var steps []Step
	var invalid []InvalidStep
	for _, entry := range entries {
		step, err := parseStep(entry)
		if err != nil {
			invalid = append(invalid, InvalidStep{Raw: truncate(string(entry), 200), Reason: err.Error()})
			continue
		}
		steps = append(steps, step)
	}
	return steps, invalid
}

func parseStep(raw json.RawMessage) (Step, error) {
	var step Step
	if err := json.Unmarshal(raw, &step); err == nil && (step.Action != "" || step.Worker != "") {
		repairStep(&step)
		return step, nil
	}

	// Models occasionally emit a step as a bare string; treat it as a
	// search for that string.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return Step{Worker: "search", Action: "search", Args: map[string]any{"query": s}, Description: s}, nil
	}

	// Or as an object with args of the wrong shape; pull out what we can.
	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err == nil {
		step = Step{
			Worker:      asString(loose["worker"]),
			Action:      asString(loose["action"]),
			Description: asString(loose["description"]),
		}
		if step.Action == "" && step.Worker == "" {
			return Step{}, fmt.Errorf("step has neither worker nor action")
		}
		step.Args = repairArgs(loose["args"], step)
		repairStep(&step)
		return step, nil
	}

	return Step{}, fmt.Errorf("unrecognized step shape")
}

// repairStep normalizes a decoded step in place: missing workers are
// inferred from the action, string or list args are rewrapped as the
// argument the action expects.
func repairStep(step *Step) {
	if step.Worker == "" {
		switch step.Action {
		case "fetch", "parse_document":
			step.Worker = "docling"
		case "search":
			step.Worker = "search"
		default:
			step.Worker = "tool"
		}
	}
	if step.Action == "" {
		step.Action = step.Worker
	}
	if step.Args == nil {
		step.Args = map[string]any{}
	}
}

// repairArgs coerces a non-mapping args value into the expected shape:
// fetch-like actions get {"url": v}, everything else {"query": v}.
func repairArgs(v any, step Step) map[string]any {
	switch args := v.(type) {
	case map[string]any:
		return args
	case string:
		return map[string]any{keyFor(step): args}
	case []any:
		if len(args) > 0 {
			return map[string]any{keyFor(step): fmt.Sprintf("%v", args[0])}
		}
	}
	return map[string]any{}
}

func keyFor(step Step) string {
	if step.Action == "fetch" || step.Action == "parse_document" || step.Worker == "docling" {
		return "url"
	}
	return "query"
}

// extractJSONArray returns the first balanced [...] region of text.
func extractJSONArray(text string) string {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
