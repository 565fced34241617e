package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Directive is one parsed action request from the model.
type Directive struct {
	Name string
	Args map[string]any
}

// Matches `Action: tool_name({...})` with optional whitespace. The first
// match wins; anything after it is ignored for the turn.
var directivePattern = regexp.MustCompile(`(?s)Action:\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\((.*?)\)\s*(?:\n|$)`)

// ParseDirective scans model output for an action directive. The boolean
// reports whether a directive was found at all; a found directive with
// unparseable arguments returns found=true plus the error so the caller
// can feed it back as an observation.
func ParseDirective(text string) (*Directive, bool, error) {
	m := directivePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false, nil
	}

	name := m[1]
	rawArgs := strings.TrimSpace(m[2])

	if rawArgs == "" {
		return &Directive{Name: name, Args: map[string]any{}}, true, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		// Models sometimes emit a bare string or list instead of an
		// object; wrap the common cases before giving up.
		var single any
		if jerr := json.Unmarshal([]byte(rawArgs), &single); jerr == nil {
			switch v := single.(type) {
			case string:
				return &Directive{Name: name, Args: map[string]any{"query": v}}, true, nil
			case []any:
				if len(v) > 0 {
					return &Directive{Name: name, Args: map[string]any{"query": fmt.Sprintf("%v", v[0])}}, true, nil
				}
			}
		}
		return &Directive{Name: name}, true, fmt.Errorf("invalid arguments for %s: %v", name, err)
	}

	return &Directive{Name: name, Args: args}, true, nil
}
