package plan

import (
	"encoding/json"
	"html"

	"github.com/microcosm-cc/bluemonday"

	"github.com/kilobridge/kilobridge/internal/util/sanitize"
)

// MaxStepLength bounds a plan step, in characters.
const MaxStepLength = 2000

var htmlPolicy = bluemonday.StrictPolicy()

// Normalize extracts the plan steps from a planner reply. A reply that is
// not a JSON object with a "plan" array yields an empty list. Non-string
// steps are JSON-encoded; every step is reduced to plain text and steps
// that end up empty are dropped.
func Normalize(raw string) []string {
	var obj struct {
		Plan []any `json:"plan"`
	}
	steps := []string{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return steps
	}
	for _, s := range obj.Plan {
		if step := cleanStep(stringify(s)); step != "" {
			steps = append(steps, step)
		}
	}
	return steps
}

// Summary extracts the "summary" string from a planner reply.
func Summary(raw string) string {
	var obj struct {
		Summary any `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return ""
	}
	s, _ := obj.Summary.(string)
	return cleanStep(s)
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// cleanStep strips markup and control characters from model output.
func cleanStep(s string) string {
	s = htmlPolicy.Sanitize(s)
	// bluemonday encodes special characters.
	s = html.UnescapeString(s)
	return sanitize.Text(s, MaxStepLength)
}
