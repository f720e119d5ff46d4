package stream

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ThoughtRule inspects one marker of a part. decided=false passes the part
// to the next rule.
type ThoughtRule struct {
	Name  string
	Match func(p RawPart) (thought, decided bool)
}

// ThoughtRules is evaluated in order; the first rule that decides wins and a
// part no rule decides is output.
var ThoughtRules = []ThoughtRule{
	{
		Name: "thought_flag",
		Match: func(p RawPart) (bool, bool) {
			if p.Thought == nil {
				return false, false
			}
			return *p.Thought, true
		},
	},
	{
		Name: "thought_marker",
		Match: func(p RawPart) (bool, bool) {
			if truthy(p.ThoughtMarker) {
				return true, true
			}
			return false, false
		},
	},
	{
		Name: "role",
		Match: func(p RawPart) (bool, bool) {
			if strings.EqualFold(strings.TrimSpace(p.Role), "thought") {
				return true, true
			}
			return false, false
		},
	},
	{
		Name: "kind",
		Match: func(p RawPart) (bool, bool) {
			if strings.Contains(strings.ToLower(p.Kind), "thought") {
				return true, true
			}
			return false, false
		},
	},
}

// Classify reports whether p is model reasoning rather than output.
func Classify(p RawPart) bool {
	for _, rule := range ThoughtRules {
		if thought, decided := rule.Match(p); decided {
			return thought
		}
	}
	return false
}

// truthy applies the usual truth test to a loosely typed marker.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		s := strings.TrimSpace(x)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return s != ""
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case float32:
		return x != 0
	case float64:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case []byte:
		return len(x) > 0
	default:
		return true
	}
}
