package toolexecutor

import (
	"fmt"
	"strconv"
	"strings"
)

// StringArg returns args[name] as a trimmed string, or def.
func StringArg(args map[string]any, name, def string) string {
	switch v := args[name].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return def
}

// IntArg accepts JSON numbers and numeric strings.
func IntArg(args map[string]any, name string, def int) (int, error) {
	switch v := args[name].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("'%s' must be an integer", name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("'%s' must be an integer", name)
	}
}

// BoolArg returns args[name] as a bool, or def.
func BoolArg(args map[string]any, name string, def bool) bool {
	switch v := args[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// StringSliceArg accepts an array of strings or a comma separated string.
func StringSliceArg(args map[string]any, name string) []string {
	var out []string
	switch v := args[name].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	case string:
		out = strings.Split(v, ",")
	}
	cleaned := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}
