package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Normalize converts a decoded JSON or YAML value to one of the canonical
// answer representations: float64, string, bool or []string. The second
// return is false when v has no canonical form.
func Normalize(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case string:
		return t, true
	case bool:
		return t, true
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := scalarString(item)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// AsNumber reports the numeric value of a canonical answer.
func AsNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// AsList reports the elements of a canonical multi-valued answer.
func AsList(v any) ([]string, bool) {
	l, ok := v.([]string)
	return l, ok
}

// String renders a canonical scalar for equality checks and display.
func String(v any) string {
	s, ok := scalarString(v)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}
