package assessment

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/onboard/onboard/internal/domain/catalog"
)

// ValidateAnswer checks a raw submitted value against the question and
// returns its canonical form: float64 for scale and numeric questions,
// string for single select and text, bool for boolean, []string for multi
// select.
func ValidateAnswer(q *catalog.Question, raw any) (any, error) {
	v, ok := catalog.Normalize(raw)
	if !ok {
		return nil, inputErrorf(q.ID, "unsupported value %v", raw)
	}

	switch q.Type {
	case catalog.TypeScale, catalog.TypeNumeric:
		n, ok := catalog.AsNumber(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, inputErrorf(q.ID, "expected a number")
		}
		if q.Type == catalog.TypeScale && n != math.Trunc(n) {
			return nil, inputErrorf(q.ID, "expected a whole number")
		}
		if q.Min != nil && n < *q.Min {
			return nil, inputErrorf(q.ID, "must be at least %s", catalog.String(*q.Min))
		}
		if q.Max != nil && n > *q.Max {
			return nil, inputErrorf(q.ID, "must be at most %s", catalog.String(*q.Max))
		}
		return n, nil

	case catalog.TypeSingle:
		s, ok := v.(string)
		if !ok {
			return nil, inputErrorf(q.ID, "expected one option value")
		}
		if _, ok := q.Option(s); !ok {
			return nil, inputErrorf(q.ID, "unknown option %q", s)
		}
		return s, nil

	case catalog.TypeMulti:
		list, ok := catalog.AsList(v)
		if !ok {
			s, isStr := v.(string)
			if !isStr {
				return nil, inputErrorf(q.ID, "expected a list of option values")
			}
			list = []string{s}
		}
		if len(list) == 0 {
			return nil, inputErrorf(q.ID, "select at least one option")
		}
		seen := make(map[string]bool, len(list))
		for _, s := range list {
			if _, ok := q.Option(s); !ok {
				return nil, inputErrorf(q.ID, "unknown option %q", s)
			}
			if seen[s] {
				return nil, inputErrorf(q.ID, "option %q selected twice", s)
			}
			seen[s] = true
		}
		return list, nil

	case catalog.TypeBoolean:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			switch strings.ToLower(t) {
			case "true", "yes":
				return true, nil
			case "false", "no":
				return false, nil
			}
		}
		return nil, inputErrorf(q.ID, "expected true or false")

	case catalog.TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, inputErrorf(q.ID, "expected text")
		}
		if !utf8.ValidString(s) {
			return nil, inputErrorf(q.ID, "text is not valid UTF-8")
		}
		if n := utf8.RuneCountInString(s); n > q.TextLimit() {
			return nil, inputErrorf(q.ID, "text longer than %d characters", q.TextLimit())
		}
		return s, nil

	default:
		return nil, inputErrorf(q.ID, "question type %q cannot be answered", q.Type)
	}
}
