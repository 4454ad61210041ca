package assessment

import (
	"github.com/onboard/onboard/internal/domain/catalog"
)

// Evaluate applies a single rule to the record. Unanswered questions never
// satisfy a rule. includes/excludes on a non-list answer evaluate to false
// and true respectively; ordering operators on non-numbers are false.
func Evaluate(r catalog.Rule, rec *Record) bool {
	v, ok := rec.Value(r.QuestionID)
	if !ok {
		return false
	}
	switch r.Operator {
	case catalog.OpIncludes:
		list, ok := catalog.AsList(v)
		if !ok {
			return false
		}
		return contains(list, catalog.String(r.Value))
	case catalog.OpExcludes:
		list, ok := catalog.AsList(v)
		if !ok {
			return true
		}
		return !contains(list, catalog.String(r.Value))
	case catalog.OpEQ:
		a, aok := v.(float64)
		b, bok := r.Value.(float64)
		if aok && bok {
			return a == b
		}
		if _, isList := v.([]string); isList {
			return false
		}
		return catalog.String(v) == catalog.String(r.Value)
	case catalog.OpGTE, catalog.OpGT, catalog.OpLTE, catalog.OpLT:
		a, aok := v.(float64)
		b, bok := r.Value.(float64)
		if !aok || !bok {
			return false
		}
		switch r.Operator {
		case catalog.OpGTE:
			return a >= b
		case catalog.OpGT:
			return a > b
		case catalog.OpLTE:
			return a <= b
		default:
			return a < b
		}
	default:
		return false
	}
}

// All is the conjunction of rules. An empty set holds.
func All(rules []catalog.Rule, rec *Record) bool {
	for _, r := range rules {
		if !Evaluate(r, rec) {
			return false
		}
	}
	return true
}

// Any reports whether at least one rule holds. An empty set does not.
func Any(rules []catalog.Rule, rec *Record) bool {
	for _, r := range rules {
		if Evaluate(r, rec) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
