package assessment

import (
	"sort"

	"github.com/onboard/onboard/internal/domain/catalog"
)

// Built-in detectors run alongside catalog patterns.
const (
	PatternStraightlining = "response_straightlining"
	PatternRevisions      = "frequent_revisions"
)

// DetectPatterns runs every detector independently over the record. Results
// are sorted by id.
func DetectPatterns(cat *catalog.Catalog, rec *Record) []Pattern {
	out := []Pattern{}
	for _, p := range cat.Patterns {
		if len(p.When) > 0 && All(p.When, rec) {
			out = append(out, Pattern{ID: p.ID, Confidence: p.Confidence, Recommendation: p.Recommendation})
		}
	}
	th := cat.Thresholds
	if straightlined(cat, rec, th.StraightlineMin) {
		out = append(out, Pattern{
			ID:             PatternStraightlining,
			Confidence:     60,
			Recommendation: "Identical ratings across consecutive scale questions; confirm the answers with the patient.",
		})
	}
	if rec.Revisions() >= th.RevisionPatternMin {
		out = append(out, Pattern{
			ID:             PatternRevisions,
			Confidence:     70,
			Recommendation: "Several answers were changed during the assessment; review them with the patient.",
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// straightlined reports a run of at least min consecutive first answers to
// scale questions with the same value.
func straightlined(cat *catalog.Catalog, rec *Record, min int) bool {
	if min < 2 {
		return false
	}
	run := 0
	var last float64
	for _, e := range rec.History() {
		if e.Revision {
			continue
		}
		q, ok := cat.Question(e.QuestionID)
		if !ok || q.Type != catalog.TypeScale {
			continue
		}
		v, ok := e.Value.(float64)
		if !ok {
			continue
		}
		if run > 0 && v == last {
			run++
		} else {
			run = 1
			last = v
		}
		if run >= min {
			return true
		}
	}
	return false
}
