package assessment

import (
	"github.com/onboard/onboard/internal/domain/catalog"
)

// Warning is a non-fatal consistency finding.
type Warning struct {
	RuleID     string   `json:"rule_id"`
	Questions  []string `json:"questions"`
	Message    string   `json:"message"`
	FraudDelta float64  `json:"fraud_delta"`
	Seq        int      `json:"seq"`
}

// EscalationEvent records a fired escalation rule.
type EscalationEvent struct {
	RuleID     string         `json:"rule_id"`
	Timing     catalog.Timing `json:"timing"`
	Domain     string         `json:"domain,omitempty"`
	Pathway    string         `json:"pathway,omitempty"`
	Message    string         `json:"message"`
	Confidence float64        `json:"confidence"`
	Seq        int            `json:"seq"`
}

// CheckContradictions returns the contradiction rules that hold for the
// record and are not yet in seen. A rule is only considered once both
// questions of its pair are answered.
func CheckContradictions(cat *catalog.Catalog, rec *Record, seen map[string]bool) []catalog.Contradiction {
	var out []catalog.Contradiction
	for _, ct := range cat.Contradictions {
		if seen[ct.ID] || len(ct.Questions) != 2 {
			continue
		}
		if !rec.Answered(ct.Questions[0]) || !rec.Answered(ct.Questions[1]) {
			continue
		}
		if All(ct.When, rec) {
			out = append(out, ct)
		}
	}
	return out
}

// EscalationConfidence is the weighted share, 0..100, of conditions that hold.
func EscalationConfidence(e catalog.Escalation, rec *Record) float64 {
	var total, held float64
	for _, c := range e.Conditions {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		total += w
		if Evaluate(c.Rule, rec) {
			held += w
		}
	}
	if total == 0 {
		return 0
	}
	return held / total * 100
}

// escalationTracker counts consecutive qualifying evaluations per rule and
// fires each rule at most once.
type escalationTracker struct {
	streak map[string]int
	fired  map[string]bool
}

func newEscalationTracker() *escalationTracker {
	return &escalationTracker{streak: make(map[string]int), fired: make(map[string]bool)}
}

// evaluate runs once per submitted answer.
func (t *escalationTracker) evaluate(cat *catalog.Catalog, rec *Record, seq int) []EscalationEvent {
	var out []EscalationEvent
	for _, e := range cat.Escalations {
		if t.fired[e.ID] {
			continue
		}
		conf := EscalationConfidence(e, rec)
		if conf <= 0 || conf < e.RequiredConfidence {
			t.streak[e.ID] = 0
			continue
		}
		t.streak[e.ID]++
		need := e.Persistence
		if need < 1 {
			need = 1
		}
		if t.streak[e.ID] < need {
			continue
		}
		t.fired[e.ID] = true
		out = append(out, EscalationEvent{
			RuleID:     e.ID,
			Timing:     e.Timing,
			Domain:     e.Domain,
			Pathway:    e.Pathway,
			Message:    e.Message,
			Confidence: conf,
			Seq:        seq,
		})
	}
	return out
}
