package assessment

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/onboard/onboard/internal/domain/catalog"
)

func TestContribution(t *testing.T) {
	cat := mustCatalog(t)
	tests := []struct {
		question string
		value    any
		want     float64
	}{
		{"pain_severity", 7.0, 7},
		{"mood_down", 3.0, 6},
		{"smoking_status", "current", 8},
		{"emergency_check", []string{"chest_pain", "difficulty_breathing"}, 60},
		{"pain_medication", true, 3},
		{"pain_medication", false, 0},
		{"info_accurate", true, 0},
	}
	for _, tt := range tests {
		q, ok := cat.Question(tt.question)
		if !ok {
			t.Fatalf("unknown question %s", tt.question)
		}
		if got := Contribution(q, tt.value); got != tt.want {
			t.Errorf("Contribution(%s, %v) = %v, want %v", tt.question, tt.value, got, tt.want)
		}
	}
}

func TestOverall(t *testing.T) {
	th := catalog.DefaultThresholds()
	buckets := map[string]float64{"pain": 30, "mental_health": 10}

	if got := Overall(buckets, 0, 0, th); got != 20 {
		t.Errorf("expected plain mean 20, got %v", got)
	}
	if got := Overall(buckets, 0, 3, th); got != 30 {
		t.Errorf("expected x1.5 with three moderate flags, got %v", got)
	}
	if got := Overall(buckets, 0, 2, th); got != 20 {
		t.Errorf("two moderate flags do not raise the multiplier, got %v", got)
	}
	if got := Overall(buckets, 1, 5, th); got != 40 {
		t.Errorf("expected x2 with a critical flag, got %v", got)
	}
	if got := Overall(map[string]float64{"a": 90}, 1, 0, th); got != 100 {
		t.Errorf("expected clamp to 100, got %v", got)
	}
	if got := Overall(nil, 1, 0, th); got != 0 {
		t.Errorf("expected 0 without buckets, got %v", got)
	}
}

func TestClassify(t *testing.T) {
	th := catalog.DefaultThresholds()
	tests := []struct {
		overall, max float64
		critical     int
		want         catalog.Tier
	}{
		{0, 0, 1, catalog.TierCritical},
		{70, 0, 0, catalog.TierHigh},
		{10, 25, 0, catalog.TierHigh},
		{40, 0, 0, catalog.TierModerate},
		{5, 15, 0, catalog.TierModerate},
		{39, 14, 0, catalog.TierLow},
	}
	for _, tt := range tests {
		if got := Classify(tt.overall, tt.max, tt.critical, th); got != tt.want {
			t.Errorf("Classify(%v, %v, %d) = %s, want %s", tt.overall, tt.max, tt.critical, got, tt.want)
		}
	}
}

func TestRiskState_CorrectionsOnlyRaise(t *testing.T) {
	cat := mustCatalog(t)
	q, _ := cat.Question("pain_severity")
	rs := newRiskState()
	rec := NewRecord()

	for _, v := range []float64{5, 2, 8, 3} {
		rec.Append(q.ID, v)
		rs.apply(cat, q, v, rec)
	}
	if got := rs.buckets["pain"]; got != 8 {
		t.Errorf("expected bucket at highest contribution 8, got %v", got)
	}
	// severe_pain held while the value was 8 and stays set.
	if !rs.moderate["severe_pain"] {
		t.Error("expected sticky moderate flag")
	}
}

func TestRiskState_BucketClamped(t *testing.T) {
	cat := mustCatalog(t)
	cat.Thresholds.MaxDomainScore = 50
	q, _ := cat.Question("emergency_check")
	rs := newRiskState()
	v := []string{"chest_pain", "difficulty_breathing", "severe_bleeding"}
	rec := recordOf(map[string]any{q.ID: v})
	rs.apply(cat, q, v, rec)
	if got := rs.buckets["emergency"]; got != 50 {
		t.Errorf("expected clamp at 50, got %v", got)
	}
}

func TestDetectPatterns(t *testing.T) {
	cat := mustCatalog(t)
	rec := NewRecord()
	for _, a := range []Answer{
		{"pain_severity", 7.0},
		{"pain_duration", "chronic"},
		{"chronic_conditions", []string{"diabetes"}},
		{"exercise_days", 0.0},
	} {
		rec.Append(a.QuestionID, a.Value)
	}
	got := DetectPatterns(cat, rec)
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"cardiometabolic_risk", "chronic_pain_risk"}, ids); diff != "" {
		t.Errorf("patterns (-want +got):\n%s", diff)
	}
}

func TestDetectPatterns_BuiltIns(t *testing.T) {
	cat := mustCatalog(t)
	rec := NewRecord()
	for _, id := range []string{"pain_severity", "mood_interest", "mood_down", "phq_sleep", "phq_energy"} {
		rec.Append(id, 2.0)
	}
	for i := 0; i < 3; i++ {
		rec.Append("pain_severity", 3.0)
	}
	var ids []string
	for _, p := range DetectPatterns(cat, rec) {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{PatternRevisions, PatternStraightlining}, ids); diff != "" {
		t.Errorf("patterns (-want +got):\n%s", diff)
	}
}

func TestCheckContradictions(t *testing.T) {
	cat := mustCatalog(t)
	rec := recordOf(map[string]any{"smoking_status": "never"})
	if got := CheckContradictions(cat, rec, nil); len(got) != 0 {
		t.Fatalf("pair incomplete, got %+v", got)
	}
	rec.Append("smoking_advice", true)
	got := CheckContradictions(cat, rec, map[string]bool{})
	if len(got) != 1 || got[0].ID != "smoking_history_conflict" {
		t.Fatalf("expected smoking contradiction, got %+v", got)
	}
	if again := CheckContradictions(cat, rec, map[string]bool{"smoking_history_conflict": true}); len(again) != 0 {
		t.Errorf("a recorded rule must not fire twice, got %+v", again)
	}
}

func TestEscalationConfidence(t *testing.T) {
	e := catalog.Escalation{Conditions: []catalog.WeightedRule{
		{Rule: catalog.Rule{QuestionID: "a", Operator: catalog.OpEQ, Value: "x"}, Weight: 3},
		{Rule: catalog.Rule{QuestionID: "b", Operator: catalog.OpEQ, Value: "y"}},
	}}
	rec := recordOf(map[string]any{"a": "x", "b": "n"})
	if got := EscalationConfidence(e, rec); got != 75 {
		t.Errorf("expected 75, got %v", got)
	}
}

func TestEscalationTracker_Persistence(t *testing.T) {
	cat := mustCatalog(t)
	tr := newEscalationTracker()

	high := recordOf(map[string]any{"pain_severity": 9.0})
	if ev := tr.evaluate(cat, high, 1); len(ev) != 0 {
		t.Fatalf("expected no event on first evaluation, got %+v", ev)
	}
	low := recordOf(map[string]any{"pain_severity": 2.0})
	tr.evaluate(cat, low, 2)
	if ev := tr.evaluate(cat, high, 3); len(ev) != 0 {
		t.Fatalf("streak must reset after a failing evaluation, got %+v", ev)
	}
	ev := tr.evaluate(cat, high, 4)
	if len(ev) != 1 || ev[0].RuleID != "escalating_pain" || ev[0].Timing != catalog.TimingDeferred {
		t.Fatalf("expected escalating_pain, got %+v", ev)
	}
	if ev := tr.evaluate(cat, high, 5); len(ev) != 0 {
		t.Errorf("expected escalation to fire once, got %+v", ev)
	}
}
