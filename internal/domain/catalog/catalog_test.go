package catalog

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const minimalCatalog = `
version: t1
triage:
  layers:
    - id: core
      questions:
        - {id: q1, text: First, type: scale, min: 0, max: 10}
        - id: q2
          text: Second
          type: single_select
          options:
            - {value: a, label: A}
            - {value: b, label: B, risk_score: 4}
domains:
  - id: extra
    priority: 3
    triggers:
      - when: [{question: q1, op: ">=", value: 5}]
        action: enter_domain
    layers:
      - id: extra_l
        questions:
          - {id: q3, text: Third, type: boolean}
  - id: final
    terminal: true
    layers:
      - id: final_l
        questions:
          - {id: ok, text: OK, type: boolean}
workflows:
  - id: default
`

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if c.Version == "" {
		t.Fatal("expected a version")
	}
	if c.TerminalDomain() == nil || c.TerminalDomain().ID != "validation" {
		t.Errorf("expected terminal domain validation, got %+v", c.TerminalDomain())
	}
	if c.EmergencyDomain() == nil || c.EmergencyDomain().ID != "emergency" {
		t.Errorf("expected emergency domain, got %+v", c.EmergencyDomain())
	}
	q, ok := c.Question("pain_severity")
	if !ok {
		t.Fatal("expected pain_severity")
	}
	if q.Domain != "pain" {
		t.Errorf("expected bucket pain, got %q", q.Domain)
	}
	if owner := c.OwnerDomain("pain_interference"); owner != "pain_management" {
		t.Errorf("expected owner pain_management, got %q", owner)
	}
	if c.Thresholds.PrioritizeBoost != 100 {
		t.Errorf("expected default prioritize boost, got %d", c.Thresholds.PrioritizeBoost)
	}
}

func TestParse_Minimal(t *testing.T) {
	c, err := Parse([]byte(minimalCatalog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Triage.ID != "triage" {
		t.Errorf("expected triage id default, got %q", c.Triage.ID)
	}
	q3, _ := c.Question("q3")
	if q3.Domain != "extra" {
		t.Errorf("expected q3 to default to its owning domain, got %q", q3.Domain)
	}
	if got := c.Domains[0].Triggers[0].When[0].Value; got != 5.0 {
		t.Errorf("expected literal normalized to float64, got %T %v", got, got)
	}
	if c.Thresholds != DefaultThresholds() {
		t.Errorf("expected default thresholds, got %+v", c.Thresholds)
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no terminal domain",
			yaml: strings.Replace(minimalCatalog, "terminal: true", "priority: 1", 1),
			want: "exactly one terminal",
		},
		{
			name: "no default workflow",
			yaml: strings.Replace(minimalCatalog, "  - id: default", "  - id: default\n    tiers: [high]", 1),
			want: "default workflow",
		},
		{
			name: "unknown question",
			yaml: minimalCatalog + "flags:\n  - {id: f, level: critical, when: [{question: nope, op: \"=\", value: x}]}\n",
			want: `unknown question "nope"`,
		},
		{
			name: "bad operator",
			yaml: minimalCatalog + "flags:\n  - {id: f, level: critical, when: [{question: q1, op: \"~\", value: 1}]}\n",
			want: "invalid operator",
		},
		{
			name: "ordering against text",
			yaml: minimalCatalog + "flags:\n  - {id: f, level: moderate, when: [{question: q2, op: \">\", value: a}]}\n",
			want: "needs a numeric value",
		},
		{
			name: "bad flag level",
			yaml: minimalCatalog + "flags:\n  - {id: f, level: mild, when: [{question: q1, op: \">\", value: 1}]}\n",
			want: "invalid level",
		},
		{
			name: "duplicate question",
			yaml: strings.Replace(minimalCatalog, "id: q3,", "id: q1,", 1),
			want: `duplicate question "q1"`,
		},
		{
			name: "trigger targets terminal",
			yaml: strings.Replace(minimalCatalog, "action: enter_domain", "action: enter_domain\n        domain: final", 1),
			want: "cannot target",
		},
		{
			name: "contradiction without pair",
			yaml: minimalCatalog + "contradictions:\n  - id: c\n    questions: [q1, q2]\n    when: [{question: q2, op: \"=\", value: a}]\n    fraud_delta: 5\n",
			want: "not declared as a validation pair",
		},
		{
			name: "immediate escalation without emergency domain",
			yaml: minimalCatalog + "escalations:\n  - id: e\n    timing: immediate\n    required_confidence: 100\n    conditions: [{question: q1, op: \">=\", value: 9}]\n",
			want: "require an emergency domain",
		},
		{
			name: "missing version",
			yaml: strings.Replace(minimalCatalog, "version: t1", "", 1),
			want: "version is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("version: [unclosed"))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if errors.Is(err, ErrInvalid) {
		t.Error("decode errors are not validation errors")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in     any
		want   any
		wantOK bool
	}{
		{in: 3, want: 3.0, wantOK: true},
		{in: int64(7), want: 7.0, wantOK: true},
		{in: json.Number("2.5"), want: 2.5, wantOK: true},
		{in: "never", want: "never", wantOK: true},
		{in: true, want: true, wantOK: true},
		{in: []any{"a", "b"}, want: []string{"a", "b"}, wantOK: true},
		{in: []any{"a", map[string]any{}}, wantOK: false},
		{in: nil, wantOK: false},
		{in: map[string]any{"x": 1}, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		if ok != tt.wantOK {
			t.Errorf("Normalize(%#v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok {
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Normalize(%#v) mismatch (-want +got):\n%s", tt.in, diff)
			}
		}
	}
}

func TestString(t *testing.T) {
	if got := String(1.5); got != "1.5" {
		t.Errorf("expected 1.5, got %q", got)
	}
	if got := String(true); got != "true" {
		t.Errorf("expected true, got %q", got)
	}
	if got := String(4.0); got != "4" {
		t.Errorf("expected 4, got %q", got)
	}
}

func TestTierRank(t *testing.T) {
	if !(TierLow.Rank() < TierModerate.Rank() && TierModerate.Rank() < TierHigh.Rank() && TierHigh.Rank() < TierCritical.Rank()) {
		t.Error("tiers out of order")
	}
	if Tier("severe").Rank() != -1 {
		t.Error("expected unknown tier to rank -1")
	}
}

func TestQuestionnaireConfig(t *testing.T) {
	off := false
	if (QuestionnaireConfig{}).BranchingEnabled() != true {
		t.Error("branching defaults to on")
	}
	if (QuestionnaireConfig{Branching: &off}).BranchingEnabled() {
		t.Error("expected branching off")
	}
	if m := (QuestionnaireConfig{FraudMonitoring: MonitoringStrict}).FraudMultiplier(); m != 1.5 {
		t.Errorf("expected 1.5, got %v", m)
	}
	if m := (QuestionnaireConfig{FraudMonitoring: MonitoringLow}).FraudMultiplier(); m != 0.5 {
		t.Errorf("expected 0.5, got %v", m)
	}
}
