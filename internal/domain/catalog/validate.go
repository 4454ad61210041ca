package catalog

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every catalog validation failure.
var ErrInvalid = errors.New("invalid catalog")

// ValidationError lists every structural problem found in a catalog.
type ValidationError struct {
	Version  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog %q: %s", e.Version, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Parse decodes a YAML catalog, builds its indexes and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c.index()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks references, operator literals and mandatory coverage: a
// triage layer, one terminal domain, and at least one workflow applicable to
// every session.
func (c *Catalog) Validate() error {
	if c.questions == nil {
		c.index()
	}
	v := &validator{c: c, seenQ: map[string]bool{}, seenD: map[string]bool{}}
	v.run()
	if len(v.problems) > 0 {
		return &ValidationError{Version: c.Version, Problems: v.problems}
	}
	return nil
}

type validator struct {
	c        *Catalog
	problems []string
	seenQ    map[string]bool
	seenD    map[string]bool
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) run() {
	c := v.c
	if c.Version == "" {
		v.addf("version is required")
	}
	if c.Triage.QuestionCount() == 0 {
		v.addf("triage must contain at least one question")
	}
	v.domain(&c.Triage)

	terminals, emergencies := 0, 0
	for i := range c.Domains {
		d := &c.Domains[i]
		if d.ID == c.Triage.ID {
			v.addf("domain %q reuses the triage id", d.ID)
		}
		v.domain(d)
		if d.Terminal {
			terminals++
		}
		if d.Emergency {
			emergencies++
		}
		if d.Terminal && d.Emergency {
			v.addf("domain %q cannot be both terminal and emergency", d.ID)
		}
	}
	if terminals != 1 {
		v.addf("exactly one terminal validation domain is required, found %d", terminals)
	}
	if emergencies > 1 {
		v.addf("at most one emergency domain is allowed, found %d", emergencies)
	}

	// Trigger targets are checked after all domain ids are known.
	v.triggerTargets(&c.Triage)
	for i := range c.Domains {
		v.triggerTargets(&c.Domains[i])
	}

	for _, f := range c.Flags {
		if f.ID == "" {
			v.addf("flag rule without id")
		}
		if f.Level != FlagCritical && f.Level != FlagModerate {
			v.addf("flag %q: invalid level %q", f.ID, f.Level)
		}
		if len(f.When) == 0 {
			v.addf("flag %q: no conditions", f.ID)
		}
		v.rules("flag "+f.ID, f.When)
	}

	for _, ct := range c.Contradictions {
		if len(ct.Questions) != 2 {
			v.addf("contradiction %q: exactly two questions are required", ct.ID)
			continue
		}
		a, aok := c.Question(ct.Questions[0])
		b, bok := c.Question(ct.Questions[1])
		if !aok || !bok {
			v.addf("contradiction %q: unknown question in pair %v", ct.ID, ct.Questions)
		} else if !pairedWith(a, b.ID) && !pairedWith(b, a.ID) {
			v.addf("contradiction %q: questions %q and %q are not declared as a validation pair", ct.ID, a.ID, b.ID)
		}
		if ct.FraudDelta < 0 {
			v.addf("contradiction %q: fraud_delta must not be negative", ct.ID)
		}
		v.rules("contradiction "+ct.ID, ct.When)
	}

	for _, e := range c.Escalations {
		if e.Timing != TimingImmediate && e.Timing != TimingDeferred {
			v.addf("escalation %q: invalid timing %q", e.ID, e.Timing)
		}
		if e.RequiredConfidence < 0 || e.RequiredConfidence > 100 {
			v.addf("escalation %q: required_confidence must be within 0..100", e.ID)
		}
		if len(e.Conditions) == 0 {
			v.addf("escalation %q: no conditions", e.ID)
		}
		for _, wr := range e.Conditions {
			v.rule("escalation "+e.ID, wr.Rule)
		}
		if e.Domain != "" && !v.seenD[e.Domain] {
			v.addf("escalation %q: unknown domain %q", e.ID, e.Domain)
		}
		if e.Timing == TimingImmediate && c.EmergencyDomain() == nil {
			v.addf("escalation %q: immediate escalations require an emergency domain", e.ID)
		}
		if e.Pathway != "" {
			if _, ok := c.Workflow(e.Pathway); !ok {
				v.addf("escalation %q: unknown pathway %q", e.ID, e.Pathway)
			}
		}
	}

	for _, p := range c.Patterns {
		if p.Confidence < 0 || p.Confidence > 100 {
			v.addf("pattern %q: confidence must be within 0..100", p.ID)
		}
		v.rules("pattern "+p.ID, p.When)
	}

	v.workflows()
}

func (v *validator) domain(d *Domain) {
	if d.ID == "" {
		v.addf("domain without id")
		return
	}
	if v.seenD[d.ID] {
		v.addf("duplicate domain %q", d.ID)
	}
	v.seenD[d.ID] = true
	for _, l := range d.Layers {
		for i := range l.Questions {
			v.question(&l.Questions[i])
		}
		v.rules("layer "+l.ID, l.CompleteWhen)
		for _, t := range l.NextDomains {
			v.rules("layer "+l.ID, t.When)
		}
	}
	for _, t := range d.Triggers {
		v.rules("domain "+d.ID, t.When)
	}
}

func (v *validator) triggerTargets(d *Domain) {
	check := func(where string, t Trigger, owner string) {
		switch t.Action {
		case ActionEnter, ActionPrioritize, ActionSkip:
		default:
			v.addf("%s: invalid trigger action %q", where, t.Action)
		}
		target := t.Domain
		if target == "" {
			target = owner
		}
		td, ok := v.c.Domain(target)
		if !ok {
			v.addf("%s: trigger targets unknown domain %q", where, target)
			return
		}
		if td.ID == v.c.Triage.ID || td.Terminal || td.Emergency {
			v.addf("%s: trigger cannot target %q", where, target)
		}
	}
	for _, t := range d.Triggers {
		check("domain "+d.ID, t, d.ID)
	}
	for _, l := range d.Layers {
		for _, t := range l.NextDomains {
			check("layer "+l.ID, t, "")
		}
	}
}

func (v *validator) question(q *Question) {
	if q.ID == "" {
		v.addf("question without id")
		return
	}
	if v.seenQ[q.ID] {
		v.addf("duplicate question %q", q.ID)
	}
	v.seenQ[q.ID] = true
	if !validAnswerTypes[q.Type] {
		v.addf("question %q: invalid type %q", q.ID, q.Type)
	}
	if (q.Type == TypeSingle || q.Type == TypeMulti) && len(q.Options) == 0 {
		v.addf("question %q: %s requires options", q.ID, q.Type)
	}
	if q.Min != nil && q.Max != nil && *q.Min > *q.Max {
		v.addf("question %q: min exceeds max", q.ID)
	}
	if q.EmotionalWeight < 0 || q.EmotionalWeight > 1 {
		v.addf("question %q: emotional_weight must be within 0..1", q.ID)
	}
	if q.Clinical != nil && q.Clinical.ValidationPair != "" {
		if _, ok := v.c.Question(q.Clinical.ValidationPair); !ok {
			v.addf("question %q: unknown validation pair %q", q.ID, q.Clinical.ValidationPair)
		}
	}
	v.rules("question "+q.ID, q.Conditions)
}

func (v *validator) rules(where string, rules []Rule) {
	for _, r := range rules {
		v.rule(where, r)
	}
}

func (v *validator) rule(where string, r Rule) {
	if !validOperators[r.Operator] {
		v.addf("%s: invalid operator %q", where, r.Operator)
		return
	}
	if _, ok := v.c.Question(r.QuestionID); !ok {
		v.addf("%s: rule references unknown question %q", where, r.QuestionID)
	}
	switch r.Operator {
	case OpGTE, OpGT, OpLTE, OpLT:
		if _, ok := r.Value.(float64); !ok {
			v.addf("%s: operator %s needs a numeric value", where, r.Operator)
		}
	case OpIncludes, OpExcludes:
		if _, isList := r.Value.([]string); isList || r.Value == nil {
			v.addf("%s: operator %s needs a scalar value", where, r.Operator)
		}
	case OpEQ:
		if r.Value == nil {
			v.addf("%s: operator = needs a value", where)
		}
	}
}

func (v *validator) workflows() {
	seen := map[string]bool{}
	defaults := 0
	for _, w := range v.c.Workflows {
		if w.ID == "" {
			v.addf("workflow without id")
			continue
		}
		if seen[w.ID] {
			v.addf("duplicate workflow %q", w.ID)
		}
		seen[w.ID] = true
		if w.IsDefault() {
			defaults++
		}
		for _, t := range w.Tiers {
			if t.Rank() < 0 {
				v.addf("workflow %q: unknown tier %q", w.ID, t)
			}
		}
		for _, s := range w.Segments {
			if s.Weight < 0 || s.Weight > 1 {
				v.addf("workflow %q: segment %q weight must be within 0..1", w.ID, s.ID)
			}
		}
		v.rules("workflow "+w.ID, w.When)
		for _, in := range w.Interventions {
			v.rules("intervention "+in.ID, in.When)
		}
	}
	if defaults == 0 {
		v.addf("at least one always-applicable default workflow is required")
	}
}

func pairedWith(q *Question, other string) bool {
	return q.Clinical != nil && q.Clinical.ValidationPair == other
}
