package pathway

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/onboard/onboard/internal/domain/assessment"
	"github.com/onboard/onboard/internal/domain/catalog"
)

// ErrNoApplicableWorkflow means no workflow's triggers hold. A valid catalog
// always carries a default workflow, so this is a configuration error.
var ErrNoApplicableWorkflow = errors.New("no applicable workflow")

const maxFallbacks = 2

// Component weights of the pathway score.
const (
	segmentWeight  = 40
	historyWeight  = 30
	resourceWeight = 20
	outcomeWeight  = 10
)

// Selector scores and ranks the workflows of a catalog.
type Selector struct {
	cat *catalog.Catalog
}

func NewSelector(cat *catalog.Catalog) *Selector {
	return &Selector{cat: cat}
}

// Chooser binds a profile and context for use by an assessment session.
func (s *Selector) Chooser(p Profile, sc Context) assessment.PathwayChooser {
	return func(risk assessment.RiskProfile, rec *assessment.Record, forced string) (*assessment.PathwaySelection, error) {
		return s.Select(p, sc, risk, rec, forced)
	}
}

// PreRoute selects a workflow from the profile alone, before any answer is
// given. Its questionnaire configuration drives the session.
func (s *Selector) PreRoute(p Profile, sc Context) (*catalog.Workflow, error) {
	sel, err := s.Select(p, sc, assessment.RiskProfile{}, assessment.NewRecord(), "")
	if err != nil {
		return nil, err
	}
	w, _ := s.cat.Workflow(sel.Primary)
	return w, nil
}

// Select ranks applicable workflows by score and returns the best as
// primary with up to two fallbacks. A forced pathway, imposed by an
// immediate escalation, becomes primary regardless of its score; fallbacks
// are then limited to workflows scoring no higher than it.
func (s *Selector) Select(p Profile, sc Context, risk assessment.RiskProfile, rec *assessment.Record, forced string) (*assessment.PathwaySelection, error) {
	var scored []assessment.PathwayScore
	for i := range s.cat.Workflows {
		w := &s.cat.Workflows[i]
		if w.ID == forced || !Applicable(w, risk, rec) {
			continue
		}
		scored = append(scored, s.Score(w, p, sc, risk, rec))
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	var primary assessment.PathwayScore
	var candidates []assessment.PathwayScore
	scores := scored
	if forced != "" {
		w, ok := s.cat.Workflow(forced)
		if !ok {
			return nil, &assessment.ConfigError{Reason: fmt.Sprintf("forced pathway %q is not in catalog %s", forced, s.cat.Version)}
		}
		primary = s.Score(w, p, sc, risk, rec)
		for _, c := range scored {
			if c.Score <= primary.Score {
				candidates = append(candidates, c)
			}
		}
		scores = append([]assessment.PathwayScore{primary}, scored...)
	} else {
		if len(scored) == 0 {
			return nil, &assessment.ConfigError{Reason: "pathway selection", Err: ErrNoApplicableWorkflow}
		}
		primary = scored[0]
		candidates = scored[1:]
	}

	sel := &assessment.PathwaySelection{
		Primary:   primary.ID,
		Fallbacks: []string{},
		Scores:    scores,
		Forced:    forced != "",
	}
	for i := 0; i < len(candidates) && i < maxFallbacks; i++ {
		sel.Fallbacks = append(sel.Fallbacks, candidates[i].ID)
	}

	w, _ := s.cat.Workflow(primary.ID)
	sel.Recommendations = append([]string{}, w.Recommendations...)
	sel.NextSteps = []string{}
	for _, in := range w.Interventions {
		if assessment.All(in.When, rec) {
			sel.NextSteps = append(sel.NextSteps, in.Name)
		}
	}
	return sel, nil
}

// Applicable reports whether a workflow may be selected without an
// escalation: its rules hold and it targets the current tier, if any.
func Applicable(w *catalog.Workflow, risk assessment.RiskProfile, rec *assessment.Record) bool {
	if w.EscalationOnly || !assessment.All(w.When, rec) {
		return false
	}
	if len(w.Tiers) == 0 {
		return true
	}
	for _, t := range w.Tiers {
		if t == risk.Tier {
			return true
		}
	}
	return false
}

// Score computes the weighted pathway score, clamped to 100.
func (s *Selector) Score(w *catalog.Workflow, p Profile, sc Context, risk assessment.RiskProfile, rec *assessment.Record) assessment.PathwayScore {
	th := s.cat.Thresholds

	var seg float64
	for _, sg := range w.Segments {
		seg += s.confidence(sg.Criteria, p, sc, risk) * sg.Weight
	}
	hist := shrink(w.History, th.HistoryPriorSamples)
	res := s.resources(w, p, rec)
	out := tierFit(w.Tiers, risk.Tier)

	ps := assessment.PathwayScore{
		ID:       w.ID,
		Segment:  seg * segmentWeight,
		History:  hist * historyWeight,
		Resource: res * resourceWeight,
		Outcome:  out * outcomeWeight,
	}
	ps.Score = ps.Segment + ps.History + ps.Resource + ps.Outcome
	if ps.Score > 100 {
		ps.Score = 100
	}
	return ps
}

// confidence multiplies the category sub-scores of a segment. A category
// the segment does not constrain contributes 1; one the profile lacks
// contributes the missing-criteria decay.
func (s *Selector) confidence(c catalog.SegmentCriteria, p Profile, sc Context, risk assessment.RiskProfile) float64 {
	decay := s.cat.Thresholds.MissingCriteriaDecay
	conf := 1.0
	if c.Demographic != nil {
		conf *= demographicScore(c.Demographic, p.Demographics, decay)
	}
	if c.Behavioral != nil {
		conf *= behavioralScore(c.Behavioral, p.Behavioral, sc.Channel, decay)
	}
	if c.Clinical != nil {
		conf *= clinicalScore(c.Clinical, p.Clinical, risk, decay)
	}
	if c.Temporal != nil {
		conf *= temporalScore(c.Temporal, sc.Now, decay)
	}
	return conf
}

func demographicScore(c *catalog.DemographicCriteria, d *Demographics, decay float64) float64 {
	if d == nil {
		return decay
	}
	score := 1.0
	if c.AgeMin > 0 || c.AgeMax > 0 {
		switch {
		case d.Age == 0:
			score *= decay
		case c.AgeMin > 0 && d.Age < c.AgeMin, c.AgeMax > 0 && d.Age > c.AgeMax:
			return 0
		}
	}
	score *= memberScore(c.Sexes, d.Sex, decay)
	score *= memberScore(c.Regions, d.Region, decay)
	return score
}

func behavioralScore(c *catalog.BehavioralCriteria, b *Behavioral, channel string, decay float64) float64 {
	if b == nil {
		return decay
	}
	if b.Engagement < c.MinEngagement || b.CompletionRate < c.MinCompletionRate {
		return 0
	}
	if channel == "" {
		channel = b.PreferredChannel
	}
	return memberScore(c.Channels, channel, decay)
}

func clinicalScore(c *catalog.ClinicalCriteria, cl *Clinical, risk assessment.RiskProfile, decay float64) float64 {
	score := 1.0
	known := risk.Tier.Rank() >= 0
	if len(c.Tiers) > 0 {
		switch {
		case !known:
			score *= decay
		case !containsTier(c.Tiers, risk.Tier):
			return 0
		}
	}
	if c.MinOverall > 0 {
		switch {
		case !known:
			score *= decay
		case risk.Overall < c.MinOverall:
			return 0
		}
	}
	if len(c.Conditions) > 0 {
		if cl == nil {
			score *= decay
		} else if !overlaps(c.Conditions, cl.Conditions) {
			return 0
		}
	}
	return score
}

func temporalScore(c *catalog.TemporalCriteria, now time.Time, decay float64) float64 {
	if now.IsZero() {
		return decay
	}
	if c.StartHour != c.EndHour {
		h := now.Hour()
		in := h >= c.StartHour && h < c.EndHour
		if c.StartHour > c.EndHour {
			in = h >= c.StartHour || h < c.EndHour
		}
		if !in {
			return 0
		}
	}
	if len(c.Weekdays) > 0 {
		day := now.Weekday().String()
		for _, w := range c.Weekdays {
			if strings.EqualFold(w, day) {
				return 1
			}
		}
		return 0
	}
	return 1
}

// resources is the mean availability of the resources required by the
// interventions that apply. Unknown resources count as the decay factor.
func (s *Selector) resources(w *catalog.Workflow, p Profile, rec *assessment.Record) float64 {
	decay := s.cat.Thresholds.MissingCriteriaDecay
	seen := map[string]bool{}
	var sum float64
	var n int
	for _, in := range w.Interventions {
		if !assessment.All(in.When, rec) {
			continue
		}
		for _, r := range in.Resources {
			if seen[r] {
				continue
			}
			seen[r] = true
			n++
			avail, ok := p.Resources[r]
			if !ok {
				sum += decay
				continue
			}
			sum += clamp01(avail)
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// shrink pulls the observed success rate toward 0.5 in proportion to how
// few samples back it.
func shrink(h catalog.History, prior int) float64 {
	n := float64(h.SampleSize)
	pr := float64(prior)
	if n+pr == 0 {
		return 0.5
	}
	return (clamp01(h.SuccessRate)*n + 0.5*pr) / (n + pr)
}

// tierFit predicts outcome from how well the workflow targets the tier.
func tierFit(targets []catalog.Tier, tier catalog.Tier) float64 {
	if len(targets) == 0 {
		return 0.7
	}
	best := 0.2
	for _, t := range targets {
		if t.Rank() < 0 || tier.Rank() < 0 {
			continue
		}
		switch d := t.Rank() - tier.Rank(); {
		case d == 0:
			return 1
		case d == 1 || d == -1:
			best = 0.5
		}
	}
	return best
}

func memberScore(allowed []string, v string, decay float64) float64 {
	if len(allowed) == 0 {
		return 1
	}
	if v == "" {
		return decay
	}
	for _, a := range allowed {
		if strings.EqualFold(a, v) {
			return 1
		}
	}
	return 0
}

func containsTier(tiers []catalog.Tier, t catalog.Tier) bool {
	for _, x := range tiers {
		if x == t {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
