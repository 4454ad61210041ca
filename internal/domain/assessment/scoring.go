package assessment

import (
	"sort"

	"github.com/onboard/onboard/internal/domain/catalog"
)

// Pattern is a detected hidden pattern.
type Pattern struct {
	ID             string  `json:"id"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
}

// RiskProfile is the derived risk view of a session at a point in time.
type RiskProfile struct {
	DomainScores  map[string]float64 `json:"domain_scores"`
	Overall       float64            `json:"overall"`
	Tier          catalog.Tier       `json:"tier"`
	CriticalFlags []string           `json:"critical_flags"`
	ModerateFlags []string           `json:"moderate_flags"`
	Patterns      []Pattern          `json:"patterns"`
}

// HasCritical reports whether any critical flag is set.
func (p RiskProfile) HasCritical() bool { return len(p.CriticalFlags) > 0 }

// Contribution is the raw risk an answer adds to its question's bucket:
// base weight, plus the risk of every selected option, plus value times
// ScoreScale for numbers.
func Contribution(q *catalog.Question, value any) float64 {
	c := q.RiskWeight
	switch v := value.(type) {
	case float64:
		c += v * q.ScoreScale
	case string:
		if o, ok := q.Option(v); ok {
			c += o.RiskScore
		}
	case bool:
		if o, ok := q.Option(catalog.String(v)); ok {
			c += o.RiskScore
		}
	case []string:
		for _, s := range v {
			if o, ok := q.Option(s); ok {
				c += o.RiskScore
			}
		}
	}
	return c
}

// Overall is the mean of populated buckets times the severity multiplier,
// clamped to [0,100].
func Overall(buckets map[string]float64, criticalFlags, moderateFlags int, th catalog.Thresholds) float64 {
	if len(buckets) == 0 {
		return 0
	}
	var sum float64
	for _, s := range buckets {
		sum += s
	}
	mean := sum / float64(len(buckets))
	switch {
	case criticalFlags > 0:
		mean *= th.CriticalMultiplier
	case moderateFlags > th.ModerateFlagCount:
		mean *= th.ModerateMultiplier
	}
	return clamp(mean, 0, 100)
}

// Classify maps the overall score, the highest bucket and the flags to a tier.
func Classify(overall, maxBucket float64, criticalFlags int, th catalog.Thresholds) catalog.Tier {
	switch {
	case criticalFlags > 0:
		return catalog.TierCritical
	case overall >= th.HighOverall || maxBucket >= th.HighDomain:
		return catalog.TierHigh
	case overall >= th.ModerateOverall || maxBucket >= th.ModerateDomain:
		return catalog.TierModerate
	default:
		return catalog.TierLow
	}
}

// riskState accumulates bucket scores and sticky flags for one session.
// A bucket holds the sum, over its questions, of the highest contribution
// ever recorded for each question, so corrections can raise but never lower
// a score.
type riskState struct {
	buckets  map[string]float64
	best     map[string]float64
	critical map[string]bool
	moderate map[string]bool
}

func newRiskState() *riskState {
	return &riskState{
		buckets:  make(map[string]float64),
		best:     make(map[string]float64),
		critical: make(map[string]bool),
		moderate: make(map[string]bool),
	}
}

func (r *riskState) apply(cat *catalog.Catalog, q *catalog.Question, value any, rec *Record) {
	c := Contribution(q, value)
	if delta := c - r.best[q.ID]; delta > 0 {
		r.best[q.ID] = c
		r.buckets[q.Domain] = clamp(r.buckets[q.Domain]+delta, 0, cat.Thresholds.MaxDomainScore)
	}
	for _, f := range cat.Flags {
		if len(f.When) == 0 || !All(f.When, rec) {
			continue
		}
		if f.Level == catalog.FlagCritical {
			r.critical[f.ID] = true
		} else {
			r.moderate[f.ID] = true
		}
	}
}

// profile builds the risk profile. Patterns are filled in by the caller.
func (r *riskState) profile(th catalog.Thresholds) RiskProfile {
	scores := make(map[string]float64, len(r.buckets))
	var maxBucket float64
	for k, v := range r.buckets {
		scores[k] = v
		if v > maxBucket {
			maxBucket = v
		}
	}
	overall := Overall(scores, len(r.critical), len(r.moderate), th)
	return RiskProfile{
		DomainScores:  scores,
		Overall:       overall,
		Tier:          Classify(overall, maxBucket, len(r.critical), th),
		CriticalFlags: sortedKeys(r.critical),
		ModerateFlags: sortedKeys(r.moderate),
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
