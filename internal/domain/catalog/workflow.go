package catalog

// Tier is the coarse severity classification of overall risk.
type Tier string

const (
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

var tierRanks = map[Tier]int{TierLow: 0, TierModerate: 1, TierHigh: 2, TierCritical: 3}

// Rank orders tiers from low (0) to critical (3). Unknown tiers rank -1.
func (t Tier) Rank() int {
	r, ok := tierRanks[t]
	if !ok {
		return -1
	}
	return r
}

// Fraud monitoring levels.
const (
	MonitoringLow      = "low"
	MonitoringStandard = "standard"
	MonitoringStrict   = "strict"
)

// Workflow is a care pathway candidate.
type Workflow struct {
	ID              string              `yaml:"id" json:"id"`
	Name            string              `yaml:"name" json:"name"`
	When            []Rule              `yaml:"when,omitempty" json:"-"`
	Tiers           []Tier              `yaml:"tiers,omitempty" json:"tiers,omitempty"`
	EscalationOnly  bool                `yaml:"escalation_only,omitempty" json:"escalation_only,omitempty"`
	Segments        []Segment           `yaml:"segments,omitempty" json:"-"`
	Questionnaire   QuestionnaireConfig `yaml:"questionnaire,omitempty" json:"questionnaire"`
	Interventions   []Intervention      `yaml:"interventions,omitempty" json:"interventions,omitempty"`
	History         History             `yaml:"history,omitempty" json:"-"`
	Targets         []SuccessMetric     `yaml:"targets,omitempty" json:"targets,omitempty"`
	Recommendations []string            `yaml:"recommendations,omitempty" json:"-"`
}

// IsDefault reports whether the workflow is applicable to every session.
func (w *Workflow) IsDefault() bool {
	return !w.EscalationOnly && len(w.When) == 0 && len(w.Tiers) == 0
}

// Segment is a target user group with a weight in [0,1].
type Segment struct {
	ID       string          `yaml:"id"`
	Weight   float64         `yaml:"weight"`
	Criteria SegmentCriteria `yaml:"criteria,omitempty"`
}

// SegmentCriteria groups matching criteria per profile dimension. A nil
// category places no constraint on that dimension.
type SegmentCriteria struct {
	Demographic *DemographicCriteria `yaml:"demographic,omitempty"`
	Behavioral  *BehavioralCriteria  `yaml:"behavioral,omitempty"`
	Clinical    *ClinicalCriteria    `yaml:"clinical,omitempty"`
	Temporal    *TemporalCriteria    `yaml:"temporal,omitempty"`
}

type DemographicCriteria struct {
	AgeMin  int      `yaml:"age_min,omitempty"`
	AgeMax  int      `yaml:"age_max,omitempty"`
	Sexes   []string `yaml:"sexes,omitempty"`
	Regions []string `yaml:"regions,omitempty"`
}

type BehavioralCriteria struct {
	MinEngagement     float64  `yaml:"min_engagement,omitempty"`
	MinCompletionRate float64  `yaml:"min_completion_rate,omitempty"`
	Channels          []string `yaml:"channels,omitempty"`
}

type ClinicalCriteria struct {
	Conditions []string `yaml:"conditions,omitempty"`
	Tiers      []Tier   `yaml:"tiers,omitempty"`
	MinOverall float64  `yaml:"min_overall,omitempty"`
}

type TemporalCriteria struct {
	StartHour int      `yaml:"start_hour,omitempty"`
	EndHour   int      `yaml:"end_hour,omitempty"`
	Weekdays  []string `yaml:"weekdays,omitempty"`
}

// QuestionnaireConfig is how a pathway wants the questionnaire run when it
// is selected before the assessment starts.
type QuestionnaireConfig struct {
	Variant          string `yaml:"variant,omitempty" json:"variant,omitempty"`
	Branching        *bool  `yaml:"branching,omitempty" json:"branching,omitempty"`
	EmotionalSupport bool   `yaml:"emotional_support,omitempty" json:"emotional_support,omitempty"`
	FraudMonitoring  string `yaml:"fraud_monitoring,omitempty" json:"fraud_monitoring,omitempty"`
	Rigor            string `yaml:"rigor,omitempty" json:"rigor,omitempty"`
}

// BranchingEnabled defaults to true.
func (q QuestionnaireConfig) BranchingEnabled() bool {
	return q.Branching == nil || *q.Branching
}

// FraudMultiplier scales contradiction deltas by monitoring level.
func (q QuestionnaireConfig) FraudMultiplier() float64 {
	switch q.FraudMonitoring {
	case MonitoringLow:
		return 0.5
	case MonitoringStrict:
		return 1.5
	default:
		return 1
	}
}

// Intervention is a care action offered by a pathway.
type Intervention struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Timing    string   `yaml:"timing" json:"timing"`
	When      []Rule   `yaml:"when,omitempty" json:"-"`
	Resources []string `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// History is the observed performance of a pathway.
type History struct {
	SuccessRate float64 `yaml:"success_rate"`
	SampleSize  int     `yaml:"sample_size"`
}

// SuccessMetric is a target the pathway is measured against.
type SuccessMetric struct {
	Metric string  `yaml:"metric" json:"metric"`
	Target float64 `yaml:"target" json:"target"`
}
