package catalog

// Thresholds centralizes the scoring constants of a catalog version. Zero
// fields fall back to DefaultThresholds.
type Thresholds struct {
	MaxDomainScore       float64 `yaml:"max_domain_score,omitempty"`
	HighOverall          float64 `yaml:"high_overall,omitempty"`
	HighDomain           float64 `yaml:"high_domain,omitempty"`
	ModerateOverall      float64 `yaml:"moderate_overall,omitempty"`
	ModerateDomain       float64 `yaml:"moderate_domain,omitempty"`
	CriticalMultiplier   float64 `yaml:"critical_multiplier,omitempty"`
	ModerateMultiplier   float64 `yaml:"moderate_multiplier,omitempty"`
	ModerateFlagCount    int     `yaml:"moderate_flag_count,omitempty"`
	MissingCriteriaDecay float64 `yaml:"missing_criteria_decay,omitempty"`
	PrioritizeBoost      int     `yaml:"prioritize_boost,omitempty"`
	SecondsPerQuestion   int     `yaml:"seconds_per_question,omitempty"`
	SensitiveEmotional   float64 `yaml:"sensitive_emotional,omitempty"`
	MaxFraudScore        float64 `yaml:"max_fraud_score,omitempty"`
	RevisionFraudDelta   float64 `yaml:"revision_fraud_delta,omitempty"`
	HistoryPriorSamples  int     `yaml:"history_prior_samples,omitempty"`
	StraightlineMin      int     `yaml:"straightline_min,omitempty"`
	RevisionPatternMin   int     `yaml:"revision_pattern_min,omitempty"`
}

// DefaultThresholds returns the baseline threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxDomainScore:       100,
		HighOverall:          70,
		HighDomain:           25,
		ModerateOverall:      40,
		ModerateDomain:       15,
		CriticalMultiplier:   2,
		ModerateMultiplier:   1.5,
		ModerateFlagCount:    2,
		MissingCriteriaDecay: 0.5,
		PrioritizeBoost:      100,
		SecondsPerQuestion:   20,
		SensitiveEmotional:   0.7,
		MaxFraudScore:        100,
		RevisionFraudDelta:   5,
		HistoryPriorSamples:  20,
		StraightlineMin:      5,
		RevisionPatternMin:   3,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MaxDomainScore == 0 {
		t.MaxDomainScore = d.MaxDomainScore
	}
	if t.HighOverall == 0 {
		t.HighOverall = d.HighOverall
	}
	if t.HighDomain == 0 {
		t.HighDomain = d.HighDomain
	}
	if t.ModerateOverall == 0 {
		t.ModerateOverall = d.ModerateOverall
	}
	if t.ModerateDomain == 0 {
		t.ModerateDomain = d.ModerateDomain
	}
	if t.CriticalMultiplier == 0 {
		t.CriticalMultiplier = d.CriticalMultiplier
	}
	if t.ModerateMultiplier == 0 {
		t.ModerateMultiplier = d.ModerateMultiplier
	}
	if t.ModerateFlagCount == 0 {
		t.ModerateFlagCount = d.ModerateFlagCount
	}
	if t.MissingCriteriaDecay == 0 {
		t.MissingCriteriaDecay = d.MissingCriteriaDecay
	}
	if t.PrioritizeBoost == 0 {
		t.PrioritizeBoost = d.PrioritizeBoost
	}
	if t.SecondsPerQuestion == 0 {
		t.SecondsPerQuestion = d.SecondsPerQuestion
	}
	if t.SensitiveEmotional == 0 {
		t.SensitiveEmotional = d.SensitiveEmotional
	}
	if t.MaxFraudScore == 0 {
		t.MaxFraudScore = d.MaxFraudScore
	}
	if t.RevisionFraudDelta == 0 {
		t.RevisionFraudDelta = d.RevisionFraudDelta
	}
	if t.HistoryPriorSamples == 0 {
		t.HistoryPriorSamples = d.HistoryPriorSamples
	}
	if t.StraightlineMin == 0 {
		t.StraightlineMin = d.StraightlineMin
	}
	if t.RevisionPatternMin == 0 {
		t.RevisionPatternMin = d.RevisionPatternMin
	}
	return t
}
