package assessment

import (
	"errors"
	"time"

	"github.com/onboard/onboard/internal/domain/catalog"
)

// AssessmentResult is the terminal output of a session, handed to the
// results sink.
type AssessmentResult struct {
	SessionID       string             `json:"session_id"`
	UserID          string             `json:"user_id"`
	CatalogVersion  string             `json:"catalog_version"`
	Answers         map[string]any     `json:"answers"`
	History         []Entry            `json:"history"`
	DomainScores    map[string]float64 `json:"domain_scores"`
	OverallScore    float64            `json:"overall_score"`
	Tier            catalog.Tier       `json:"tier"`
	CriticalFlags   []string           `json:"critical_flags"`
	ModerateFlags   []string           `json:"moderate_flags"`
	Patterns        []Pattern          `json:"patterns"`
	FraudScore      float64            `json:"fraud_score"`
	Warnings        []Warning          `json:"warnings"`
	Escalations     []EscalationEvent  `json:"escalations"`
	PathwayID       string             `json:"pathway_id"`
	Fallbacks       []string           `json:"fallbacks"`
	PathwayScores   []PathwayScore     `json:"pathway_scores"`
	Recommendations []string           `json:"recommendations"`
	NextSteps       []string           `json:"next_steps"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     time.Time          `json:"completed_at"`
}

// synthesize scores the finished session and selects its pathway.
func (s *Session) synthesize() (*AssessmentResult, error) {
	risk := s.riskProfile()
	sel, err := s.cfg.Chooser(risk, s.rec, s.forced)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ConfigError{Reason: "pathway selection failed", Err: err}
	}

	recs := append([]string{}, sel.Recommendations...)
	for _, p := range risk.Patterns {
		recs = append(recs, p.Recommendation)
	}

	return &AssessmentResult{
		SessionID:       s.cfg.SessionID,
		UserID:          s.cfg.UserID,
		CatalogVersion:  s.cat.Version,
		Answers:         s.rec.Answers(),
		History:         s.rec.History(),
		DomainScores:    risk.DomainScores,
		OverallScore:    risk.Overall,
		Tier:            risk.Tier,
		CriticalFlags:   risk.CriticalFlags,
		ModerateFlags:   risk.ModerateFlags,
		Patterns:        risk.Patterns,
		FraudScore:      s.fraud,
		Warnings:        append([]Warning{}, s.warnings...),
		Escalations:     s.Escalations(),
		PathwayID:       sel.Primary,
		Fallbacks:       append([]string{}, sel.Fallbacks...),
		PathwayScores:   append([]PathwayScore{}, sel.Scores...),
		Recommendations: dedupe(recs),
		NextSteps:       dedupe(sel.NextSteps),
		StartedAt:       s.startedAt,
		CompletedAt:     s.now().UTC(),
	}, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
