package onboarding

import (
	"errors"
	"time"

	"github.com/onboard/onboard/internal/domain/assessment"
	"github.com/onboard/onboard/internal/domain/catalog"
	"github.com/onboard/onboard/internal/domain/pathway"
)

var (
	ErrSessionNotFound = errors.New("assessment session not found")
	// ErrNotComplete is returned when the result of a running session is
	// requested.
	ErrNotComplete = errors.New("assessment session not complete")
	// ErrInvalidRequest wraps caller mistakes that no retry can fix.
	ErrInvalidRequest = errors.New("invalid request")
)

// SessionRecord is what the session store keeps for one assessment. The
// ordered answers fully determine the session; State is a convenience copy
// for readers and for sessions that already completed. Profile is the user
// profile read at start; pathways are always matched against it.
type SessionRecord struct {
	SessionID        string                       `json:"session_id"`
	UserID           string                       `json:"user_id"`
	CatalogVersion   string                       `json:"catalog_version"`
	Questionnaire    catalog.QuestionnaireConfig  `json:"questionnaire"`
	PreRoutedPathway string                       `json:"pre_routed_pathway,omitempty"`
	Channel          string                       `json:"channel,omitempty"`
	Profile          *pathway.Profile             `json:"profile,omitempty"`
	Answers          []assessment.Answer          `json:"answers"`
	State            *assessment.SessionState     `json:"state,omitempty"`
	Result           *assessment.AssessmentResult `json:"result,omitempty"`
	StartedAt        time.Time                    `json:"started_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

// Completed reports whether the session produced a result.
func (r *SessionRecord) Completed() bool { return r.Result != nil }

type StartRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
}

// StartResult is returned when a session is created.
type StartResult struct {
	SessionID        string                      `json:"session_id"`
	CatalogVersion   string                      `json:"catalog_version"`
	Questionnaire    catalog.QuestionnaireConfig `json:"questionnaire"`
	PreRoutedPathway string                      `json:"pre_routed_pathway,omitempty"`
	Step             *assessment.NextStep        `json:"step"`
}

type AnswerRequest struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"value"`
}
