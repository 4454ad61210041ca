package assessment

import (
	"time"

	"github.com/onboard/onboard/internal/domain/catalog"
)

// Phase of the flow state machine. Escalations are a side channel and do
// not change the phase.
type Phase string

const (
	PhaseTriage      Phase = "triage"
	PhaseDomainQueue Phase = "domain_queue"
	PhaseValidation  Phase = "validation"
	PhaseComplete    Phase = "complete"
	PhaseError       Phase = "error"
)

// NextStep is what the host shows after an answer. Exactly one field is set.
type NextStep struct {
	Question   *QuestionStep   `json:"question,omitempty"`
	Transition *TransitionStep `json:"domain_transition,omitempty"`
	Complete   *CompleteStep   `json:"complete,omitempty"`
}

type QuestionStep struct {
	Question             *catalog.Question `json:"question"`
	Progress             int               `json:"progress"`
	TimeRemainingMinutes int               `json:"time_remaining_minutes"`
	SupportMessage       string            `json:"support_message,omitempty"`
}

// TransitionStep announces a new domain. Next is the first question of that
// domain.
type TransitionStep struct {
	Domain  *catalog.Domain `json:"domain"`
	Message string          `json:"message"`
	Next    *QuestionStep   `json:"next"`
}

type CompleteStep struct {
	Result *AssessmentResult `json:"result"`
}

// Position is an interrupted point in the flow.
type Position struct {
	Domain string `json:"domain"`
	Layer  int    `json:"layer"`
}

// SessionState is a read-only snapshot of a session for hosts.
type SessionState struct {
	SessionID        string            `json:"session_id"`
	UserID           string            `json:"user_id"`
	CatalogVersion   string            `json:"catalog_version"`
	Phase            Phase             `json:"phase"`
	CurrentDomain    string            `json:"current_domain,omitempty"`
	CurrentLayer     string            `json:"current_layer,omitempty"`
	CurrentQuestion  string            `json:"current_question,omitempty"`
	TriageComplete   bool              `json:"triage_complete"`
	TerminalPhase    bool              `json:"terminal_phase"`
	CompletedDomains []string          `json:"completed_domains"`
	SkippedDomains   []string          `json:"skipped_domains"`
	Queue            []QueueEntry      `json:"queue"`
	Interrupted      []Position        `json:"interrupted"`
	HiddenQuestions  []string          `json:"hidden_questions"`
	Answers          map[string]any    `json:"answers"`
	History          []Entry           `json:"history"`
	Risk             RiskProfile       `json:"risk"`
	FraudScore       float64           `json:"fraud_score"`
	Warnings         []Warning         `json:"warnings"`
	Escalations      []EscalationEvent `json:"escalations"`
	Progress         int               `json:"progress"`
	StartedAt        time.Time         `json:"started_at"`
}

// PathwayScore is the breakdown of one scored workflow.
type PathwayScore struct {
	ID       string  `json:"id"`
	Score    float64 `json:"score"`
	Segment  float64 `json:"segment"`
	History  float64 `json:"history"`
	Resource float64 `json:"resource"`
	Outcome  float64 `json:"outcome"`
}

// PathwaySelection is the outcome of pathway selection.
type PathwaySelection struct {
	Primary         string         `json:"primary"`
	Fallbacks       []string       `json:"fallbacks"`
	Scores          []PathwayScore `json:"scores"`
	Forced          bool           `json:"forced,omitempty"`
	Recommendations []string       `json:"recommendations"`
	NextSteps       []string       `json:"next_steps"`
}

// PathwayChooser selects a pathway for a finished or partial assessment.
// forced names a pathway imposed by an immediate escalation, or is empty.
type PathwayChooser func(risk RiskProfile, rec *Record, forced string) (*PathwaySelection, error)
