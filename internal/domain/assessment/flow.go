package assessment

import (
	"fmt"
	"math"
	"time"

	"github.com/onboard/onboard/internal/domain/catalog"
)

// Config parameterizes a session.
type Config struct {
	SessionID string
	UserID    string
	// Questionnaire is the configuration of the pathway chosen before the
	// assessment started. The zero value runs with branching on and
	// standard fraud monitoring.
	Questionnaire catalog.QuestionnaireConfig
	Chooser       PathwayChooser
	Now           func() time.Time
	// StartedAt overrides the start time, for sessions rebuilt by replay.
	StartedAt time.Time
}

// Session is the flow controller of one assessment. It owns all mutable
// state of the session; every other component is a pure function over the
// record and catalog. A Session is not safe for concurrent use.
type Session struct {
	cat    *catalog.Catalog
	cfg    Config
	router *Router
	now    func() time.Time

	rec   *Record
	risk  *riskState
	esc   *escalationTracker
	route routing

	phase      Phase
	domain     string
	layer      int
	question   string
	triageDone bool
	terminal   bool
	stack      []Position
	hidden     map[string]bool

	fraud        float64
	warnings     []Warning
	contradicted map[string]bool
	escalations  []EscalationEvent
	forced       string

	startedAt time.Time
	result    *AssessmentResult
}

// NewSession creates a session positioned on the first triage question.
func NewSession(cat *catalog.Catalog, cfg Config) (*Session, error) {
	if cat == nil {
		return nil, &ConfigError{Reason: "no catalog"}
	}
	if cfg.Chooser == nil {
		return nil, &ConfigError{Reason: "no pathway chooser"}
	}
	if cat.TerminalDomain() == nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("catalog %s has no terminal validation domain", cat.Version)}
	}
	hasDefault := false
	for i := range cat.Workflows {
		if cat.Workflows[i].IsDefault() {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		return nil, &ConfigError{Reason: fmt.Sprintf("catalog %s has no always-applicable default workflow", cat.Version)}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Session{
		cat:          cat,
		cfg:          cfg,
		router:       NewRouter(cat, cfg.Questionnaire.BranchingEnabled()),
		now:          now,
		rec:          NewRecord(),
		risk:         newRiskState(),
		esc:          newEscalationTracker(),
		route:        newRouting(),
		phase:        PhaseTriage,
		domain:       cat.Triage.ID,
		hidden:       make(map[string]bool),
		contradicted: make(map[string]bool),
		startedAt:    cfg.StartedAt,
	}
	if s.startedAt.IsZero() {
		s.startedAt = now().UTC()
	}
	if _, err := s.advance(s.domain, ""); err != nil {
		return nil, err
	}
	return s, nil
}

// Replay rebuilds a session by submitting answers in order against a fresh
// session. The same answers always produce the same state.
func Replay(cat *catalog.Catalog, cfg Config, answers []Answer) (*Session, error) {
	s, err := NewSession(cat, cfg)
	if err != nil {
		return nil, err
	}
	for i, a := range answers {
		if _, err := s.Submit(a.QuestionID, a.Value); err != nil {
			return nil, fmt.Errorf("replay answer %d (%s): %w", i+1, a.QuestionID, err)
		}
	}
	return s, nil
}

func (s *Session) ID() string                { return s.cfg.SessionID }
func (s *Session) UserID() string            { return s.cfg.UserID }
func (s *Session) Phase() Phase              { return s.phase }
func (s *Session) Catalog() *catalog.Catalog { return s.cat }
func (s *Session) Result() *AssessmentResult { return s.result }
func (s *Session) StartedAt() time.Time      { return s.startedAt }

// Escalations returns every fired escalation in order.
func (s *Session) Escalations() []EscalationEvent {
	out := make([]EscalationEvent, len(s.escalations))
	copy(out, s.escalations)
	return out
}

// Closed reports whether the session reached a terminal phase.
func (s *Session) Closed() bool {
	return s.phase == PhaseComplete || s.phase == PhaseError
}

// Current returns the pending step without changing state.
func (s *Session) Current() *NextStep {
	if s.phase == PhaseComplete {
		return &NextStep{Complete: &CompleteStep{Result: s.result}}
	}
	q, ok := s.cat.Question(s.question)
	if !ok {
		return nil
	}
	return &NextStep{Question: s.questionStep(q)}
}

// Submit records an answer and returns the next step. The answer must be for
// the current question or correct an earlier one. On an InputError nothing
// changes and the returned step asks the current question again.
func (s *Session) Submit(questionID string, raw any) (*NextStep, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	q, ok := s.cat.Question(questionID)
	if !ok {
		return s.Current(), inputErrorf(questionID, "unknown question")
	}
	if questionID != s.question && !s.rec.Answered(questionID) {
		return s.Current(), inputErrorf(questionID, "not the current question")
	}
	value, err := ValidateAnswer(q, raw)
	if err != nil {
		return s.Current(), err
	}

	prevDomain := s.domain
	entry := s.rec.Append(questionID, value)
	s.risk.apply(s.cat, q, value, s.rec)

	if entry.Revision {
		s.raiseFraud(s.cat.Thresholds.RevisionFraudDelta)
	}
	for _, ct := range CheckContradictions(s.cat, s.rec, s.contradicted) {
		s.contradicted[ct.ID] = true
		delta := ct.FraudDelta * s.cfg.Questionnaire.FraudMultiplier()
		s.raiseFraud(delta)
		s.warnings = append(s.warnings, Warning{
			RuleID:     ct.ID,
			Questions:  append([]string(nil), ct.Questions...),
			Message:    ct.Message,
			FraudDelta: delta,
			Seq:        entry.Seq,
		})
	}

	if !s.terminal {
		s.router.Evaluate(&s.route, s.rec, s.active())
	}

	var notice string
	for _, ev := range s.esc.evaluate(s.cat, s.rec, entry.Seq) {
		s.escalations = append(s.escalations, ev)
		switch ev.Timing {
		case catalog.TimingImmediate:
			if s.forced == "" {
				s.forced = ev.Pathway
			}
			if s.interrupt() {
				notice = ev.Message
			}
		case catalog.TimingDeferred:
			if ev.Domain != "" && !s.terminal {
				s.router.Prioritize(&s.route, ev.Domain, s.active())
			}
		}
	}

	return s.advance(prevDomain, notice)
}

// interrupt suspends the current position and jumps to the emergency
// domain. It does nothing when that domain already ran or is running.
func (s *Session) interrupt() bool {
	em := s.cat.EmergencyDomain()
	if em == nil || s.route.completed[em.ID] || s.active()[em.ID] {
		return false
	}
	s.stack = append(s.stack, Position{Domain: s.domain, Layer: s.layer})
	s.domain = em.ID
	s.layer = 0
	s.question = ""
	return true
}

// advance moves forward until a question is available or the session
// completes. Domains with no visible question complete silently.
func (s *Session) advance(prevDomain, notice string) (*NextStep, error) {
	for {
		d, ok := s.cat.Domain(s.domain)
		if !ok {
			s.phase = PhaseError
			return nil, &ConfigError{Reason: fmt.Sprintf("unknown domain %q", s.domain)}
		}
		for s.layer < len(d.Layers) {
			l := &d.Layers[s.layer]
			q, hidden := NextQuestion(l, s.rec, s.hidden)
			for _, id := range hidden {
				s.hidden[id] = true
			}
			if q != nil {
				s.question = q.ID
				return s.present(d, q, prevDomain, notice), nil
			}
			if !s.terminal {
				s.router.Apply(&s.route, "", l.NextDomains, s.rec, s.active())
			}
			s.layer++
		}
		s.finishDomain(d)
		notice = ""

		msg, ok := s.enterNext()
		if !ok {
			return s.complete()
		}
		notice = msg
	}
}

func (s *Session) finishDomain(d *catalog.Domain) {
	s.route.completed[d.ID] = true
	s.question = ""
	if d.ID == s.cat.Triage.ID {
		s.triageDone = true
		if s.phase == PhaseTriage {
			s.phase = PhaseDomainQueue
		}
	}
}

// enterNext resumes an interrupted domain, or pulls the next queued domain.
func (s *Session) enterNext() (string, bool) {
	for len(s.stack) > 0 {
		p := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		if s.route.completed[p.Domain] {
			continue
		}
		s.domain, s.layer = p.Domain, p.Layer
		d, _ := s.cat.Domain(p.Domain)
		return "Returning to " + domainName(d), true
	}
	next := s.router.Next(&s.route)
	if next == "" {
		return "", false
	}
	s.domain, s.layer = next, 0
	if d, _ := s.cat.Domain(next); d != nil && d.Terminal {
		s.terminal = true
		s.phase = PhaseValidation
	}
	return "", true
}

func (s *Session) complete() (*NextStep, error) {
	res, err := s.synthesize()
	if err != nil {
		s.phase = PhaseError
		return nil, err
	}
	s.result = res
	s.phase = PhaseComplete
	s.domain = ""
	s.layer = 0
	s.question = ""
	return &NextStep{Complete: &CompleteStep{Result: res}}, nil
}

func (s *Session) present(d *catalog.Domain, q *catalog.Question, prevDomain, notice string) *NextStep {
	step := s.questionStep(q)
	if d.ID == prevDomain {
		return &NextStep{Question: step}
	}
	msg := notice
	if msg == "" {
		msg = d.Intro
	}
	if msg == "" {
		msg = "Next: " + domainName(d)
	}
	return &NextStep{Transition: &TransitionStep{Domain: d, Message: msg, Next: step}}
}

func (s *Session) questionStep(q *catalog.Question) *QuestionStep {
	th := s.cat.Thresholds
	step := &QuestionStep{Question: q, Progress: s.progress()}
	_, secs := s.remaining()
	step.TimeRemainingMinutes = int(math.Ceil(secs / 60))
	if s.cfg.Questionnaire.EmotionalSupport && q.EmotionalWeight >= th.SensitiveEmotional {
		step.SupportMessage = "Take your time. You can pause at any point, and your answers stay private to your care team."
	}
	return step
}

// progress is the share of answered questions over answered plus the
// estimated remainder. It only reaches 100 on completion.
func (s *Session) progress() int {
	if s.phase == PhaseComplete {
		return 100
	}
	answered := s.rec.Len()
	left, _ := s.remaining()
	if answered+left == 0 {
		return 0
	}
	p := answered * 100 / (answered + left)
	if p > 99 {
		p = 99
	}
	return p
}

// remaining estimates unanswered questions over the current domain, the
// interrupted domains, the queue and the pending validation domain, with
// the time they take. Emotionally sensitive questions take longer.
func (s *Session) remaining() (int, float64) {
	th := s.cat.Thresholds
	var count int
	var secs float64
	add := func(d *catalog.Domain, from int) {
		for li := from; li < len(d.Layers); li++ {
			for qi := range d.Layers[li].Questions {
				q := &d.Layers[li].Questions[qi]
				if s.rec.Answered(q.ID) || s.hidden[q.ID] {
					continue
				}
				count++
				cost := float64(th.SecondsPerQuestion)
				if q.EmotionalWeight >= th.SensitiveEmotional {
					cost *= 1.5
				}
				secs += cost
			}
		}
	}
	if d, ok := s.cat.Domain(s.domain); ok {
		add(d, s.layer)
	}
	for _, p := range s.stack {
		if d, ok := s.cat.Domain(p.Domain); ok {
			add(d, p.Layer)
		}
	}
	for _, e := range s.route.queue {
		if d, ok := s.cat.Domain(e.Domain); ok {
			add(d, 0)
		}
	}
	if t := s.cat.TerminalDomain(); t != nil && !s.route.terminalQueued {
		add(t, 0)
	}
	return count, secs
}

func (s *Session) active() map[string]bool {
	out := make(map[string]bool, len(s.stack)+1)
	if s.domain != "" {
		out[s.domain] = true
	}
	for _, p := range s.stack {
		out[p.Domain] = true
	}
	return out
}

func (s *Session) raiseFraud(delta float64) {
	s.fraud = clamp(s.fraud+delta, 0, s.cat.Thresholds.MaxFraudScore)
}

func (s *Session) riskProfile() RiskProfile {
	p := s.risk.profile(s.cat.Thresholds)
	p.Patterns = DetectPatterns(s.cat, s.rec)
	return p
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() *SessionState {
	st := &SessionState{
		SessionID:        s.cfg.SessionID,
		UserID:           s.cfg.UserID,
		CatalogVersion:   s.cat.Version,
		Phase:            s.phase,
		CurrentDomain:    s.domain,
		CurrentQuestion:  s.question,
		TriageComplete:   s.triageDone,
		TerminalPhase:    s.terminal,
		CompletedDomains: sortedKeys(s.route.completed),
		SkippedDomains:   sortedKeys(s.route.blocked),
		Queue:            append([]QueueEntry{}, s.route.queue...),
		Interrupted:      append([]Position{}, s.stack...),
		HiddenQuestions:  sortedKeys(s.hidden),
		Answers:          s.rec.Answers(),
		History:          s.rec.History(),
		Risk:             s.riskProfile(),
		FraudScore:       s.fraud,
		Warnings:         append([]Warning{}, s.warnings...),
		Escalations:      s.Escalations(),
		Progress:         s.progress(),
		StartedAt:        s.startedAt,
	}
	if d, ok := s.cat.Domain(s.domain); ok && s.layer < len(d.Layers) {
		st.CurrentLayer = d.Layers[s.layer].ID
	}
	return st
}

func domainName(d *catalog.Domain) string {
	if d == nil {
		return ""
	}
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
