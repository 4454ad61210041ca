package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onboard/onboard/internal/domain/assessment"
	"github.com/onboard/onboard/internal/domain/catalog"
	"github.com/onboard/onboard/internal/domain/pathway"
	"github.com/onboard/onboard/internal/platform/results"
)

// ResultQueue accepts completed results for asynchronous persistence.
type ResultQueue interface {
	Enqueue(r *assessment.AssessmentResult)
}

// ResultReader reads persisted results.
type ResultReader interface {
	Get(ctx context.Context, sessionID string) (*assessment.AssessmentResult, error)
	List(ctx context.Context, f results.Filter, limit, offset int) ([]*assessment.AssessmentResult, int, error)
}

// Options configures a Service.
type Options struct {
	// PreRouting selects a pathway from the profile before the first
	// question and runs the questionnaire the way that pathway asks.
	PreRouting bool
	// IdleTTL bounds how long an untouched session stays in memory. The
	// store keeps it longer and it is rebuilt by replay on next use.
	IdleTTL time.Duration
	// OnEscalation is called for each escalation raised, after it is
	// logged. It runs under the session lock and must not block.
	OnEscalation func(sessionID, userID string, ev assessment.EscalationEvent)
	Now          func() time.Time
	NewID        func() string
}

type liveSession struct {
	mu       sync.Mutex
	sess     *assessment.Session
	rec      *SessionRecord
	lastUsed time.Time
	gone     bool
}

// Service runs assessment sessions. Calls on one session are serialized;
// different sessions proceed independently.
type Service struct {
	catalogs catalog.Provider
	profiles ProfileProvider
	store    SessionStore
	queue    ResultQueue
	results  ResultReader
	logger   zerolog.Logger
	opts     Options

	mu       sync.Mutex
	sessions map[string]*liveSession
}

func NewService(
	catalogs catalog.Provider,
	profiles ProfileProvider,
	store SessionStore,
	queue ResultQueue,
	reader ResultReader,
	logger zerolog.Logger,
	opts Options,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	return &Service{
		catalogs: catalogs,
		profiles: profiles,
		store:    store,
		queue:    queue,
		results:  reader,
		logger:   logger.With().Str("component", "onboarding").Logger(),
		opts:     opts,
		sessions: make(map[string]*liveSession),
	}
}

// Start creates a session for userID positioned on the first triage
// question.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	cat, err := s.catalogs.Latest(ctx)
	if err != nil {
		return nil, &assessment.ConfigError{Reason: "load catalog", Err: err}
	}
	profile := s.profile(ctx, req.UserID)

	rec := &SessionRecord{
		SessionID: s.opts.NewID(),
		UserID:    req.UserID,
		Channel:   req.Channel,
		StartedAt: s.opts.Now().UTC(),
		Profile:   &profile,
	}
	if s.opts.PreRouting {
		w, err := pathway.NewSelector(cat).PreRoute(profile, selectionContext(rec))
		if err != nil {
			return nil, err
		}
		rec.PreRoutedPathway = w.ID
		rec.Questionnaire = w.Questionnaire
		cat = s.variant(ctx, cat, w)
	}
	rec.CatalogVersion = cat.Version

	sess, err := assessment.NewSession(cat, s.sessionConfig(cat, rec))
	if err != nil {
		return nil, err
	}

	ls := &liveSession{sess: sess, rec: rec, lastUsed: s.opts.Now()}
	s.save(ctx, ls)
	s.mu.Lock()
	s.sessions[rec.SessionID] = ls
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", rec.SessionID).
		Str("user_id", rec.UserID).
		Str("catalog_version", rec.CatalogVersion).
		Str("pre_routed_pathway", rec.PreRoutedPathway).
		Msg("assessment started")

	return &StartResult{
		SessionID:        rec.SessionID,
		CatalogVersion:   rec.CatalogVersion,
		Questionnaire:    rec.Questionnaire,
		PreRoutedPathway: rec.PreRoutedPathway,
		Step:             sess.Current(),
	}, nil
}

// SubmitAnswer records one answer and returns the next step. An
// *assessment.InputError comes back together with the re-asked question.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, questionID string, value any) (*assessment.NextStep, error) {
	ls, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer ls.mu.Unlock()

	if ls.sess == nil {
		return nil, assessment.ErrSessionClosed
	}
	fired := len(ls.sess.Escalations())

	step, err := ls.sess.Submit(questionID, value)
	if err != nil {
		var ie *assessment.InputError
		if errors.As(err, &ie) {
			return step, err
		}
		var ce *assessment.ConfigError
		if errors.As(err, &ce) {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("assessment failed")
			s.save(ctx, ls)
		}
		return nil, err
	}

	for _, ev := range ls.sess.Escalations()[fired:] {
		s.logger.Warn().
			Str("session_id", sessionID).
			Str("user_id", ls.rec.UserID).
			Str("rule_id", ev.RuleID).
			Str("timing", string(ev.Timing)).
			Str("pathway", ev.Pathway).
			Float64("confidence", ev.Confidence).
			Msg("escalation raised")
		if s.opts.OnEscalation != nil {
			s.opts.OnEscalation(sessionID, ls.rec.UserID, ev)
		}
	}

	if step.Complete != nil {
		res := step.Complete.Result
		ls.rec.State = ls.sess.Snapshot()
		ls.rec.Answers = answersOf(ls.rec.State.History)
		ls.rec.Result = res
		ls.sess = nil
		s.queue.Enqueue(res)
		s.logger.Info().
			Str("session_id", sessionID).
			Str("tier", string(res.Tier)).
			Str("pathway", res.PathwayID).
			Float64("fraud_score", res.FraudScore).
			Msg("assessment completed")
	}
	s.save(ctx, ls)
	return step, nil
}

// Snapshot returns the current state of a session, running or completed.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*assessment.SessionState, error) {
	ls, err := s.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer ls.mu.Unlock()
	if ls.sess != nil {
		return ls.sess.Snapshot(), nil
	}
	if ls.rec.State == nil {
		return nil, ErrSessionNotFound
	}
	return ls.rec.State, nil
}

// Owner returns the user a session belongs to.
func (s *Service) Owner(ctx context.Context, sessionID string) (string, error) {
	ls, err := s.acquire(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer ls.mu.Unlock()
	return ls.rec.UserID, nil
}

// Abandon discards a session. Nothing is persisted for it. The record is
// deleted under the session lock so calls queued behind it find nothing to
// rebuild.
func (s *Service) Abandon(ctx context.Context, sessionID string) error {
	ls, err := s.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		ls.mu.Unlock()
		return err
	}
	ls.gone = true
	ls.sess = nil
	ls.mu.Unlock()

	s.mu.Lock()
	if s.sessions[sessionID] == ls {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	s.logger.Info().Str("session_id", sessionID).Msg("assessment abandoned")
	return nil
}

// Result returns the result of a completed session, from the session store
// while it is still there and from the results sink afterwards.
func (s *Service) Result(ctx context.Context, sessionID string) (*assessment.AssessmentResult, error) {
	ls, err := s.acquire(ctx, sessionID)
	switch {
	case err == nil:
		defer ls.mu.Unlock()
		if ls.rec.Result == nil {
			return nil, ErrNotComplete
		}
		return ls.rec.Result, nil
	case !errors.Is(err, ErrSessionNotFound):
		return nil, err
	}

	res, err := s.results.Get(ctx, sessionID)
	if errors.Is(err, results.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return res, err
}

func (s *Service) ListResults(ctx context.Context, f results.Filter, limit, offset int) ([]*assessment.AssessmentResult, int, error) {
	return s.results.List(ctx, f, limit, offset)
}

// Run evicts idle sessions from memory until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug().Int("evicted", n).Msg("idle sessions evicted")
			}
		}
	}
}

// Sweep drops sessions untouched for IdleTTL from memory and returns how
// many it dropped. Sessions busy with a request are kept.
func (s *Service) Sweep() int {
	cutoff := s.opts.Now().Add(-s.opts.IdleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, ls := range s.sessions {
		if ls.lastUsed.After(cutoff) || !ls.mu.TryLock() {
			continue
		}
		ls.gone = true
		ls.mu.Unlock()
		delete(s.sessions, id)
		n++
	}
	return n
}

// Live returns the number of sessions held in memory.
func (s *Service) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// acquire returns the session locked. Sessions not in memory are rebuilt
// from the store by replaying their answers.
func (s *Service) acquire(ctx context.Context, sessionID string) (*liveSession, error) {
	for {
		s.mu.Lock()
		ls, ok := s.sessions[sessionID]
		if !ok {
			ls = &liveSession{}
			s.sessions[sessionID] = ls
		}
		ls.lastUsed = s.opts.Now()
		s.mu.Unlock()

		ls.mu.Lock()
		if ls.gone {
			// Evicted or abandoned while we waited.
			ls.mu.Unlock()
			if !ok {
				return nil, ErrSessionNotFound
			}
			continue
		}
		if ls.rec != nil {
			return ls, nil
		}
		if err := s.rebuild(ctx, ls, sessionID); err != nil {
			ls.gone = true
			ls.mu.Unlock()
			s.mu.Lock()
			if s.sessions[sessionID] == ls {
				delete(s.sessions, sessionID)
			}
			s.mu.Unlock()
			return nil, err
		}
		return ls, nil
	}
}

func (s *Service) rebuild(ctx context.Context, ls *liveSession, sessionID string) error {
	rec, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if rec.Completed() {
		ls.rec = rec
		return nil
	}
	cat, err := s.catalogs.Get(ctx, rec.CatalogVersion)
	if err != nil {
		return &assessment.ConfigError{Reason: "load catalog " + rec.CatalogVersion, Err: err}
	}
	if rec.Profile == nil {
		p := s.profile(ctx, rec.UserID)
		rec.Profile = &p
	}
	sess, err := assessment.Replay(cat, s.sessionConfig(cat, rec), rec.Answers)
	if err != nil {
		return fmt.Errorf("rebuild session %s: %w", sessionID, err)
	}
	ls.sess = sess
	ls.rec = rec
	s.logger.Debug().Str("session_id", sessionID).Int("answers", len(rec.Answers)).Msg("session rebuilt by replay")
	return nil
}

// sessionConfig builds the engine config for rec. Pathways are chosen
// against the profile and clock captured at Start, so a session rebuilt
// later selects exactly as the original would have.
func (s *Service) sessionConfig(cat *catalog.Catalog, rec *SessionRecord) assessment.Config {
	var profile pathway.Profile
	if rec.Profile != nil {
		profile = *rec.Profile
	}
	return assessment.Config{
		SessionID:     rec.SessionID,
		UserID:        rec.UserID,
		Questionnaire: rec.Questionnaire,
		Chooser:       pathway.NewSelector(cat).Chooser(profile, selectionContext(rec)),
		Now:           s.opts.Now,
		StartedAt:     rec.StartedAt,
	}
}

func selectionContext(rec *SessionRecord) pathway.Context {
	return pathway.Context{Now: rec.StartedAt, Channel: rec.Channel}
}

// variant returns the catalog variant a pre-routed pathway asks for, or cat
// when the variant is not loaded.
func (s *Service) variant(ctx context.Context, cat *catalog.Catalog, w *catalog.Workflow) *catalog.Catalog {
	v := w.Questionnaire.Variant
	if v == "" || v == cat.Version {
		return cat
	}
	alt, err := s.catalogs.Get(ctx, v)
	if err != nil {
		s.logger.Warn().Err(err).Str("pathway", w.ID).Str("variant", v).Msg("catalog variant unavailable, using latest")
		return cat
	}
	return alt
}

func (s *Service) profile(ctx context.Context, userID string) pathway.Profile {
	p, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("profile unavailable, matching without it")
		return pathway.Profile{UserID: userID}
	}
	return p
}

// save writes the record with the current answers and state. Failures are
// logged; the in-memory session stays authoritative while it is live.
func (s *Service) save(ctx context.Context, ls *liveSession) {
	rec := ls.rec
	if ls.sess != nil {
		rec.State = ls.sess.Snapshot()
		rec.Answers = answersOf(rec.State.History)
	}
	rec.UpdatedAt = s.opts.Now().UTC()
	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("session_id", rec.SessionID).Msg("failed to save session")
	}
}

func answersOf(history []assessment.Entry) []assessment.Answer {
	out := make([]assessment.Answer, len(history))
	for i, e := range history {
		out[i] = assessment.Answer{QuestionID: e.QuestionID, Value: e.Value}
	}
	return out
}
