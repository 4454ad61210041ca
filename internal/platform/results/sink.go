package results

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/onboard/onboard/internal/domain/assessment"
)

// ErrNotFound is returned by Get when no result is stored for a session.
var ErrNotFound = errors.New("assessment result not found")

// Sink stores finished assessment results. Persist is an upsert keyed by
// session id, so a retried delivery never duplicates a result.
type Sink interface {
	Persist(ctx context.Context, r *assessment.AssessmentResult) error
	Get(ctx context.Context, sessionID string) (*assessment.AssessmentResult, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*assessment.AssessmentResult, int, error)
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	UserID    string
	Tier      string
	PathwayID string
}

func (f Filter) match(r *assessment.AssessmentResult) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Tier != "" && string(r.Tier) != f.Tier {
		return false
	}
	if f.PathwayID != "" && r.PathwayID != f.PathwayID {
		return false
	}
	return true
}

// MemorySink keeps results in process. It backs development mode and tests.
type MemorySink struct {
	mu      sync.RWMutex
	results map[string]*assessment.AssessmentResult
}

func NewMemorySink() *MemorySink {
	return &MemorySink{results: make(map[string]*assessment.AssessmentResult)}
}

func (m *MemorySink) Persist(_ context.Context, r *assessment.AssessmentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.SessionID] = r
	return nil
}

func (m *MemorySink) Get(_ context.Context, sessionID string) (*assessment.AssessmentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// List returns matching results, most recently completed first.
func (m *MemorySink) List(_ context.Context, f Filter, limit, offset int) ([]*assessment.AssessmentResult, int, error) {
	m.mu.RLock()
	var out []*assessment.AssessmentResult
	for _, r := range m.results {
		if f.match(r) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	total := len(out)
	return page(out, limit, offset), total, nil
}

func page(rs []*assessment.AssessmentResult, limit, offset int) []*assessment.AssessmentResult {
	if offset >= len(rs) {
		return []*assessment.AssessmentResult{}
	}
	rs = rs[offset:]
	if limit > 0 && limit < len(rs) {
		rs = rs[:limit]
	}
	return rs
}
