package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SessionStore keeps session records between requests. Records expire
// after the store's TTL; an expired session counts as abandoned.
type SessionStore interface {
	Save(ctx context.Context, rec *SessionRecord) error
	Load(ctx context.Context, sessionID string) (*SessionRecord, error)
	Delete(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore is a process-local SessionStore. Records are stored encoded
// so callers never share state with the store.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Save(_ context.Context, rec *SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.SessionID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[rec.SessionID] = memoryEntry{data: data, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*SessionRecord, error) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, sessionID)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return decodeRecord(e.data)
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

// Len returns the number of stored records, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func decodeRecord(data []byte) (*SessionRecord, error) {
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &rec, nil
}
