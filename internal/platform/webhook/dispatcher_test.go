package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestSignPayload_Deterministic(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	sig1 := SignPayload(payload, "secret")
	sig2 := SignPayload(payload, "secret")
	if sig1 != sig2 {
		t.Errorf("signatures differ: %s vs %s", sig1, sig2)
	}
	if len(sig1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(sig1))
	}
	if SignPayload(payload, "other") == sig1 {
		t.Error("different secrets produced the same signature")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sig := SignPayload(payload, "s3cret")
	if !VerifySignature(payload, "s3cret", sig) {
		t.Error("expected valid signature")
	}
	if VerifySignature(payload, "wrong", sig) {
		t.Error("expected invalid signature with wrong secret")
	}
	if VerifySignature([]byte(`{"a":2}`), "s3cret", sig) {
		t.Error("expected invalid signature for tampered payload")
	}
}

func TestNewDispatcher_ValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/hook", "://bad"} {
		if _, err := NewDispatcher(raw, "s", zerolog.Nop()); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
	if _, err := NewDispatcher("https://example.com/hook", "s", zerolog.Nop()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeliver_SignsPayload(t *testing.T) {
	var (
		mu      sync.Mutex
		body    []byte
		headers http.Header
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	d, err := NewDispatcher(ts.URL, "topsecret", zerolog.Nop(), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	ev := Event{ID: "evt-1", Type: EventEscalationRaised, Timestamp: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), Data: map[string]string{"rule_id": "cardiac_emergency"}}
	if err := d.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	sig := strings.TrimPrefix(headers.Get("X-Webhook-Signature"), "sha256=")
	if !VerifySignature(body, "topsecret", sig) {
		t.Error("signature does not verify against delivered body")
	}
	if got := headers.Get("X-Webhook-Event"); got != EventEscalationRaised {
		t.Errorf("X-Webhook-Event = %q", got)
	}
	var decoded Event
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.ID != "evt-1" || decoded.Type != EventEscalationRaised {
		t.Errorf("unexpected event %+v", decoded)
	}
}

func TestDeliver_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d, _ := NewDispatcher(ts.URL, "s", zerolog.Nop(),
		WithHTTPClient(ts.Client()), WithRetryDelays(time.Millisecond, time.Millisecond, time.Millisecond))
	if err := d.Deliver(context.Background(), Event{ID: "e", Type: EventResultAbandoned}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestDeliver_GivesUp(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	d, _ := NewDispatcher(ts.URL, "s", zerolog.Nop(),
		WithHTTPClient(ts.Client()), WithRetryDelays(time.Millisecond))
	err := d.Deliver(context.Background(), Event{ID: "e", Type: EventResultAbandoned})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected non-2xx error, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 calls, got %d", n)
	}
}

func TestPublish_DropsWhenFull(t *testing.T) {
	d, _ := NewDispatcher("http://127.0.0.1:1/hook", "s", zerolog.Nop(), WithQueueSize(1))
	if !d.Publish(EventEscalationRaised, nil) {
		t.Fatal("first publish should be queued")
	}
	if d.Publish(EventEscalationRaised, nil) {
		t.Error("second publish should be dropped")
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", d.Dropped())
	}
}

func TestRun_DeliversQueuedEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	got := make(chan string, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d, _ := NewDispatcher(ts.URL, "s", zerolog.Nop(), WithHTTPClient(ts.Client()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Publish(EventResultAbandoned, map[string]string{"session_id": "s1"})
	select {
	case typ := <-got:
		if typ != EventResultAbandoned {
			t.Errorf("event type = %q", typ)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	ts.Client().CloseIdleConnections()
}
