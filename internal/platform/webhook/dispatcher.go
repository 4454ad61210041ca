// Package webhook delivers signed operator alerts to a single HTTP endpoint.
// Events are queued without blocking the caller and delivered by a
// background worker with HMAC-SHA256 signing and retries.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types published by the service.
const (
	EventEscalationRaised = "escalation.raised"
	EventResultAbandoned  = "result.abandoned"
)

// Event is the JSON body POSTed to the endpoint.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ---------------------------------------------------------------------------
// Signature helpers
// ---------------------------------------------------------------------------

// SignPayload computes an HMAC-SHA256 signature of the payload using the given secret,
// returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the HMAC-SHA256
// of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithRetryDelays sets the waits between attempts. One attempt is made per
// delay plus the first.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(d *Dispatcher) { d.retryDelays = delays }
}

// WithQueueSize bounds the number of undelivered events held in memory.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queueSize = n }
}

type Dispatcher struct {
	url         string
	secret      string
	logger      zerolog.Logger
	httpClient  *http.Client
	retryDelays []time.Duration
	queueSize   int
	queue       chan Event
	dropped     atomic.Int64
	now         func() time.Time
}

func NewDispatcher(rawURL, secret string, logger zerolog.Logger, opts ...Option) (*Dispatcher, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		url:    rawURL,
		secret: secret,
		logger: logger.With().Str("component", "webhook").Logger(),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelays: []time.Duration{1 * time.Second, 30 * time.Second, 5 * time.Minute},
		queueSize:   256,
		now:         time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	d.queue = make(chan Event, d.queueSize)
	return d, nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Publish queues an event for delivery. It never blocks; when the queue is
// full the event is dropped and false is returned.
func (d *Dispatcher) Publish(eventType string, data any) bool {
	ev := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: d.now().UTC(),
		Data:      data,
	}
	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Error().Str("event_type", eventType).Str("event_id", ev.ID).Msg("alert queue full, event dropped")
		return false
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.queue:
			if err := d.Deliver(ctx, ev); err != nil && ctx.Err() == nil {
				d.logger.Error().Err(err).Str("event_type", ev.Type).Str("event_id", ev.ID).Msg("alert delivery failed")
			}
		}
	}
}

// Deliver POSTs ev, retrying on transport errors and non-2xx responses.
func (d *Dispatcher) Deliver(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(d.retryDelays); attempt++ {
		if attempt > 0 {
			t := time.NewTimer(d.retryDelays[attempt-1])
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if lastErr = d.send(ctx, ev, payload); lastErr == nil {
			return nil
		}
		d.logger.Warn().Err(lastErr).Str("event_id", ev.ID).Int("attempt", attempt+1).Msg("alert delivery attempt failed")
	}
	return fmt.Errorf("gave up after %d attempts: %w", len(d.retryDelays)+1, lastErr)
}

func (d *Dispatcher) send(ctx context.Context, ev Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+SignPayload(payload, d.secret))
	req.Header.Set("X-Webhook-Event", ev.Type)
	req.Header.Set("X-Webhook-Timestamp", ev.Timestamp.Format(time.RFC3339))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain at most 1KB so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}
