package results

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/onboard/onboard/internal/domain/assessment"
)

// Delivery states of a queued result.
const (
	StatusPending   = "pending"
	StatusAbandoned = "abandoned"
)

type delivery struct {
	result      *assessment.AssessmentResult
	status      string
	attempts    int
	nextAttempt time.Time
	inflight    bool
	lastErr     error
}

// Persister delivers results to a Sink in the background. Enqueue never
// blocks the caller; failed deliveries are retried with exponential backoff
// and abandoned after MaxAttempts, at which point an operator alert is
// raised.
type Persister struct {
	sink   Sink
	logger zerolog.Logger
	now    func() time.Time
	wake   chan struct{}

	mu    sync.Mutex
	queue map[string]*delivery

	// MaxAttempts bounds delivery attempts per result.
	MaxAttempts int
	// RetryInterval is the poll interval and the first retry delay. Each
	// further retry doubles the delay up to MaxBackoff.
	RetryInterval time.Duration
	MaxBackoff    time.Duration
	// Alert is called once for each abandoned result.
	Alert func(sessionID string, err error)
	// OnDelivered is called after a result is stored.
	OnDelivered func(sessionID string)
}

func NewPersister(sink Sink, logger zerolog.Logger) *Persister {
	return &Persister{
		sink:          sink,
		logger:        logger,
		now:           time.Now,
		wake:          make(chan struct{}, 1),
		queue:         make(map[string]*delivery),
		MaxAttempts:   5,
		RetryInterval: 2 * time.Second,
		MaxBackoff:    5 * time.Minute,
	}
}

// Enqueue schedules r for immediate delivery. A result already queued for
// the same session is replaced.
func (p *Persister) Enqueue(r *assessment.AssessmentResult) {
	p.mu.Lock()
	p.queue[r.SessionID] = &delivery{result: r, status: StatusPending, nextAttempt: p.now()}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start runs the delivery loop. It blocks until ctx is cancelled; pending
// results are left queued for Flush.
func (p *Persister) Start(ctx context.Context) {
	ticker := time.NewTicker(p.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.deliverDue(ctx, false)
		case <-ticker.C:
			p.deliverDue(ctx, false)
		}
	}
}

// Flush attempts every pending result once, ignoring backoff, and returns
// how many remain pending. Used on shutdown.
func (p *Persister) Flush(ctx context.Context) int {
	p.deliverDue(ctx, true)
	return p.Pending()
}

// Pending counts results still awaiting delivery.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, d := range p.queue {
		if d.status == StatusPending {
			n++
		}
	}
	return n
}

// Status reports the delivery state of a queued session. Delivered results
// leave the queue and report false.
func (p *Persister) Status(sessionID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.queue[sessionID]
	if !ok {
		return "", false
	}
	return d.status, true
}

func (p *Persister) deliverDue(ctx context.Context, all bool) {
	now := p.now()
	var due []*delivery
	p.mu.Lock()
	for _, d := range p.queue {
		if d.status != StatusPending || d.inflight {
			continue
		}
		if all || !d.nextAttempt.After(now) {
			d.inflight = true
			due = append(due, d)
		}
	}
	p.mu.Unlock()

	for _, d := range due {
		if ctx.Err() != nil {
			p.release(due)
			return
		}
		p.deliverOne(ctx, d)
	}
}

func (p *Persister) release(ds []*delivery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range ds {
		d.inflight = false
	}
}

func (p *Persister) deliverOne(ctx context.Context, d *delivery) {
	id := d.result.SessionID
	err := p.sink.Persist(ctx, d.result)

	p.mu.Lock()
	d.inflight = false
	d.attempts++
	current := p.queue[id] == d
	if err == nil {
		if current {
			delete(p.queue, id)
		}
		p.mu.Unlock()
		p.logger.Debug().Str("session_id", id).Int("attempt", d.attempts).Msg("assessment result persisted")
		if p.OnDelivered != nil {
			p.OnDelivered(id)
		}
		return
	}

	d.lastErr = err
	if !current {
		// Superseded by a newer result for the same session.
		p.mu.Unlock()
		return
	}
	if d.attempts >= p.MaxAttempts {
		d.status = StatusAbandoned
		p.mu.Unlock()
		p.logger.Error().Err(err).
			Bool("alert", true).
			Str("session_id", id).
			Int("attempts", d.attempts).
			Msg("assessment result abandoned after max delivery attempts")
		if p.Alert != nil {
			p.Alert(id, err)
		}
		return
	}
	d.nextAttempt = p.now().Add(p.backoff(d.attempts))
	p.mu.Unlock()
	p.logger.Warn().Err(err).Str("session_id", id).Int("attempt", d.attempts).Msg("assessment result delivery failed, will retry")
}

func (p *Persister) backoff(attempt int) time.Duration {
	delay := p.RetryInterval
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return delay
}
