// Package notify provides a fire-and-forget delivery boundary for queue
// events: ticket issued, bread ready, ticket sent to the wait list. The
// payload shape and transport (SMS, push, display bus) are a deployment
// concern; this package only guarantees at-least-once delivery attempts
// with bounded retry, the way the queue's journal write is decoupled from
// its cache write in C1.
package notify

import (
	"context"
	"time"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("notify")

// Event is one fact worth telling a client about. Kind and BakeryID let a
// Notifier route it; the rest of the payload is deployment-defined.
type Event struct {
	Kind      string
	BakeryID  int
	Payload   interface{}
}

// Notifier delivers a single Event. Implementations should return quickly;
// Pool retries failed deliveries on a separate goroutine so a slow or
// down notification backend never blocks a queue operation.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// PoolParams configures a Pool.
type PoolParams struct {
	Notifier   Notifier
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// Pool is a small fixed-size worker pool that retries failed deliveries a
// bounded number of times before giving up and logging the drop, mirroring
// the "separate worker pool" notification model from the concurrency
// design: queue operations enqueue and return immediately, never waiting
// on delivery.
type Pool struct {
	notifier   Notifier
	maxRetries int
	retryDelay time.Duration
	queue      chan Event
	done       chan struct{}
}

// NewPool starts a Pool with the given parameters. Call Close to stop it.
func NewPool(p PoolParams) *Pool {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	retries := p.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	delay := p.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	pool := &Pool{
		notifier:   p.Notifier,
		maxRetries: retries,
		retryDelay: delay,
		queue:      make(chan Event, 256),
		done:       make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

// Enqueue schedules e for delivery. It never blocks on delivery and drops
// the event (logging it) if the internal queue is full.
func (p *Pool) Enqueue(e Event) {
	select {
	case p.queue <- e:
	default:
		logger.Warningf("notification queue full, dropping %s event for bakery %d", e.Kind, e.BakeryID)
	}
}

// Notify adapts Pool to any caller wanting fire-and-forget delivery
// without an error return, such as queue.Queue's Notifier dependency. ctx
// is accepted for interface symmetry but is not threaded through to
// delivery: deliver uses a context.Background() for all attempts of an
// event, since by the time a retry fires, the request that produced the
// event has likely already finished.
func (p *Pool) Notify(ctx context.Context, kind string, bakeryID int, payload interface{}) {
	p.Enqueue(Event{Kind: kind, BakeryID: bakeryID, Payload: payload})
}

// Close shuts the pool down and returns without waiting. Workers still
// attempt the events already queued, but a failed attempt is no longer
// retried once Close has been called. Enqueue must not be called after
// Close: sending on the closed queue panics.
func (p *Pool) Close() {
	close(p.done)
	close(p.queue)
}

func (p *Pool) worker() {
	for e := range p.queue {
		p.deliver(e)
	}
}

func (p *Pool) deliver(e Event) {
	ctx := context.Background()
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := p.notifier.Notify(ctx, e); err == nil {
			return
		} else if attempt == p.maxRetries {
			logger.Errorf("giving up on %s event for bakery %d after %d attempts: %v", e.Kind, e.BakeryID, attempt+1, err)
			return
		}
		select {
		case <-p.done:
			return
		case <-time.After(p.retryDelay):
		}
	}
}
