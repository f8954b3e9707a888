// Package notify delivers gateway events to external sinks. Delivery is
// fire-and-forget: a slow or failing sink never affects a request.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/glowcloud/glow/internal/metrics"
	"github.com/glowcloud/glow/internal/model"
)

const (
	defaultQueueSize = 256
	deliverTimeout   = 5 * time.Second
)

// Sink receives events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev model.Event) error
}

// Dispatcher fans events out to sinks from a single background worker. A
// nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	queue  chan model.Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a Dispatcher, or nil when there are no sinks.
func New(logger *slog.Logger, queueSize int, sinks ...Sink) *Dispatcher {
	if len(sinks) == 0 {
		return nil
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sinks:  sinks,
		logger: logger,
		queue:  make(chan model.Event, queueSize),
	}
}

// Start launches the delivery worker. Non-blocking.
func (d *Dispatcher) Start() {
	if d == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range d.queue {
			d.deliver(ev)
		}
	}()
}

// Publish enqueues ev. When the queue is full the event is dropped.
func (d *Dispatcher) Publish(ev model.Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		metrics.NotificationsDropped.Inc()
		d.logger.Warn("notification queue full, dropping event", "type", ev.Type, "id", ev.ID)
	}
}

// Shutdown stops accepting events and waits for queued ones to be
// delivered, or for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("notification drain interrupted", "pending", len(d.queue))
	}
}

func (d *Dispatcher) deliver(ev model.Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		if err := s.Deliver(ctx, ev); err != nil {
			d.logger.Warn("notification delivery failed", "sink", s.Name(), "type", ev.Type, "error", err)
		}
		cancel()
	}
}
