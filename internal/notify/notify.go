// Package notify tells the outside world about new board activity. Delivery
// is asynchronous and best effort: failures are logged, never returned to the
// request that produced the event.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Kind string

const (
	KindMessageCreated Kind = "message_created"
	KindReplyCreated   Kind = "reply_created"
)

type Event struct {
	Kind      Kind
	MessageID int64
	ReplyID   int64
	Title     string
	Author    string
	Preview   string
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(Event)
}

// Sink delivers a single event to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(Event) {}

const (
	defaultQueueSize = 64
	deliveryTimeout  = 10 * time.Second
)

// ResultFunc observes each delivery attempt. err is nil on success.
type ResultFunc func(sink string, err error)

// Dispatcher queues events and hands them to its sinks from a single worker
// goroutine.
type Dispatcher struct {
	mu       sync.RWMutex
	sinks    []Sink
	queue    chan Event
	logger   *slog.Logger
	timeout  time.Duration
	onResult ResultFunc
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, defaultQueueSize),
		logger:  logger,
		timeout: deliveryTimeout,
	}
}

// OnResult installs a callback invoked after every delivery attempt.
func (d *Dispatcher) OnResult(fn ResultFunc) {
	d.mu.Lock()
	d.onResult = fn
	d.mu.Unlock()
}

// Notify enqueues ev. When the queue is full the event is dropped.
func (d *Dispatcher) Notify(ev Event) {
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("notification queue full, dropping event", "kind", ev.Kind, "message_id", ev.MessageID)
	}
}

// Start begins the delivery loop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-d.queue:
				d.deliver(ev)
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight delivery to finish. Events
// still queued are dropped.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// deliver runs each sink with its own deadline, detached from the request
// that produced the event.
func (d *Dispatcher) deliver(ev Event) {
	d.mu.RLock()
	onResult := d.onResult
	d.mu.RUnlock()

	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := s.Deliver(ctx, ev)
		cancel()

		if err != nil {
			d.logger.Warn("notification failed", "sink", s.Name(), "kind", ev.Kind, "error", err)
		}
		if onResult != nil {
			onResult(s.Name(), err)
		}
	}
}

const ellipsis = "..."

// Preview shortens s to at most n runes, the "..." marking a cut included.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= len(ellipsis) {
		return string(r[:max(n, 0)])
	}
	return string(r[:n-len(ellipsis)]) + ellipsis
}
