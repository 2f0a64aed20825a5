package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Event interface {
	EventType() string
	EventID() string
	OccurredAt() time.Time
	Payload() interface{}
}

type BaseEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) EventID() string {
	return e.ID
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func (e BaseEvent) Payload() interface{} {
	return e.Data
}

type Handler func(ctx context.Context, event Event) error

const (
	DefaultWorkers   = 8
	DefaultQueueSize = 1024
)

type job struct {
	ctx     context.Context
	handler Handler
	event   Event
}

// EventBus fans events out to in-process subscribers on a fixed pool of
// workers. Publish never blocks the caller on a handler and never reports a
// handler's failure to it. When the queue is full the delivery is dropped
// and logged.
type EventBus struct {
	handlers  map[string][]Handler
	logger    *slog.Logger
	mu        sync.RWMutex
	inflight  sync.WaitGroup
	queue     chan job
	workers   int
	closed    bool
	closeOnce sync.Once
}

type Option func(*EventBus)

// WithWorkers caps how many handlers run at once. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.workers = n
		}
	}
}

// WithQueueSize bounds how many deliveries may wait for a worker.
func WithQueueSize(n int) Option {
	return func(eb *EventBus) {
		if n > 0 {
			eb.queue = make(chan job, n)
		}
	}
}

func NewEventBus(logger *slog.Logger, opts ...Option) *EventBus {
	eb := &EventBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(eb)
	}
	if eb.queue == nil {
		eb.queue = make(chan job, DefaultQueueSize)
	}
	for i := 0; i < eb.workers; i++ {
		go eb.work()
	}
	return eb
}

func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Info("event handler registered",
		"event_type", eventType,
		"total_handlers", len(eb.handlers[eventType]))
}

// Publish queues one delivery per handler. Handlers see a context detached
// from the caller's cancellation so a finished request does not abort them.
func (eb *EventBus) Publish(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	handlers := eb.handlers[event.EventType()]
	if len(handlers) == 0 {
		eb.logger.Debug("no handlers for event type", "event_type", event.EventType())
		return
	}
	if eb.closed {
		eb.logger.Error("event dropped, bus closed",
			"event_type", event.EventType(),
			"event_id", event.EventID())
		return
	}

	eb.logger.Debug("publishing event",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"handlers_count", len(handlers))

	detached := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		eb.inflight.Add(1)
		select {
		case eb.queue <- job{ctx: detached, handler: handler, event: event}:
		default:
			eb.inflight.Done()
			eb.logger.Error("event dropped, queue full",
				"event_type", event.EventType(),
				"event_id", event.EventID(),
				"queue_size", cap(eb.queue))
		}
	}
}

func (eb *EventBus) work() {
	for j := range eb.queue {
		eb.run(j)
	}
}

func (eb *EventBus) run(j job) {
	defer eb.inflight.Done()
	defer func() {
		if rec := recover(); rec != nil {
			eb.logger.Error("event handler panicked",
				"event_type", j.event.EventType(),
				"event_id", j.event.EventID(),
				"panic", rec)
		}
	}()
	if err := j.handler(j.ctx, j.event); err != nil {
		eb.logger.Error("event handler failed",
			"event_type", j.event.EventType(),
			"event_id", j.event.EventID(),
			"error", err)
	}
}

// Drain waits for queued and running handlers, giving up when ctx is done.
func (eb *EventBus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		eb.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the bus and stops its workers. Later publishes are dropped.
func (eb *EventBus) Close(ctx context.Context) error {
	err := eb.Drain(ctx)
	eb.closeOnce.Do(func() {
		eb.mu.Lock()
		eb.closed = true
		close(eb.queue)
		eb.mu.Unlock()
	})
	return err
}
