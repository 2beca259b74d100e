package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"cinemate/internal/domain"
)

// DefaultQueueSize is the per-subscriber queue length used when none is given.
const DefaultQueueSize = 256

type queued struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id      uint64
	handler domain.EventHandler
	queue   chan queued
}

// Bus is an in-process, goroutine-safe event bus. Every subscriber owns a
// bounded queue drained by its own goroutine, so handlers see events in
// publish order and a slow handler only ever delays itself.
type Bus struct {
	mu        sync.RWMutex
	typed     map[domain.EventType][]*subscription
	allSubs   []*subscription
	nextID    atomic.Uint64
	queueSize int
	dropped   atomic.Uint64
	logger    *slog.Logger
	wg        sync.WaitGroup
	closed    bool
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus with queueSize slots per subscriber.
func New(logger *slog.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		typed:     make(map[domain.EventType][]*subscription),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Publish enqueues event for every matching subscriber without blocking.
// A subscriber whose queue is full misses the event; the miss is counted in
// Dropped.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.typed[event.Type] {
		b.enqueue(sub, ctx, event)
	}
	for _, sub := range b.allSubs {
		b.enqueue(sub, ctx, event)
	}
}

func (b *Bus) enqueue(sub *subscription, ctx context.Context, event domain.Event) {
	select {
	case sub.queue <- queued{ctx: ctx, event: event}:
	default:
		if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
			b.logger.Warn("event dropped, subscriber queue full",
				"event", string(event.Type),
				"subscriber", sub.id,
				"dropped_total", n,
			)
		}
	}
}

func (b *Bus) start(sub *subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for q := range sub.queue {
			b.deliver(sub, q)
		}
	}()
}

func (b *Bus) deliver(sub *subscription, q queued) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(q.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(q.ctx, q.event)
}

func (b *Bus) newSubscription(handler domain.EventHandler) *subscription {
	return &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		queue:   make(chan queued, b.queueSize),
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function; events already queued are still delivered.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := b.newSubscription(handler)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.start(sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.typed[eventType] = append(subs[:i], subs[i+1:]...)
				close(s.queue)
				return
			}
		}
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := b.newSubscription(handler)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.allSubs = append(b.allSubs, sub)
	b.start(sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.allSubs {
			if s.id == sub.id {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				close(s.queue)
				return
			}
		}
	}
}

// Dropped returns how many deliveries were skipped because a queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close rejects further publishes and waits until every queued event has
// been handled. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.typed {
		for _, s := range subs {
			close(s.queue)
		}
	}
	for _, s := range b.allSubs {
		close(s.queue)
	}
	b.typed = make(map[domain.EventType][]*subscription)
	b.allSubs = nil
	b.mu.Unlock()

	b.wg.Wait()
}
