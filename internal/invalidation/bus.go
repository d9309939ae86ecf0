package invalidation

import (
	"log/slog"
	"sync"

	"quorum/internal/invalidation/metrics"
)

// Handler receives events published on a Bus.
type Handler func(Event)

// Bus is an in-process publish/subscribe fan-out, one per execution context.
// Delivery is synchronous and in subscription order; a handler that panics is
// isolated and logged, never aborting delivery to the remaining subscribers.
// Filtering by Kind is the consumer's responsibility.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	order  []int
	subs   map[int]Handler
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[int]Handler),
	}
}

// Subscribe registers a handler and returns its disposer. The disposer is
// idempotent; calling it twice is safe.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.order = append(b.order, id)
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers the event to every currently registered subscriber.
func (b *Bus) Publish(event Event) {
	metrics.SignalsReceived.WithLabelValues("local").Inc()

	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliver(h, event)
	}
}

func (b *Bus) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("invalidation subscriber panicked",
				"kind", event.Kind,
				"subject_id", event.SubjectID,
				"panic", r,
			)
		}
	}()
	h(event)
}
