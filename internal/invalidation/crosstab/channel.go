package crosstab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"quorum/internal/invalidation"
	"quorum/internal/invalidation/metrics"
	"quorum/pkg/platform/sentinel"
)

// SignalKey is the well-known key all contexts contend on. Contention is
// brief: a write followed by a delayed delete.
const SignalKey = "quorum:invalidation:signal"

// envelope wraps the event with a capture timestamp used for staleness
// filtering, so a context opened late never acts on a leftover signal.
type envelope struct {
	CapturedAt time.Time          `json:"captured_at"`
	Event      invalidation.Event `json:"event"`
}

// Options tunes a Channel. Zero values fall back to the reference defaults;
// none of these durations is load-bearing for correctness.
type Options struct {
	// ClearAfter is how long the signal key lives before the delayed
	// delete. Deleting guarantees the next write is always a change.
	ClearAfter time.Duration
	// StalenessWindow is the maximum signal age acted upon at receipt.
	StalenessWindow time.Duration
	// Now is swappable for tests.
	Now func() time.Time
}

// Channel broadcasts invalidation events to sibling execution contexts and
// dispatches inbound ones to locally interested subscribers. One Channel is
// installed per process; per-portal interest is expressed via Subscribe.
type Channel struct {
	store  Store
	logger *slog.Logger
	clear  time.Duration
	stale  time.Duration
	now    func() time.Time

	mu          sync.Mutex
	nextID      int
	handlers    map[int]func(invalidation.Event)
	cancelWatch func()
	timers      map[*time.Timer]struct{}
	closed      bool
}

func NewChannel(store Store, logger *slog.Logger, opts Options) *Channel {
	if opts.ClearAfter <= 0 {
		opts.ClearAfter = time.Second
	}
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Channel{
		store:    store,
		logger:   logger,
		clear:    opts.ClearAfter,
		stale:    opts.StalenessWindow,
		now:      opts.Now,
		handlers: make(map[int]func(invalidation.Event)),
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Broadcast serializes the event, writes it under the signal key, and
// schedules the delayed delete. Store failures are logged and swallowed: a
// lost broadcast must never be mistaken for a failed mutation.
func (c *Channel) Broadcast(ctx context.Context, event invalidation.Event) {
	payload, err := json.Marshal(envelope{CapturedAt: c.now(), Event: event})
	if err != nil {
		// Event is a plain value object; this only happens if someone
		// smuggles an unmarshalable summary in.
		c.logger.Error("crosstab: marshal signal", "error", err)
		metrics.BroadcastFailures.Inc()
		return
	}

	if err := c.store.Set(ctx, SignalKey, string(payload)); err != nil {
		c.logger.Warn("crosstab: broadcast write failed",
			"kind", event.Kind,
			"subject_id", event.SubjectID,
			"error", err,
		)
		metrics.BroadcastFailures.Inc()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.clear, func() {
		clearCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.store.Remove(clearCtx, SignalKey); err != nil {
			c.logger.Warn("crosstab: clear signal key failed", "error", err)
		}
		c.mu.Lock()
		delete(c.timers, timer)
		c.mu.Unlock()
	})
	c.timers[timer] = struct{}{}
}

// Subscribe registers a local handler for inbound cross-context signals. The
// underlying store watch is installed once, on the first subscriber. The
// returned cancel is idempotent.
func (c *Channel) Subscribe(ctx context.Context, handler func(invalidation.Event)) (func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, sentinel.ErrClosed
	}
	if c.cancelWatch == nil {
		cancel, err := c.store.Watch(ctx, SignalKey, c.dispatch)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.cancelWatch = cancel
	}
	id := c.nextID
	c.nextID++
	c.handlers[id] = handler
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.handlers, id)
		})
	}, nil
}

// dispatch decodes an inbound payload, applies the staleness window, and
// fans out to local handlers. Malformed payloads are logged and dropped;
// they never affect other signals.
func (c *Channel) dispatch(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		c.logger.Warn("crosstab: malformed signal dropped", "error", err)
		metrics.SignalsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if env.CapturedAt.IsZero() {
		c.logger.Warn("crosstab: signal without capture time dropped")
		metrics.SignalsDropped.WithLabelValues("malformed").Inc()
		return
	}
	if c.now().Sub(env.CapturedAt) > c.stale {
		metrics.SignalsStale.Inc()
		return
	}

	metrics.SignalsReceived.WithLabelValues("crosstab").Inc()

	c.mu.Lock()
	handlers := make([]func(invalidation.Event), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(env.Event)
	}
}

// Close releases the store watch and stops pending delete timers. Signals
// arriving after Close are silently ignored.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancelWatch
	c.cancelWatch = nil
	c.handlers = make(map[int]func(invalidation.Event))
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[*time.Timer]struct{})
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
