// Package fresh keeps one portal's view of shared state from going stale.
// A Controller listens on every signal channel at once - local bus,
// cross-context channel, remote change feed - and collapses whatever arrives
// into a single "refetch everything" call per burst. What gets re-fetched is
// entirely the portal's business; the controller only says something changed.
package fresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quorum/internal/invalidation"
	"quorum/internal/invalidation/crosstab"
	"quorum/internal/invalidation/feed"
	"quorum/internal/invalidation/metrics"
)

// RefreshFunc is the portal-supplied refetch callback. Failures inside it
// are the portal's own problem; the controller does not retry beyond its
// periodic poll.
type RefreshFunc func(source, reason string)

// Options configures a Controller. Bus and OnRefresh are required; Channel
// and Feed are optional. The durations are tunable, not load-bearing.
type Options struct {
	Portal      string
	OnRefresh   RefreshFunc
	AutoRefresh bool

	Bus     *invalidation.Bus
	Channel *crosstab.Channel
	Feed    *feed.Adapter
	Tables  []feed.TableFilter

	// CoalesceWindow bounds the burst within which repeated signals for
	// the same mutation count once. Default 150ms.
	CoalesceWindow time.Duration
	// PollInterval drives the fallback refresh that guarantees eventual
	// consistency even with every push channel broken. Default 5m;
	// negative disables it.
	PollInterval time.Duration

	Logger *slog.Logger
}

type pendingSignal struct {
	source string
	event  invalidation.Event
}

// Controller is mounted with a portal and torn down with it. No subscription
// or timer outlives Close; signals arriving after Close are silent no-ops.
type Controller struct {
	portal    string
	onRefresh RefreshFunc
	auto      bool
	coalesce  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending map[string]pendingSignal
	arrival []string
	flush   *time.Timer
	cancels []func()
	stop    chan struct{}
}

func New(ctx context.Context, opts Options) (*Controller, error) {
	if opts.Bus == nil {
		return nil, fmt.Errorf("fresh: bus is required")
	}
	if opts.OnRefresh == nil {
		return nil, fmt.Errorf("fresh: refresh callback is required")
	}
	if opts.CoalesceWindow <= 0 {
		opts.CoalesceWindow = 150 * time.Millisecond
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Controller{
		portal:    opts.Portal,
		onRefresh: opts.OnRefresh,
		auto:      opts.AutoRefresh,
		coalesce:  opts.CoalesceWindow,
		logger:    opts.Logger,
		pending:   make(map[string]pendingSignal),
		stop:      make(chan struct{}),
	}

	c.cancels = append(c.cancels, opts.Bus.Subscribe(func(e invalidation.Event) {
		c.observe("local", e)
	}))

	if opts.Channel != nil {
		cancel, err := opts.Channel.Subscribe(ctx, func(e invalidation.Event) {
			c.observe("crosstab", e)
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("fresh: subscribe cross-context channel: %w", err)
		}
		c.cancels = append(c.cancels, cancel)
	}

	if opts.Feed != nil && len(opts.Tables) > 0 {
		cancel, err := opts.Feed.Subscribe(ctx, opts.Tables, func(e invalidation.Event) {
			c.observe("feed", e)
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("fresh: subscribe change feed: %w", err)
		}
		c.cancels = append(c.cancels, cancel)
	}

	if opts.PollInterval > 0 && opts.AutoRefresh {
		go c.pollLoop(opts.PollInterval)
	}

	return c, nil
}

// observe queues a signal into the coalescing window. Repeats for the same
// subject and kind within the window are idempotent no-ops.
func (c *Controller) observe(source string, event invalidation.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		metrics.SignalsDropped.WithLabelValues("closed").Inc()
		return
	}
	if !c.auto {
		return
	}

	key := event.DedupeKey()
	if _, dup := c.pending[key]; !dup {
		c.pending[key] = pendingSignal{source: source, event: event}
		c.arrival = append(c.arrival, key)
	}
	if c.flush == nil {
		c.flush = time.AfterFunc(c.coalesce, c.flushPending)
	}
}

// flushPending issues the single refetch for the burst collected so far.
func (c *Controller) flushPending() {
	c.mu.Lock()
	if c.closed || len(c.arrival) == 0 {
		c.flush = nil
		c.mu.Unlock()
		return
	}
	first := c.pending[c.arrival[0]]
	count := len(c.arrival)
	c.pending = make(map[string]pendingSignal)
	c.arrival = nil
	c.flush = nil
	c.mu.Unlock()

	reason := fmt.Sprintf("%s %s", first.event.Kind, first.event.SubjectID)
	if count > 1 {
		reason = fmt.Sprintf("%s (+%d more)", reason, count-1)
	}
	c.fire(first.source, reason)
}

// Refresh triggers the portal callback immediately, bypassing coalescing.
// Manual refreshes work even with AutoRefresh off.
func (c *Controller) Refresh(reason string) {
	c.fire("manual", reason)
}

func (c *Controller) fire(source, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	metrics.Refreshes.WithLabelValues(c.portal, source).Inc()
	c.logger.Debug("portal refresh",
		"portal", c.portal,
		"source", source,
		"reason", reason,
	)
	c.onRefresh(source, reason)
}

func (c *Controller) pollLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.fire("poll", "periodic fallback refresh")
		}
	}
}

// Close releases every subscription and timer. It is idempotent and safe to
// call mid-burst; a pending flush becomes a no-op.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.flush != nil {
		c.flush.Stop()
		c.flush = nil
	}
	c.pending = make(map[string]pendingSignal)
	c.arrival = nil
	cancels := c.cancels
	c.cancels = nil
	close(c.stop)
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
