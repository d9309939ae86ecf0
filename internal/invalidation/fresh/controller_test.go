package fresh

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/invalidation"
	"quorum/internal/invalidation/crosstab"
	"quorum/internal/invalidation/feed"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type refreshRecorder struct {
	mu      sync.Mutex
	calls   int
	sources []string
}

func (r *refreshRecorder) fn(source, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.sources = append(r.sources, source)
}

func (r *refreshRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestController(t *testing.T, rec *refreshRecorder, bus *invalidation.Bus, ch *crosstab.Channel, src *feed.MemorySource, portal string) *Controller {
	t.Helper()
	opts := Options{
		Portal:         portal,
		OnRefresh:      rec.fn,
		AutoRefresh:    true,
		Bus:            bus,
		Channel:        ch,
		CoalesceWindow: 20 * time.Millisecond,
		PollInterval:   -1,
		Logger:         testLogger(),
	}
	if src != nil {
		opts.Feed = feed.NewAdapter(src, portal)
		opts.Tables = []feed.TableFilter{{Table: "members"}, {Table: "contributions"}}
	}
	c, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestController_SameEventThroughTwoChannelsRefreshesOnce(t *testing.T) {
	bus := invalidation.NewBus(testLogger())
	store := crosstab.NewMemoryStore()
	ch := crosstab.NewChannel(store, testLogger(), crosstab.Options{})
	defer ch.Close()

	rec := &refreshRecorder{}
	newTestController(t, rec, bus, ch, nil, "admin")

	// The same mutation lands through the local bus and the cross-context
	// channel almost simultaneously, as it does for the originating
	// context in production.
	event := invalidation.NewEvent(invalidation.KindMemberDeleted, "m1", "secretary@quorum.local")
	bus.Publish(event)
	ch.Broadcast(context.Background(), event)

	assert.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)

	// And no second refresh shows up after the window closes.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestController_DistinctSubjectsStillCoalesceIntoOneRefresh(t *testing.T) {
	bus := invalidation.NewBus(testLogger())
	rec := &refreshRecorder{}
	newTestController(t, rec, bus, nil, nil, "admin")

	bus.Publish(invalidation.NewEvent(invalidation.KindContributionChanged, "c1", "tester"))
	bus.Publish(invalidation.NewEvent(invalidation.KindBalanceChanged, "m2", "tester"))
	bus.Publish(invalidation.NewEvent(invalidation.KindMemberUpdated, "m3", "tester"))

	assert.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestController_MemberDeletionFansOutToEveryPortalOnce(t *testing.T) {
	bus := invalidation.NewBus(testLogger())
	store := crosstab.NewMemoryStore()
	ch := crosstab.NewChannel(store, testLogger(), crosstab.Options{})
	defer ch.Close()
	source := feed.NewMemorySource()

	recs := map[string]*refreshRecorder{}
	for _, portal := range []string{"admin", "auditor", "secretary"} {
		rec := &refreshRecorder{}
		recs[portal] = rec
		newTestController(t, rec, bus, ch, source, portal)
	}

	// Deletion confirmed: the helper fires bus + crosstab, and the row
	// change arrives independently through the feed.
	event := invalidation.NewEvent(invalidation.KindMemberDeleted, "m1", "secretary@quorum.local")
	trigger := invalidation.NewTrigger(bus, ch, testLogger())
	trigger.Fire(context.Background(), event)
	source.Emit(feed.Change{Table: "members", Type: feed.Delete, RowID: "m1", OccurredAt: time.Now()})

	for portal, rec := range recs {
		assert.Eventually(t, func() bool { return rec.count() == 1 },
			time.Second, 5*time.Millisecond, "portal %s", portal)
	}
	time.Sleep(50 * time.Millisecond)
	for portal, rec := range recs {
		assert.Equal(t, 1, rec.count(), "portal %s refreshed more than once", portal)
	}
}

func TestController_SignalAfterCloseIsSilentNoOp(t *testing.T) {
	bus := invalidation.NewBus(testLogger())
	rec := &refreshRecorder{}
	c := newTestController(t, rec, bus, nil, nil, "coordinator")

	c.Close()
	c.Close() // idempotent

	require.NotPanics(t, func() {
		bus.Publish(invalidation.NewEvent(invalidation.KindMemberDeleted, "m1", "tester"))
	})
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestController_CloseMidBurstDropsPendingFlush(t *testing.T) {
	bus := invalidation.NewBus(testLogger())
	rec := &refreshRecorder{}
	c := newTestController(t, rec, bus, nil, nil, "auditor")

	bus.Publish(invalidation.NewEvent(invalidation.KindMemberUpdated, "m1", "tester"))
	c.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestController_AutoRefreshOffIgnoresSignalsButAllowsManual(t *testing.T) {
	bus := invalidation.NewBus(testLogger())
	rec := &refreshRecorder{}
	c, err := New(context.Background(), Options{
		Portal:         "secretary",
		OnRefresh:      rec.fn,
		AutoRefresh:    false,
		Bus:            bus,
		CoalesceWindow: 20 * time.Millisecond,
		PollInterval:   -1,
		Logger:         testLogger(),
	})
	require.NoError(t, err)
	defer c.Close()

	bus.Publish(invalidation.NewEvent(invalidation.KindBalanceChanged, "m1", "tester"))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count())

	c.Refresh("operator asked")
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, []string{"manual"}, rec.sources)
}

func TestController_PeriodicPollFiresWithoutAnySignal(t *testing.T) {
	bus := invalidation.NewBus(testLogger())
	rec := &refreshRecorder{}
	c, err := New(context.Background(), Options{
		Portal:       "admin",
		OnRefresh:    rec.fn,
		AutoRefresh:  true,
		Bus:          bus,
		PollInterval: 20 * time.Millisecond,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Eventually(t, func() bool { return rec.count() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestController_FeedChangeTriggersRefresh(t *testing.T) {
	bus := invalidation.NewBus(testLogger())
	source := feed.NewMemorySource()
	rec := &refreshRecorder{}
	newTestController(t, rec, bus, nil, source, "auditor")

	source.Emit(feed.Change{Table: "contributions", Type: feed.Insert, RowID: "c9", OccurredAt: time.Now()})

	assert.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	sources := append([]string(nil), rec.sources...)
	rec.mu.Unlock()
	assert.Equal(t, []string{"feed"}, sources)
}
