package crosstab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/invalidation"
	"quorum/pkg/platform/sentinel"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// failingStore simulates a disabled or quota-exhausted shared store.
type failingStore struct{ MemoryStore }

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	return errors.New("quota exceeded")
}

func TestChannel_BroadcastReachesSubscriber(t *testing.T) {
	store := NewMemoryStore()
	ch := NewChannel(store, testLogger(), Options{})
	defer ch.Close()

	var got []invalidation.Event
	_, err := ch.Subscribe(context.Background(), func(e invalidation.Event) {
		got = append(got, e)
	})
	require.NoError(t, err)

	event := invalidation.NewEvent(invalidation.KindMemberDeleted, "m1", "secretary@quorum.local")
	ch.Broadcast(context.Background(), event)

	require.Len(t, got, 1)
	assert.Equal(t, event.ID, got[0].ID)
	assert.Equal(t, invalidation.KindMemberDeleted, got[0].Kind)
}

func TestChannel_SignalKeyClearedAfterDelay(t *testing.T) {
	store := NewMemoryStore()
	ch := NewChannel(store, testLogger(), Options{ClearAfter: 10 * time.Millisecond})
	defer ch.Close()

	ch.Broadcast(context.Background(), invalidation.NewEvent(invalidation.KindGeneric, "m1", "tester"))

	_, err := store.Get(context.Background(), SignalKey)
	require.NoError(t, err, "key should exist immediately after broadcast")

	assert.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), SignalKey)
		return err != nil
	}, time.Second, 5*time.Millisecond, "key should be deleted after the clear delay")
}

func TestChannel_StaleSignalDiscarded(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	ch := NewChannel(store, testLogger(), Options{
		StalenessWindow: 5 * time.Second,
		Now:             func() time.Time { return now },
	})
	defer ch.Close()

	var calls int
	_, err := ch.Subscribe(context.Background(), func(invalidation.Event) { calls++ })
	require.NoError(t, err)

	// A leftover signal from a minute ago, as a late-opened context would
	// replay it.
	old, _ := json.Marshal(envelope{
		CapturedAt: now.Add(-time.Minute),
		Event:      invalidation.NewEvent(invalidation.KindMemberDeleted, "m1", "tester"),
	})
	require.NoError(t, store.Set(context.Background(), SignalKey, string(old)))

	assert.Zero(t, calls)
}

func TestChannel_MalformedPayloadDropped(t *testing.T) {
	store := NewMemoryStore()
	ch := NewChannel(store, testLogger(), Options{})
	defer ch.Close()

	var calls int
	_, err := ch.Subscribe(context.Background(), func(invalidation.Event) { calls++ })
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), SignalKey, "{not json"))
	assert.Zero(t, calls)

	// A well-formed signal right after still goes through.
	ch.Broadcast(context.Background(), invalidation.NewEvent(invalidation.KindGeneric, "m2", "tester"))
	assert.Equal(t, 1, calls)
}

func TestChannel_BroadcastSwallowsStoreFailure(t *testing.T) {
	ch := NewChannel(&failingStore{}, testLogger(), Options{})
	defer ch.Close()

	require.NotPanics(t, func() {
		ch.Broadcast(context.Background(), invalidation.NewEvent(invalidation.KindMemberDeleted, "m1", "tester"))
	})
}

func TestChannel_SubscribeAfterCloseIsRejected(t *testing.T) {
	ch := NewChannel(NewMemoryStore(), testLogger(), Options{})
	ch.Close()
	ch.Close() // idempotent

	_, err := ch.Subscribe(context.Background(), func(invalidation.Event) {})
	assert.ErrorIs(t, err, sentinel.ErrClosed)
}

func TestChannel_CancelledSubscriberNotInvoked(t *testing.T) {
	store := NewMemoryStore()
	ch := NewChannel(store, testLogger(), Options{})
	defer ch.Close()

	var calls int
	cancel, err := ch.Subscribe(context.Background(), func(invalidation.Event) { calls++ })
	require.NoError(t, err)

	cancel()
	cancel() // double release must be a no-op

	ch.Broadcast(context.Background(), invalidation.NewEvent(invalidation.KindGeneric, "m1", "tester"))
	assert.Zero(t, calls)
}
