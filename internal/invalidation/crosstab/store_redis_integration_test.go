//go:build integration

package crosstab_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"quorum/internal/invalidation/crosstab"
	"quorum/pkg/platform/sentinel"
	"quorum/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *crosstab.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = crosstab.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestSetNotifiesWatcher() {
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	cancel, err := s.store.Watch(ctx, "signal", func(v string) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	s.Require().NoError(err)
	defer cancel()

	s.Require().NoError(s.store.Set(ctx, "signal", `{"n":1}`))

	s.Require().Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == `{"n":1}`
	}, 2*time.Second, 20*time.Millisecond)
}

func (s *RedisStoreSuite) TestCancelledWatcherStopsReceiving() {
	ctx := context.Background()

	var mu sync.Mutex
	var count int
	cancel, err := s.store.Watch(ctx, "signal", func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	s.Require().NoError(err)

	cancel()
	cancel() // idempotent

	s.Require().NoError(s.store.Set(ctx, "signal", "late"))
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Zero(count)
}

func (s *RedisStoreSuite) TestGetAfterRemoveIsNotFound() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "signal", "v"))

	v, err := s.store.Get(ctx, "signal")
	s.Require().NoError(err)
	s.Equal("v", v)

	s.Require().NoError(s.store.Remove(ctx, "signal"))
	_, err = s.store.Get(ctx, "signal")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestCrossProcessDelivery drives two independent stores against the same
// Redis instance, the shape two sibling portal processes take in production.
func (s *RedisStoreSuite) TestCrossProcessDelivery() {
	ctx := context.Background()
	writer := crosstab.NewRedisStore(s.redis.Client)

	received := make(chan string, 1)
	cancel, err := s.store.Watch(ctx, "signal", func(v string) { received <- v })
	s.Require().NoError(err)
	defer cancel()

	s.Require().NoError(writer.Set(ctx, "signal", "cross"))

	select {
	case v := <-received:
		s.Equal("cross", v)
	case <-time.After(2 * time.Second):
		s.Fail("signal never crossed stores")
	}
}
