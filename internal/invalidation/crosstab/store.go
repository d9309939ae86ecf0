// Package crosstab propagates invalidation events to sibling execution
// contexts through a shared per-origin key/value store. A write followed by a
// delayed delete of a well-known key produces a change notification that
// other contexts observe; the delete guarantees the next write is always a
// change, since most store notification mechanisms fire only on value change.
package crosstab

import (
	"context"
	"sync"

	"quorum/pkg/platform/sentinel"
)

// Store is the shared key/value side channel. Implementations must deliver a
// change notification to every watcher of a key when its value is written.
// All operations are best effort; callers treat failures as "signal lost",
// never as a failed mutation.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
	// Watch invokes fn with the new value each time key is written. The
	// returned cancel releases the watch; calling it twice is a no-op.
	Watch(ctx context.Context, key string, fn func(value string)) (cancel func(), err error)
}

// MemoryStore is an in-process Store for tests and single-node setups.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	nextID   int
	watchers map[string]map[int]func(string)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]string),
		watchers: make(map[string]map[int]func(string)),
	}
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	fns := make([]func(string), 0, len(s.watchers[key]))
	for _, fn := range s.watchers[key] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, key string, fn func(string)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[int]func(string))
	}
	s.watchers[key][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.watchers[key], id)
		})
	}, nil
}
