package feed

import (
	"context"
	"sync"
)

// MemorySource is an in-process Source for tests: Emit pushes a change
// record to every live subscription whose filters match.
type MemorySource struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]memorySub
}

type memorySub struct {
	filters []TableFilter
	fn      func(Change)
}

func NewMemorySource() *MemorySource {
	return &MemorySource{subs: make(map[int]memorySub)}
}

func (s *MemorySource) Subscribe(ctx context.Context, filters []TableFilter, fn func(Change)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = memorySub{filters: filters, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}, nil
}

// Emit delivers the change synchronously to matching subscriptions.
func (s *MemorySource) Emit(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, sub := range s.subs {
		for _, f := range sub.filters {
			if f.matches(c) {
				fns = append(fns, sub.fn)
				break
			}
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
