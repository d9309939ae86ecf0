package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"quorum/pkg/platform/sentinel"
)

// MemoryStore is an in-process Store for tests and development.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]Session
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[uuid.UUID]Session),
		now:  time.Now,
	}
}

func (s *MemoryStore) Save(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sess.ID] = sess
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[id]
	if !ok || sess.Expired(s.now()) {
		return Session{}, sentinel.ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}
