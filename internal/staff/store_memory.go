package staff

import (
	"context"
	"strings"
	"sync"

	"quorum/pkg/platform/sentinel"
)

// MemoryDirectory is an in-process Directory for tests and development.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]Record
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{byEmail: make(map[string]Record)}
}

func (d *MemoryDirectory) FindByEmail(ctx context.Context, email string) (Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.byEmail[normalize(email)]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	return rec, nil
}

func (d *MemoryDirectory) FindApprovedByEmail(ctx context.Context, email string) (Record, error) {
	rec, err := d.FindByEmail(ctx, email)
	if err != nil {
		return Record{}, err
	}
	if !rec.Approved() {
		return Record{}, sentinel.ErrNotFound
	}
	return rec, nil
}

func (d *MemoryDirectory) Save(ctx context.Context, rec Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[normalize(rec.Email)] = rec
	return nil
}

func (d *MemoryDirectory) Delete(ctx context.Context, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := normalize(email)
	if _, ok := d.byEmail[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(d.byEmail, key)
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
