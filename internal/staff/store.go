package staff

import "context"

// Directory is the staff directory lookup surface. Implementations return
// sentinel.ErrNotFound (possibly wrapped) when no entry matches.
type Directory interface {
	// FindByEmail returns the entry for the email regardless of approval
	// state. Login decides what to do with unapproved entries.
	FindByEmail(ctx context.Context, email string) (Record, error)

	// FindApprovedByEmail returns the entry only when pending=approved.
	// This is the filter the fallback identity path relies on.
	FindApprovedByEmail(ctx context.Context, email string) (Record, error)

	// Save inserts or replaces an entry.
	Save(ctx context.Context, rec Record) error

	// Delete removes an entry.
	Delete(ctx context.Context, email string) error
}
