package session

import (
	"context"

	"github.com/google/uuid"
)

// Store persists primary sessions. Implementations return
// sentinel.ErrNotFound (possibly wrapped) for unknown or expired sessions.
type Store interface {
	Save(ctx context.Context, s Session) error
	FindByID(ctx context.Context, id uuid.UUID) (Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
