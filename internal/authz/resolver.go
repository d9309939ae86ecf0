package authz

//go:generate mockgen -destination=mocks/session_store.go -package=mocks quorum/internal/session Store
//go:generate mockgen -destination=mocks/staff_directory.go -package=mocks quorum/internal/staff Directory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quorum/internal/session"
	"quorum/internal/staff"
	"quorum/pkg/platform/sentinel"
)

// FallbackUser is the second-ranked identity source: someone who
// authenticated generically and carries an email, nothing more.
type FallbackUser struct {
	Email string
}

// Resolver turns the two ranked identity sources into an Identity. Primary
// session first; otherwise the fallback email is checked against the
// approved staff directory and, on a match, materialized into a
// primary-shaped session and persisted so later mounts skip the lookup.
type Resolver struct {
	sessions   session.Store
	directory  staff.Directory
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewResolver(sessions session.Store, directory staff.Directory, sessionTTL time.Duration, logger *slog.Logger) *Resolver {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Resolver{
		sessions:   sessions,
		directory:  directory,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Resolve never returns an error: any failure on the way collapses into an
// unauthenticated identity. A broken directory lookup is "fallback path
// failed", not a retry loop.
func (r *Resolver) Resolve(ctx context.Context, sessionID uuid.UUID, fallback *FallbackUser) Identity {
	if sessionID != uuid.Nil {
		sess, err := r.sessions.FindByID(ctx, sessionID)
		switch {
		case err == nil:
			return Identity{Primary: &sess}
		case errors.Is(err, sentinel.ErrNotFound):
			// Expired or deleted; fall through to the fallback source.
		default:
			r.logger.Warn("authz: session lookup failed", "error", err)
		}
	}

	if fallback == nil || fallback.Email == "" {
		return Identity{}
	}

	rec, err := r.directory.FindApprovedByEmail(ctx, fallback.Email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			r.logger.Warn("authz: staff directory lookup failed",
				"email", fallback.Email,
				"error", err,
			)
		}
		return Identity{}
	}

	sess := r.materialize(rec)
	if err := r.sessions.Save(ctx, sess); err != nil {
		// The identity is still good for this mount; only the reuse
		// shortcut is lost.
		r.logger.Warn("authz: persist materialized session failed",
			"email", rec.Email,
			"error", err,
		)
	}
	return Identity{Primary: &sess}
}

func (r *Resolver) materialize(rec staff.Record) session.Session {
	now := r.now()
	return session.Session{
		ID:           uuid.New(),
		StaffID:      rec.ID,
		Email:        rec.Email,
		Role:         rec.Role,
		AssignedArea: rec.AssignedArea,
		Origin:       session.OriginFallback,
		CreatedAt:    now,
		ExpiresAt:    now.Add(r.sessionTTL),
	}
}
