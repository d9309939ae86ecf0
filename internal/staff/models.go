package staff

import (
	"time"

	"github.com/google/uuid"
)

// Approval states for directory entries. Only approved staff can be
// materialized into sessions by the fallback identity path.
const (
	PendingApproved = "approved"
	PendingReview   = "review"
	PendingRejected = "rejected"
)

// Record is one staff directory entry.
type Record struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	Role         string
	AssignedArea string
	Pending      string
	PasswordHash string
	CreatedAt    time.Time
}

// Approved reports whether this entry may authenticate.
func (r Record) Approved() bool {
	return r.Pending == PendingApproved
}
