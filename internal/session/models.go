package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// Origin records which identity source produced a session.
const (
	OriginLogin    = "login"    // explicit staff login
	OriginFallback = "fallback" // materialized from a fallback-authenticated user
)

// Session is a primary staff session: the first-ranked identity source the
// role guard consults. Fallback users that resolve against the staff
// directory are materialized into this same shape and persisted, so
// subsequent portal mounts skip the directory lookup.
type Session struct {
	ID           uuid.UUID `json:"id"`
	StaffID      uuid.UUID `json:"staff_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	AssignedArea string    `json:"assigned_area"`
	Origin       string    `json:"origin"`

	DeviceDisplayName string `json:"device_display_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its lifetime.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// DeviceName derives a human readable device label from a raw User-Agent
// header ("Chrome on Linux"). Empty input yields empty output.
func DeviceName(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	name, _ := ua.Browser()
	os := ua.OS()
	switch {
	case name != "" && os != "":
		return name + " on " + os
	case name != "":
		return name
	default:
		return os
	}
}
