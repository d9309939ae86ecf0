// Package authz decides, per portal mount, whether the current session may
// see that portal. The decision is a pure function of (identity, portal);
// the redirect side effect lives with the HTTP layer so the state machine is
// testable without a router.
package authz

import (
	"strings"

	"quorum/internal/portal"
	"quorum/internal/session"
)

// Phase is the role guard's state for one portal-mount attempt. A phase is
// never cached across navigations; every mount re-evaluates.
type Phase string

const (
	// PhaseLoading means identity resolution is in flight. Guarded
	// content must not render; the HTTP layer never observes this phase
	// because Resolve completes before Evaluate runs.
	PhaseLoading Phase = "loading"
	// PhaseAuthorized is terminal for the mount.
	PhaseAuthorized Phase = "authorized"
	// PhaseDenied means an authenticated session lacks the portal's role.
	PhaseDenied Phase = "denied"
	// PhaseUnauthenticated means neither identity source resolved.
	PhaseUnauthenticated Phase = "unauthenticated"
)

// Identity is what the resolver produced from the ranked identity sources.
// Primary is nil when neither source resolved.
type Identity struct {
	Primary *session.Session
}

// Decision is the evaluated guard state plus the effect the HTTP layer
// should apply. Notice is the user-visible denial message; it is empty for
// unauthenticated sessions, which redirect silently.
type Decision struct {
	Phase        Phase
	ResolvedRole string
	RedirectTo   string
	Notice       string
}

// Evaluate runs the authorization rule for one portal mount.
//
// Precedence: a primary-shaped identity always wins (the resolver already
// ranked the sources); the super-admin email overrides role checks in every
// portal; otherwise the session role must be in the portal's allow-list.
func Evaluate(identity Identity, p portal.Portal, reg *portal.Registry, superAdminEmail string) Decision {
	if identity.Primary == nil {
		return Decision{
			Phase:      PhaseUnauthenticated,
			RedirectTo: portal.LoginPath,
		}
	}

	role := identity.Primary.Role
	if equalEmail(identity.Primary.Email, superAdminEmail) || p.Allows(role) {
		return Decision{
			Phase:        PhaseAuthorized,
			ResolvedRole: role,
		}
	}

	// Denied: send the session where it is actually allowed to go. A role
	// with no portal has no destination other than login.
	return Decision{
		Phase:        PhaseDenied,
		ResolvedRole: role,
		RedirectTo:   reg.HomeFor(role),
		Notice:       denialNotice(p, role),
	}
}

func denialNotice(p portal.Portal, role string) string {
	required := strings.Join(p.AllowedRoles, " or ")
	return "This portal requires " + required + "; your role is " + role
}

func equalEmail(a, b string) bool {
	return b != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
