package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"quorum/internal/portal"
	"quorum/internal/session"
)

const superAdmin = "founder@quorum.local"

func primaryIdentity(email, role string) Identity {
	return Identity{Primary: &session.Session{
		ID:     uuid.New(),
		Email:  email,
		Role:   role,
		Origin: session.OriginLogin,
	}}
}

func mustLookup(t *testing.T, reg *portal.Registry, name string) portal.Portal {
	t.Helper()
	p, err := reg.Lookup(name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return p
}

func TestEvaluate_RoleInAllowListIsAuthorized(t *testing.T) {
	reg := portal.NewRegistry()
	dec := Evaluate(primaryIdentity("t@quorum.local", portal.RoleTreasurer), mustLookup(t, reg, "admin"), reg, superAdmin)

	assert.Equal(t, PhaseAuthorized, dec.Phase)
	assert.Equal(t, portal.RoleTreasurer, dec.ResolvedRole)
	assert.Empty(t, dec.RedirectTo)
}

func TestEvaluate_SuperAdminOverridesEveryAllowList(t *testing.T) {
	reg := portal.NewRegistry()
	// Role not in any allow-list; the email alone must authorize.
	identity := primaryIdentity("Founder@Quorum.Local", "Observer")

	for _, p := range reg.All() {
		dec := Evaluate(identity, p, reg, superAdmin)
		assert.Equal(t, PhaseAuthorized, dec.Phase, "portal %s", p.Name)
	}
}

func TestEvaluate_SecretaryMountingAdminIsDeniedWithRedirectAndNotice(t *testing.T) {
	reg := portal.NewRegistry()
	dec := Evaluate(primaryIdentity("clerk@quorum.local", portal.RoleSecretary), mustLookup(t, reg, "admin"), reg, superAdmin)

	assert.Equal(t, PhaseDenied, dec.Phase)
	assert.Equal(t, "/secretary", dec.RedirectTo)
	assert.Contains(t, dec.Notice, "Admin or Treasurer")
	assert.Contains(t, dec.Notice, "Secretary")
}

func TestEvaluate_UnknownRoleHasOnlyLoginAsDestination(t *testing.T) {
	reg := portal.NewRegistry()
	dec := Evaluate(primaryIdentity("x@quorum.local", "Visitor"), mustLookup(t, reg, "auditor"), reg, superAdmin)

	assert.Equal(t, PhaseDenied, dec.Phase)
	assert.Equal(t, portal.LoginPath, dec.RedirectTo)
}

func TestEvaluate_NoIdentityIsUnauthenticatedAndSilent(t *testing.T) {
	reg := portal.NewRegistry()
	dec := Evaluate(Identity{}, mustLookup(t, reg, "secretary"), reg, superAdmin)

	assert.Equal(t, PhaseUnauthenticated, dec.Phase)
	assert.Equal(t, portal.LoginPath, dec.RedirectTo)
	assert.Empty(t, dec.Notice, "unauthenticated redirects carry no toast")
}
