// Package portal declares the role-scoped views of the system and what each
// one is allowed to see and watch. Capabilities are declared up front and
// resolved at startup; an unknown table in a watch list is a configuration
// mistake, not something to probe at runtime.
package portal

import (
	"fmt"

	"quorum/internal/invalidation/feed"
)

// Role names mirror the staff directory's role column.
const (
	RoleAdmin       = "Admin"
	RoleTreasurer   = "Treasurer"
	RoleAuditor     = "Auditor"
	RoleSecretary   = "Secretary"
	RoleCoordinator = "Coordinator"
)

// LoginPath is where unauthenticated (or role-less) sessions land.
const LoginPath = "/login"

// Portal is one role-scoped view: who may open it and which backing tables
// feed its freshness controller.
type Portal struct {
	Name         string
	Path         string
	AllowedRoles []string
	Tables       []feed.TableFilter
}

// Allows reports whether the role is in this portal's allow-list.
func (p Portal) Allows(role string) bool {
	for _, r := range p.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Registry holds the declared portals, in a fixed order.
type Registry struct {
	portals []Portal
}

// NewRegistry returns the production portal set.
func NewRegistry() *Registry {
	return &Registry{portals: []Portal{
		{
			Name:         "admin",
			Path:         "/admin",
			AllowedRoles: []string{RoleAdmin, RoleTreasurer},
			Tables: []feed.TableFilter{
				{Table: "members"},
				{Table: "balances"},
				{Table: "contributions"},
				{Table: "disbursements"},
			},
		},
		{
			Name:         "auditor",
			Path:         "/auditor",
			AllowedRoles: []string{RoleAuditor},
			Tables: []feed.TableFilter{
				{Table: "members"},
				{Table: "contributions"},
				{Table: "disbursements", RowFilter: "status=completed"},
			},
		},
		{
			Name:         "secretary",
			Path:         "/secretary",
			AllowedRoles: []string{RoleSecretary},
			Tables: []feed.TableFilter{
				{Table: "members"},
				{Table: "contributions"},
			},
		},
		{
			Name:         "coordinator",
			Path:         "/coordinator",
			AllowedRoles: []string{RoleCoordinator},
			Tables: []feed.TableFilter{
				{Table: "members", Events: []feed.EventType{feed.Insert, feed.Update}},
				{Table: "contributions"},
			},
		},
	}}
}

// Lookup finds a portal by name.
func (r *Registry) Lookup(name string) (Portal, error) {
	for _, p := range r.portals {
		if p.Name == name {
			return p, nil
		}
	}
	return Portal{}, fmt.Errorf("unknown portal %q", name)
}

// All returns the portals in declaration order.
func (r *Registry) All() []Portal {
	return r.portals
}

// HomeFor returns the path of the first portal that allows the role, or the
// login path when the role has no authorized destination.
func (r *Registry) HomeFor(role string) string {
	for _, p := range r.portals {
		if p.Allows(role) {
			return p.Path
		}
	}
	return LoginPath
}
