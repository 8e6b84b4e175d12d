// Package auth - caller role sets
package auth

import "strings"

// Well-known role names. Super short-circuits every visibility check.
const (
	RoleSuper   = "super"
	RoleOwner   = "owner"
	RoleCreator = "creator"
	RoleEditor  = "editor"
	RoleViewer  = "viewer"
	RoleGuest   = "guest"
)

// RoleSet is the set of roles a caller holds, keyed by role name.
type RoleSet map[string]bool

// ParseRoles builds a RoleSet from a comma-separated role string, as
// carried in JWT claims. Names are trimmed and lowercased; empty
// segments are dropped.
func ParseRoles(roles string) RoleSet {
	set := make(RoleSet)
	for _, r := range strings.Split(roles, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = true
		}
	}
	return set
}

// Has reports whether the set contains the role (case-insensitive).
func (s RoleSet) Has(role string) bool {
	return s[strings.ToLower(role)]
}

// IsSuper reports whether the caller holds the super role.
func (s RoleSet) IsSuper() bool {
	return s[RoleSuper]
}

// Names returns the role names in the set.
func (s RoleSet) Names() []string {
	names := make([]string, 0, len(s))
	for r := range s {
		names = append(names, r)
	}
	return names
}
