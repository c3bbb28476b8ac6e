package auth

import (
	"slices"
	"strings"
)

// Role names seeded on an empty store
const (
	RoleAdmin   = "Admin"
	RoleManager = "Menaxher"
	RoleSales   = "Komercialist"
	RoleDriver  = "Shofer"
	RoleLabeler = "Etiketues"
)

// SeedRole is a role created at bootstrap
type SeedRole struct {
	Name        string
	Description string
}

// DefaultRoles returns the roles every deployment starts with
func DefaultRoles() []SeedRole {
	return []SeedRole{
		{Name: RoleAdmin, Description: "Administrator with full access"},
		{Name: RoleManager, Description: "Manager"},
		{Name: RoleSales, Description: "Sales representative"},
		{Name: RoleDriver, Description: "Delivery driver"},
		{Name: RoleLabeler, Description: "Labeling operator"},
	}
}

// RoleSet is a set of role names compared case sensitively
type RoleSet []string

// NewRoleSet trims, drops blanks and removes duplicates, keeping order
func NewRoleSet(roles ...string) RoleSet {
	out := make(RoleSet, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Has reports whether role is in the set
func (s RoleSet) Has(role string) bool {
	return slices.Contains(s, role)
}

// HasAny reports whether at least one of required is in the set. An
// empty required list is satisfied by any set.
func (s RoleSet) HasAny(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Sorted returns a sorted copy
func (s RoleSet) Sorted() []string {
	out := slices.Clone([]string(s))
	slices.Sort(out)
	return out
}
