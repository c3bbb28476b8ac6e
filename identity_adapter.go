package auth

import "slices"

// UserIdentity adapts a User and its role names into the Identity interface
// for token generation.
type UserIdentity struct {
	user  *User
	roles []string
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User, roles []string) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user, roles: NewRoleSet(roles...)}
}

// ID returns the user's ID as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

// Username returns the user's username.
func (u UserIdentity) Username() string {
	if u.user == nil {
		return ""
	}
	return u.user.Username
}

// Email returns the user's email address.
func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

// Roles returns the role names held when the identity was loaded.
func (u UserIdentity) Roles() []string {
	return slices.Clone(u.roles)
}

// User returns the underlying record.
func (u UserIdentity) User() *User {
	return u.user
}
