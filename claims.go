package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the validated view of a bearer token
type AuthClaims interface {
	Subject() string
	UserID() string
	Username() string
	Email() string
	Role() string
	Roles() []string
	HasRole(role string) bool
	HasAnyRole(roles ...string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims. Roles are
// serialized as a JSON array with one entry per role.
type JWTClaims struct {
	jwt.RegisteredClaims
	UserName  string   `json:"username"`
	UserEmail string   `json:"email,omitempty"`
	RoleNames []string `json:"roles"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	return c.RegisteredClaims.Subject
}

// Username returns the username claim
func (c *JWTClaims) Username() string {
	return c.UserName
}

// Email returns the email claim
func (c *JWTClaims) Email() string {
	return c.UserEmail
}

// Role returns the first role, empty when the token carries none
func (c *JWTClaims) Role() string {
	if len(c.RoleNames) == 0 {
		return ""
	}
	return c.RoleNames[0]
}

// Roles returns a copy of the role claims
func (c *JWTClaims) Roles() []string {
	return slices.Clone(c.RoleNames)
}

// HasRole checks if the token carries role
func (c *JWTClaims) HasRole(role string) bool {
	return RoleSet(c.RoleNames).Has(role)
}

// HasAnyRole checks if the token carries at least one of roles
func (c *JWTClaims) HasAnyRole(roles ...string) bool {
	return RoleSet(c.RoleNames).HasAny(roles...)
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}
