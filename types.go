package auth

import (
	"context"
	"fmt"
	"time"
)

// Logger is the logging surface used across the package. Arguments
// after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Identity holds the attributes of an authenticated user
type Identity interface {
	ID() string
	Username() string
	Email() string
	Roles() []string
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetKeyID() string
	GetPreviousSigningKeys() map[string]string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetAuthScheme() string
}

// Authenticator exchanges credentials for a signed token
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
}

// IdentityProvider verifies credentials against the credential store
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, username, password string) (Identity, error)
	FindIdentityByID(ctx context.Context, id string) (Identity, error)
}

// PasswordAuthenticator hashes and checks passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	Verify(hash, password string) bool
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	printLine("[ERR] AUTH", msg, args...)
}

func (d defLogger) Warn(msg string, args ...any) {
	printLine("[WRN] AUTH", msg, args...)
}

func (d defLogger) Info(msg string, args ...any) {
	printLine("[INF] AUTH", msg, args...)
}

func (d defLogger) Debug(msg string, args ...any) {
	printLine("[DBG] AUTH", msg, args...)
}

func printLine(prefix, msg string, args ...any) {
	fmt.Println(append([]any{prefix, msg}, args...)...)
}
