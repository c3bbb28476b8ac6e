package auth

import (
	"context"
	"time"
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	UserID    string
	Username  string
	Email     string
	Roles     []string
}

// Role returns the first role of the user, empty when it has none
func (r *LoginResult) Role() string {
	if r == nil || len(r.Roles) == 0 {
		return ""
	}
	return r.Roles[0]
}

type Auther struct {
	provider     IdentityProvider
	tokenService TokenService
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, tokenService TokenService) *Auther {
	return &Auther{
		provider:     provider,
		tokenService: tokenService,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClock overrides the issuance time source
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and issues a token carrying the user's
// current role set.
func (s *Auther) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	identity, err := s.provider.VerifyIdentity(ctx, username, password)
	if err != nil {
		s.logger.Warn("Login verify identity error", "username", username, "error", err)
		recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "anonymous"},
			Metadata: map[string]any{
				"username": username,
			},
		})
		return nil, err
	}

	token, expiresAt, err := s.tokenService.Issue(identity, s.now())
	if err != nil {
		s.logger.Error("Login issue token error", "error", err)
		return nil, err
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: identity.ID(), Type: "user"},
		UserID:    identity.ID(),
		Metadata: map[string]any{
			"roles": identity.Roles(),
		},
	})

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    identity.ID(),
		Username:  identity.Username(),
		Email:     identity.Email(),
		Roles:     identity.Roles(),
	}, nil
}
