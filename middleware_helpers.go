package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/hipp-al/go-hipp-auth/middleware/jwtware"
)

// ValidationListener runs after the gate accepted a token, before the
// role check. A returned error rejects the request.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores the claims in the request's standard
// context so handlers and commands can read them with GetClaims.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, authClaims)
}

// TokenAuditListener logs every accepted token at debug level
func TokenAuditListener(logger Logger) ValidationListener {
	if logger == nil {
		logger = defLogger{}
	}
	return func(c *fiber.Ctx, claims jwtware.AuthClaims) error {
		logger.Debug("token accepted",
			"path", c.Path(),
			"user_id", claims.UserID(),
			"roles", claims.Roles(),
		)
		return nil
	}
}
