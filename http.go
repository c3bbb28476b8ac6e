package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/hipp-al/go-hipp-auth/middleware/jwtware"
)

// RouteAuthenticator builds the bearer token gate for routes
type RouteAuthenticator struct {
	validator  TokenValidator
	contextKey string
	authScheme string
	listeners  []ValidationListener
	logger     Logger
}

// NewHTTPAuthenticator returns a RouteAuthenticator validating tokens
// with validator.
func NewHTTPAuthenticator(validator TokenValidator, cfg Config) *RouteAuthenticator {
	return &RouteAuthenticator{
		validator:  validator,
		contextKey: cfg.GetContextKey(),
		authScheme: cfg.GetAuthScheme(),
		logger:     defLogger{},
	}
}

func (a *RouteAuthenticator) WithLogger(l Logger) *RouteAuthenticator {
	if l != nil {
		a.logger = l
	}
	return a
}

// WithValidationListeners adds listeners run for every accepted token
func (a *RouteAuthenticator) WithValidationListeners(listeners ...ValidationListener) *RouteAuthenticator {
	a.listeners = append(a.listeners, listeners...)
	return a
}

// ContextKey returns the fiber locals key holding the claims
func (a *RouteAuthenticator) ContextKey() string {
	if a.contextKey == "" {
		return "user"
	}
	return a.contextKey
}

// ProtectedRoute returns middleware admitting valid tokens that carry at
// least one of roles. No roles admits any valid token.
func (a *RouteAuthenticator) ProtectedRoute(roles ...string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		ContextKey: a.ContextKey(),
		AuthScheme: a.authScheme,
		TokenValidator: jwtware.TokenValidatorFunc(func(token string) (jwtware.AuthClaims, error) {
			claims, err := a.validator.Validate(token)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		RequiredRoles:       roles,
		ErrorHandler:        a.authErrHandler,
		ContextEnricher:     ContextEnricherAdapter,
		ValidationListeners: a.listeners,
	})
}

func (a *RouteAuthenticator) authErrHandler(c *fiber.Ctx, err error) error {
	a.logger.Debug("request rejected by auth gate",
		"path", c.Path(),
		"status", StatusCode(err),
		"error", err,
	)
	return writeError(c, err)
}

// ErrorHandler renders errors as JSON using the status taxonomy of
// StatusCode. Internal failures are logged and answered generically.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"success": false,
				"message": fiberErr.Message,
			})
		}

		if StatusCode(err) >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"error", err,
				"details", print.MaybePrettyJSON(errorDetails(err)),
			)
		}

		return writeError(c, err)
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status := StatusCode(err)
	body := fiber.Map{
		"success": false,
		"message": "internal server error",
	}

	var richErr *errors.Error
	if status < fiber.StatusInternalServerError && errors.As(err, &richErr) {
		body["message"] = richErr.Message
		if richErr.TextCode != "" {
			body["code"] = richErr.TextCode
		}
		if len(richErr.Metadata) > 0 {
			body["details"] = richErr.Metadata
		}
		if richErr.Category == errors.CategoryValidation && richErr.TextCode == "" {
			body["validation"] = richErr.ValidationMap()
		}
	} else if status < fiber.StatusInternalServerError {
		body["message"] = err.Error()
	}

	return c.Status(status).JSON(body)
}

func errorDetails(err error) map[string]any {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{
		"category":  richErr.Category,
		"text_code": richErr.TextCode,
		"message":   richErr.Message,
		"metadata":  richErr.Metadata,
		"source":    richErr.Source,
	}
}
