package auth

import (
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/hipp-al/go-hipp-auth/middleware/jwtware"
)

// Text codes carried by the errors below. Clients can switch on them.
const (
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeTokenMissing          = "TOKEN_MISSING"
	TextCodeTokenMalformed        = "TOKEN_MALFORMED"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenSignatureInvalid = "TOKEN_SIGNATURE_INVALID"
	TextCodeTokenIssuerInvalid    = "TOKEN_ISSUER_INVALID"
	TextCodeTokenAudienceInvalid  = "TOKEN_AUDIENCE_INVALID"
	TextCodeForbidden             = "FORBIDDEN"
	TextCodeDuplicateEmail        = "DUPLICATE_EMAIL"
	TextCodeDuplicateUsername     = "DUPLICATE_USERNAME"
	TextCodeDuplicateRole         = "DUPLICATE_ROLE"
	TextCodeInvalidRole           = "INVALID_ROLE"
	TextCodeRoleAlreadyAssigned   = "ROLE_ALREADY_ASSIGNED"
	TextCodeRoleNotAssigned       = "ROLE_NOT_ASSIGNED"
	TextCodePasswordPolicy        = "PASSWORD_POLICY"
	TextCodeInvalidPhone          = "INVALID_PHONE"
	TextCodeInvalidPassword       = "INVALID_CURRENT_PASSWORD"
	TextCodeUserNotFound          = "USER_NOT_FOUND"
	TextCodeRoleNotFound          = "ROLE_NOT_FOUND"
)

var (
	// ErrInvalidCredentials is returned for any failed login. It does not
	// tell unknown usernames apart from wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(errors.CodeUnauthorized)

	// ErrTokenMissing is returned by the HTTP gate when no bearer token is sent
	ErrTokenMissing = jwtware.ErrJWTMissingOrMalformed

	ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
				WithTextCode(TextCodeTokenMalformed).
				WithCode(errors.CodeUnauthorized)

	ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(errors.CodeUnauthorized)

	ErrTokenSignatureInvalid = errors.New("token signature is invalid", errors.CategoryAuth).
					WithTextCode(TextCodeTokenSignatureInvalid).
					WithCode(errors.CodeUnauthorized)

	ErrTokenIssuerInvalid = errors.New("token has invalid issuer", errors.CategoryAuth).
				WithTextCode(TextCodeTokenIssuerInvalid).
				WithCode(errors.CodeUnauthorized)

	ErrTokenAudienceInvalid = errors.New("token has invalid audience", errors.CategoryAuth).
				WithTextCode(TextCodeTokenAudienceInvalid).
				WithCode(errors.CodeUnauthorized)

	// ErrForbidden is returned by the HTTP gate when a valid token lacks
	// every required role
	ErrForbidden = jwtware.ErrForbidden

	ErrDuplicateEmail = errors.New("email is already in use", errors.CategoryValidation).
				WithTextCode(TextCodeDuplicateEmail).
				WithCode(errors.CodeBadRequest)

	ErrDuplicateUsername = errors.New("username is already in use", errors.CategoryValidation).
				WithTextCode(TextCodeDuplicateUsername).
				WithCode(errors.CodeBadRequest)

	ErrDuplicateRole = errors.New("role already exists", errors.CategoryValidation).
				WithTextCode(TextCodeDuplicateRole).
				WithCode(errors.CodeBadRequest)

	ErrInvalidRole = errors.New("invalid role name", errors.CategoryValidation).
			WithTextCode(TextCodeInvalidRole).
			WithCode(errors.CodeBadRequest)

	ErrRoleAlreadyAssigned = errors.New("user is already in this role", errors.CategoryValidation).
				WithTextCode(TextCodeRoleAlreadyAssigned).
				WithCode(errors.CodeBadRequest)

	ErrRoleNotAssigned = errors.New("user is not in this role", errors.CategoryValidation).
				WithTextCode(TextCodeRoleNotAssigned).
				WithCode(errors.CodeBadRequest)

	ErrInvalidPhone = errors.New("phone number is not valid", errors.CategoryValidation).
			WithTextCode(TextCodeInvalidPhone).
			WithCode(errors.CodeBadRequest)

	ErrInvalidCurrentPassword = errors.New("current password is incorrect", errors.CategoryValidation).
					WithTextCode(TextCodeInvalidPassword).
					WithCode(errors.CodeBadRequest)

	ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
			WithTextCode(TextCodeUserNotFound).
			WithCode(errors.CodeNotFound)

	ErrRoleNotFound = errors.New("role not found", errors.CategoryNotFound).
			WithTextCode(TextCodeRoleNotFound).
			WithCode(errors.CodeNotFound)

	ErrPasswordPolicy = errors.New("password does not meet the password policy", errors.CategoryValidation).
				WithTextCode(TextCodePasswordPolicy).
				WithCode(errors.CodeBadRequest)

	// ErrNoEmptyString is returned when hashing an empty password
	ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryBadInput).
				WithCode(errors.CodeBadRequest)
)

// HasTextCode reports whether err, or any error it wraps, is a rich
// error carrying the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	for richErr != nil {
		if richErr.TextCode == code {
			return true
		}
		var next *errors.Error
		if richErr.Source == nil || !errors.As(richErr.Source, &next) {
			return false
		}
		richErr = next
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for malformed or missing tokens
func IsMalformedError(err error) bool {
	return HasTextCode(err, TextCodeTokenMalformed) || HasTextCode(err, TextCodeTokenMissing)
}

// StatusCode maps an error to the HTTP status it is reported with
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code != 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryBadInput, errors.CategoryValidation, errors.CategoryConflict:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// withMeta clones a sentinel before attaching request specific metadata
func withMeta(sentinel *errors.Error, meta map[string]any) *errors.Error {
	return sentinel.Clone().WithMetadata(meta)
}

// validate runs ozzo rules and reports failures as a 400 validation error
func validate(fn func() error, message string) error {
	if verr := errors.ValidateWithOzzo(fn, message); verr != nil {
		return verr.WithCode(errors.CodeBadRequest)
	}
	return nil
}

// IsNotFound reports missing users, roles or rows
func IsNotFound(err error) bool {
	return errors.IsNotFound(err) ||
		HasTextCode(err, TextCodeUserNotFound) ||
		HasTextCode(err, TextCodeRoleNotFound)
}
