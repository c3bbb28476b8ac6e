package auth

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService issues and validates bearer tokens
type TokenService interface {
	TokenValidator
	Issue(identity Identity, now time.Time) (string, time.Time, error)
	ValidateAt(tokenString string, now time.Time) (AuthClaims, error)
}

// minimum HMAC secret size in bytes per algorithm
var minKeyLength = map[string]int{
	jwt.SigningMethodHS256.Alg(): 32,
	jwt.SigningMethodHS384.Alg(): 48,
	jwt.SigningMethodHS512.Alg(): 64,
}

// CheckSigningKey verifies the algorithm is a supported HMAC method and
// the secret is long enough for it.
func CheckSigningKey(alg string, key []byte) error {
	want, ok := minKeyLength[alg]
	if !ok {
		return errors.New(fmt.Sprintf("unsupported signing method %q", alg), errors.CategoryBadInput)
	}
	if len(key) < want {
		return errors.New(
			fmt.Sprintf("signing key for %s must be at least %d bytes, got %d", alg, want, len(key)),
			errors.CategoryBadInput,
		)
	}
	return nil
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	method          *jwt.SigningMethodHMAC
	signingKey      []byte
	keyID           string
	keys            *keyfunc.JWKS
	tokenExpiration time.Duration
	issuer          string
	audience        jwt.ClaimStrings
	now             func() time.Time
	logger          Logger
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a TokenService from cfg. It fails when the
// signing key is too short for the configured algorithm.
func NewTokenService(cfg Config, logger Logger) (*TokenServiceImpl, error) {
	if logger == nil {
		logger = defLogger{}
	}

	alg := cfg.GetSigningMethod()
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}

	signingKey := []byte(cfg.GetSigningKey())
	if err := CheckSigningKey(alg, signingKey); err != nil {
		return nil, err
	}

	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, errors.New(fmt.Sprintf("signing method %q is not HMAC", alg), errors.CategoryBadInput)
	}

	if cfg.GetTokenExpiration() <= 0 {
		return nil, errors.New("token expiration must be positive", errors.CategoryBadInput)
	}

	ts := &TokenServiceImpl{
		method:          method,
		signingKey:      signingKey,
		keyID:           cfg.GetKeyID(),
		tokenExpiration: cfg.GetTokenExpiration(),
		issuer:          cfg.GetIssuer(),
		audience:        jwt.ClaimStrings(cfg.GetAudience()),
		now:             time.Now,
		logger:          logger,
	}

	given := make(map[string]keyfunc.GivenKey)
	for kid, secret := range cfg.GetPreviousSigningKeys() {
		if err := CheckSigningKey(alg, []byte(secret)); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("previous key %q", kid))
		}
		given[kid] = keyfunc.NewGivenCustom([]byte(secret), keyfunc.GivenKeyOptions{Algorithm: alg})
	}
	if ts.keyID != "" {
		given[ts.keyID] = keyfunc.NewGivenCustom(signingKey, keyfunc.GivenKeyOptions{Algorithm: alg})
	}
	if len(given) > 0 {
		ts.keys = keyfunc.NewGiven(given)
	}

	return ts, nil
}

// WithClock overrides the time source used by Validate
func (ts *TokenServiceImpl) WithClock(now func() time.Time) *TokenServiceImpl {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Issue signs a token for identity. Roles are embedded as they are now;
// later membership changes only show up after the next login.
func (ts *TokenServiceImpl) Issue(identity Identity, now time.Time) (string, time.Time, error) {
	if identity == nil {
		return "", time.Time{}, errors.New("identity is required", errors.CategoryBadInput)
	}

	expiresAt := now.Add(ts.tokenExpiration)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserName:  identity.Username(),
		UserEmail: identity.Email(),
		RoleNames: NewRoleSet(identity.Roles()...),
	}

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, claims.ExpiresAt.Time, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(ts.method, claims)
	if ts.keyID != "" {
		token.Header["kid"] = ts.keyID
	}

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate checks the token against the current time
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	return ts.ValidateAt(tokenString, ts.now())
}

// ValidateAt parses and validates a token string as of now. There is no
// leeway: a token is accepted up to and including its exp second and
// rejected once now is past it.
func (ts *TokenServiceImpl) ValidateAt(tokenString string, now time.Time) (AuthClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{ts.method.Alg()}),
		jwt.WithExpirationRequired(),
		// the parser treats now == exp as expired
		jwt.WithTimeFunc(func() time.Time { return now.Add(-time.Nanosecond) }),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, ts.keyFunc, parserOptions...)
	if err != nil {
		return nil, ts.classify(err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrTokenMalformed
}

func (ts *TokenServiceImpl) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		ts.logger.Warn("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}

	if _, hasKid := t.Header["kid"]; hasKid && ts.keys != nil {
		return ts.keys.Keyfunc(t)
	}

	return ts.signingKey, nil
}

func (ts *TokenServiceImpl) classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return tokenError(ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return tokenError(ErrTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return tokenError(ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return tokenError(ErrTokenIssuerInvalid, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return tokenError(ErrTokenAudienceInvalid, err)
	default:
		return tokenError(ErrTokenMalformed, err)
	}
}

func tokenError(sentinel *errors.Error, err error) error {
	return errors.Wrap(err, sentinel.Category, sentinel.Message).
		WithTextCode(sentinel.TextCode).
		WithCode(sentinel.Code)
}
