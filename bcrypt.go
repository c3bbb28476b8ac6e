package auth

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"hash"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultHashCost = bcrypt.DefaultCost
	MinHashCost     = bcrypt.MinCost
	MaxHashCost     = bcrypt.MaxCost
)

// PasswordHasher hashes new passwords with bcrypt and verifies both
// bcrypt hashes and hashes imported from ASP.NET Identity.
type PasswordHasher struct {
	cost int
}

var _ PasswordAuthenticator = PasswordHasher{}

// NewPasswordHasher returns a hasher using the given bcrypt cost. Out of
// range values fall back to bcrypt.DefaultCost.
func NewPasswordHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return PasswordHasher{cost: cost}
}

// HashPassword will generate a password hash
func (h PasswordHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := h.cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "unable to hash password")
	}
	return string(out), nil
}

// Verify reports whether password matches hash. Unknown or corrupt
// hashes verify as false.
func (h PasswordHasher) Verify(hash, password string) bool {
	if hash == "" {
		return false
	}
	if isBcryptHash(hash) {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	return verifyIdentityHash(hash, password)
}

// NeedsRehash reports whether hash should be replaced with a fresh
// bcrypt hash at the configured cost.
func (h PasswordHasher) NeedsRehash(hash string) bool {
	if !isBcryptHash(hash) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	want := h.cost
	if want == 0 {
		want = bcrypt.DefaultCost
	}
	return cost != want
}

// RandomPasswordHash is a hash nobody knows the password for
func (h PasswordHasher) RandomPasswordHash() string {
	out, err := h.HashPassword(uuid.NewString())
	if err != nil {
		return h.RandomPasswordHash()
	}
	return out
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

const (
	identityV2Marker     = 0x00
	identityV3Marker     = 0x01
	identityV2Iterations = 1000
	identityV2SaltLen    = 16
	identityV2SubkeyLen  = 32
	identityMinSaltLen   = 16
	identityMinSubkeyLen = 16
)

// verifyIdentityHash checks the base64 PBKDF2 formats written by
// ASP.NET Identity password hashers (V2 and V3).
func verifyIdentityHash(encoded, password string) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 {
		return false
	}

	switch raw[0] {
	case identityV2Marker:
		if len(raw) != 1+identityV2SaltLen+identityV2SubkeyLen {
			return false
		}
		salt := raw[1 : 1+identityV2SaltLen]
		expected := raw[1+identityV2SaltLen:]
		actual := pbkdf2.Key([]byte(password), salt, identityV2Iterations, identityV2SubkeyLen, sha1.New)
		return subtle.ConstantTimeCompare(actual, expected) == 1

	case identityV3Marker:
		if len(raw) < 13 {
			return false
		}
		prf := binary.BigEndian.Uint32(raw[1:5])
		iterations := int(binary.BigEndian.Uint32(raw[5:9]))
		saltLen := int(binary.BigEndian.Uint32(raw[9:13]))
		if iterations <= 0 || saltLen < identityMinSaltLen || 13+saltLen > len(raw) {
			return false
		}
		salt := raw[13 : 13+saltLen]
		expected := raw[13+saltLen:]
		if len(expected) < identityMinSubkeyLen {
			return false
		}

		var fn func() hash.Hash
		switch prf {
		case 0:
			fn = sha1.New
		case 1:
			fn = sha256.New
		case 2:
			fn = sha512.New
		default:
			return false
		}

		actual := pbkdf2.Key([]byte(password), salt, iterations, len(expected), fn)
		return subtle.ConstantTimeCompare(actual, expected) == 1
	}

	return false
}
