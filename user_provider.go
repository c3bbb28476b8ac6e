package auth

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserProvider verifies credentials against the credential store
type UserProvider struct {
	repo   RepositoryManager
	hasher PasswordHasher
	logger Logger

	dummyOnce sync.Once
	dummyHash string
}

var _ IdentityProvider = (*UserProvider)(nil)

// NewUserProvider will create a new UserProvider
func NewUserProvider(repo RepositoryManager, hasher PasswordHasher) *UserProvider {
	return &UserProvider{
		repo:   repo,
		hasher: hasher,
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	if l != nil {
		u.logger = l
	}
	return u
}

// VerifyIdentity will find the user, compare to the password, and return
// identity. Unknown users and wrong passwords produce the same error and
// both pay for a hash comparison.
func (u *UserProvider) VerifyIdentity(ctx context.Context, username, password string) (Identity, error) {
	db := u.repo.DB()

	user, err := u.repo.Users().GetByUsernameTx(ctx, db, username)
	if err != nil {
		if IsNotFound(err) {
			u.hasher.Verify(u.dummy(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if !u.hasher.Verify(user.PasswordHash, password) {
		u.logger.Debug("password mismatch", "user_id", user.ID.String())
		return nil, ErrInvalidCredentials
	}

	if u.hasher.NeedsRehash(user.PasswordHash) {
		u.rehash(ctx, db, user.ID, password)
	}

	if err := u.repo.Users().TrackSuccessfulLoginTx(ctx, db, user.ID); err != nil {
		u.logger.Error("failed to track successful login", "error", err)
	}

	roles, err := u.repo.Memberships().RoleNamesTx(ctx, db, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user roles")
	}

	return NewIdentityFromUser(user, roles), nil
}

// FindIdentityByID loads the identity with its current roles
func (u *UserProvider) FindIdentityByID(ctx context.Context, id string) (Identity, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, withMeta(ErrUserNotFound, map[string]any{"id": id})
	}

	db := u.repo.DB()
	user, err := u.repo.Users().GetByIDTx(ctx, db, uid)
	if err != nil {
		return nil, err
	}

	roles, err := u.repo.Memberships().RoleNamesTx(ctx, db, uid)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user roles")
	}

	return NewIdentityFromUser(user, roles), nil
}

func (u *UserProvider) rehash(ctx context.Context, db bun.IDB, id uuid.UUID, password string) {
	hash, err := u.hasher.HashPassword(password)
	if err != nil {
		u.logger.Warn("failed to rehash password", "user_id", id.String(), "error", err)
		return
	}
	if err := u.repo.Users().ResetPasswordTx(ctx, db, id, hash); err != nil {
		u.logger.Warn("failed to store rehashed password", "user_id", id.String(), "error", err)
		return
	}
	u.logger.Info("upgraded password hash", "user_id", id.String())
}

func (u *UserProvider) dummy() string {
	u.dummyOnce.Do(func() {
		u.dummyHash = u.hasher.RandomPasswordHash()
	})
	return u.dummyHash
}
