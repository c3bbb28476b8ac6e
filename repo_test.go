package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/hipp-al/go-hipp-auth"
)

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, auth.Migrate(context.Background(), db, nil))

	dir, dialect, err := auth.MigrationsDir(db)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", dialect)
	assert.NotEmpty(t, dir)
}

func TestUsersRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()
	db := repo.DB()

	created, err := users.Create(ctx, &auth.User{
		Username:     "Drita",
		Email:        "  Drita@Hipp.COM ",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "drita@hipp.com", created.Email)
	assert.False(t, created.CreatedAt.IsZero())

	byID, err := users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drita", byID.Username)

	byEmail, err := users.GetByEmailTx(ctx, db, "DRITA@hipp.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byUsername, err := users.GetByUsernameTx(ctx, db, "drita")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUsername.ID)

	exists, err := users.ExistsTx(ctx, db, created.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = users.GetByID(ctx, uuid.New())
	assert.True(t, auth.IsNotFound(err))
	assert.Equal(t, 404, auth.StatusCode(err))
}

func TestUsersRepository_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()

	_, err := users.Create(ctx, &auth.User{Username: "arben", Email: "arben@hipp.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = users.Create(ctx, &auth.User{Username: "other", Email: "ARBEN@hipp.com", PasswordHash: "h"})
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeDuplicateEmail), "got %v", err)

	_, err = users.Create(ctx, &auth.User{Username: "Arben", Email: "other@hipp.com", PasswordHash: "h"})
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeDuplicateUsername), "got %v", err)

	unique, err := users.IsEmailUniqueTx(ctx, repo.DB(), "arben@hipp.com", uuid.Nil)
	require.NoError(t, err)
	assert.False(t, unique)

	unique, err = users.IsUsernameUniqueTx(ctx, repo.DB(), "ARBEN", uuid.Nil)
	require.NoError(t, err)
	assert.False(t, unique)
}

func TestUsersRepository_ConstraintBehindPassedCheck(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	users := repo.Users()

	tests := []struct {
		name   string
		first  *auth.User
		second *auth.User
		code   string
	}{
		{
			name:   "email",
			first:  &auth.User{Username: "first", Email: "same@hipp.test", PasswordHash: "h"},
			second: &auth.User{Username: "second", Email: "same@hipp.test", PasswordHash: "h"},
			code:   auth.TextCodeDuplicateEmail,
		},
		{
			name:   "username",
			first:  &auth.User{Username: "twin", Email: "twin1@hipp.test", PasswordHash: "h"},
			second: &auth.User{Username: "twin", Email: "twin2@hipp.test", PasswordHash: "h"},
			code:   auth.TextCodeDuplicateUsername,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
				// both writers checked before either inserted
				for _, u := range []*auth.User{tt.first, tt.second} {
					emailFree, err := users.IsEmailUniqueTx(ctx, tx, u.Email, uuid.Nil)
					require.NoError(t, err)
					nameFree, err := users.IsUsernameUniqueTx(ctx, tx, u.Username, uuid.Nil)
					require.NoError(t, err)
					require.True(t, emailFree && nameFree)
				}

				if _, err := users.CreateTx(ctx, tx, tt.first); err != nil {
					return err
				}
				_, err := users.CreateTx(ctx, tx, tt.second)
				return err
			})
			require.Error(t, err)
			assert.True(t, auth.HasTextCode(err, tt.code), "got %v", err)
			assert.Equal(t, 400, auth.StatusCode(err))
		})
	}
}

func TestUsersRepository_ResetAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	deps := testDeps(repo)
	db := repo.DB()

	record := createUser(t, deps, "besa", auth.RoleDriver)
	id := userID(t, record)

	require.NoError(t, repo.Users().ResetPasswordTx(ctx, db, id, "new-hash"))
	user, err := repo.Users().GetByIDTx(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", user.PasswordHash)

	err = repo.Users().ResetPasswordTx(ctx, db, uuid.New(), "x")
	assert.True(t, auth.IsNotFound(err))

	require.NoError(t, repo.Users().DeleteTx(ctx, db, id))

	names, err := repo.Memberships().RoleNamesTx(ctx, db, id)
	require.NoError(t, err)
	assert.Empty(t, names)

	err = repo.Users().DeleteTx(ctx, db, id)
	assert.True(t, auth.IsNotFound(err))
}

func TestRolesRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	db := repo.DB()

	roles, err := repo.Roles().ListTx(ctx, db)
	require.NoError(t, err)
	assert.Len(t, roles, 5)

	admin, err := repo.Roles().GetByNameTx(ctx, db, auth.RoleAdmin)
	require.NoError(t, err)

	byID, err := repo.Roles().GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, byID.Name)

	_, err = repo.Roles().CreateTx(ctx, db, &auth.Role{Name: auth.RoleAdmin})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeDuplicateRole), "got %v", err)

	created, err := repo.Roles().EnsureTx(ctx, db, &auth.Role{Name: auth.RoleAdmin})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.Roles().GetByNameTx(ctx, db, "admin")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRoleNotFound))
}

func TestMembershipsRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	db := repo.DB()
	m := repo.Memberships()

	a := userID(t, createUser(t, testDeps(repo), "ana"))
	b := userID(t, createUser(t, testDeps(repo), "ben"))
	admin := roleID(t, repo, auth.RoleAdmin)
	driver := roleID(t, repo, auth.RoleDriver)

	require.NoError(t, m.AddTx(ctx, db, a, driver))
	require.NoError(t, m.AddTx(ctx, db, a, admin))
	require.NoError(t, m.AddTx(ctx, db, b, driver))

	err := m.AddTx(ctx, db, a, admin)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRoleAlreadyAssigned), "got %v", err)

	names, err := m.RoleNamesTx(ctx, db, a)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleAdmin, auth.RoleDriver}, names)

	byUser, err := m.RoleNamesByUserTx(ctx, db, a, b)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleDriver}, byUser[b])
	assert.Len(t, byUser[a], 2)

	drivers, err := repo.Users().ListByRoleTx(ctx, db, auth.RoleDriver)
	require.NoError(t, err)
	assert.Len(t, drivers, 2)

	removed, err := m.RemoveTx(ctx, db, a, admin)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.RemoveTx(ctx, db, a, admin)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, auth.IsUniqueViolation(nil))
	assert.False(t, auth.IsUniqueViolation(assert.AnError))
	assert.True(t, auth.IsUniqueViolation(wrapped{msg: "UNIQUE constraint failed: users.email"}))
	assert.True(t, auth.IsUniqueViolation(wrapped{msg: "ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"}))
}

type wrapped struct{ msg string }

func (w wrapped) Error() string { return w.msg }
