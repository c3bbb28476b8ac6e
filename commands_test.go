package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/hipp-al/go-hipp-auth"
)

func TestCreateUser(t *testing.T) {
	repo := newTestRepo(t)
	sink := &captureSink{}
	deps := testDeps(repo)
	deps.Activity = sink

	record, err := auth.NewCreateUserHandler(deps).Execute(context.Background(), auth.CreateUserMessage{
		Username:  "klodi",
		Email:     "Klodi@Hipp.com",
		Password:  "klodi123",
		FirstName: "Klodian",
		LastName:  "Hoxha",
		Phone:     "069 123 4567",
		Roles:     []string{auth.RoleSales, auth.RoleDriver, auth.RoleSales},
		Actor:     auth.ActorRef{ID: "admin", Type: "user"},
	})
	require.NoError(t, err)

	assert.Equal(t, "klodi", record.Username)
	assert.Equal(t, "klodi@hipp.com", record.Email)
	assert.Equal(t, "+355691234567", record.Phone)
	assert.True(t, record.EmailConfirmed)
	assert.Equal(t, []string{auth.RoleSales, auth.RoleDriver}, record.Roles)
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventUserCreated}, sink.Types())

	user, err := repo.Users().GetByIDTx(context.Background(), repo.DB(), userID(t, record))
	require.NoError(t, err)
	assert.NotEqual(t, "klodi123", user.PasswordHash)
	assert.True(t, testHasher().Verify(user.PasswordHash, "klodi123"))
}

func TestCreateUser_Rejections(t *testing.T) {
	repo := newTestRepo(t)
	deps := testDeps(repo)
	createUser(t, deps, "taken")

	base := auth.CreateUserMessage{
		Username: "fresh",
		Email:    "fresh@hipp.test",
		Password: testPassword,
	}

	tests := []struct {
		name   string
		mutate func(m *auth.CreateUserMessage)
		code   string
	}{
		{name: "duplicate email", mutate: func(m *auth.CreateUserMessage) { m.Email = "TAKEN@hipp.test" }, code: auth.TextCodeDuplicateEmail},
		{name: "duplicate username", mutate: func(m *auth.CreateUserMessage) { m.Username = "Taken" }, code: auth.TextCodeDuplicateUsername},
		{name: "unknown role", mutate: func(m *auth.CreateUserMessage) { m.Roles = []string{"Pilot"} }, code: auth.TextCodeInvalidRole},
		{name: "weak password", mutate: func(m *auth.CreateUserMessage) { m.Password = "ABC" }, code: auth.TextCodePasswordPolicy},
		{name: "bad phone", mutate: func(m *auth.CreateUserMessage) { m.Phone = "phone" }, code: auth.TextCodeInvalidPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := base
			tt.mutate(&msg)

			_, err := auth.NewCreateUserHandler(deps).Execute(context.Background(), msg)
			require.Error(t, err)
			assert.True(t, auth.HasTextCode(err, tt.code), "got %v", err)
			assert.Equal(t, 400, auth.StatusCode(err))
		})
	}

	t.Run("invalid payload", func(t *testing.T) {
		_, err := auth.NewCreateUserHandler(deps).Execute(context.Background(), auth.CreateUserMessage{
			Username: "a b",
			Email:    "not-an-email",
			Password: testPassword,
		})
		require.Error(t, err)
		assert.Equal(t, 400, auth.StatusCode(err))
	})

	users, err := auth.NewDirectory(repo).ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

// The test database has a single connection, so the two creates run one
// after the other and the second is stopped by the in transaction check.
// TestUsersRepository_ConstraintBehindPassedCheck covers the interleaving
// where both checks pass before either insert.
func TestCreateUser_ParallelDuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	deps := testDeps(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = auth.NewCreateUserHandler(deps).Execute(context.Background(), auth.CreateUserMessage{
				Username: []string{"first", "second"}[i],
				Email:    "same@hipp.test",
				Password: testPassword,
			})
		}(i)
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case auth.HasTextCode(err, auth.TextCodeDuplicateEmail):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, duplicates)
}

func TestCreateUser_EmailDerivedIDsFromDeps(t *testing.T) {
	create := func(derived bool, email string) string {
		deps := testDeps(newTestRepo(t))
		deps.EmailDerivedIDs = derived
		record, err := auth.NewCreateUserHandler(deps).Execute(context.Background(), auth.CreateUserMessage{
			Username: "imported",
			Email:    email,
			Password: testPassword,
		})
		require.NoError(t, err)
		return record.ID
	}

	assert.Equal(t, create(true, "imported@hipp.test"), create(true, "IMPORTED@hipp.test"))
	assert.NotEqual(t, create(false, "imported@hipp.test"), create(false, "imported@hipp.test"))
}

func TestUpdateUser(t *testing.T) {
	repo := newTestRepo(t)
	deps := testDeps(repo)
	target := createUser(t, deps, "dea", auth.RoleLabeler)
	createUser(t, deps, "eni")

	first := "Dea"
	phone := "+355 69 765 4321"
	record, err := auth.NewUpdateUserHandler(deps).Execute(context.Background(), auth.UpdateUserMessage{
		ID:        userID(t, target),
		FirstName: &first,
		Phone:     &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dea", record.FirstName)
	assert.Equal(t, "User", record.LastName)
	assert.Equal(t, "+355697654321", record.Phone)
	assert.Equal(t, "dea@hipp.test", record.Email)
	assert.Equal(t, []string{auth.RoleLabeler}, record.Roles)

	same := "DEA@hipp.test"
	_, err = auth.NewUpdateUserHandler(deps).Execute(context.Background(), auth.UpdateUserMessage{
		ID:    userID(t, target),
		Email: &same,
	})
	assert.NoError(t, err)

	taken := "eni@hipp.test"
	_, err = auth.NewUpdateUserHandler(deps).Execute(context.Background(), auth.UpdateUserMessage{
		ID:    userID(t, target),
		Email: &taken,
	})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeDuplicateEmail), "got %v", err)

	_, err = auth.NewUpdateUserHandler(deps).Execute(context.Background(), auth.UpdateUserMessage{
		ID:        uuid.New(),
		FirstName: &first,
	})
	assert.Equal(t, 404, auth.StatusCode(err))
}

func TestDeleteUser(t *testing.T) {
	repo := newTestRepo(t)
	deps := testDeps(repo)
	record := createUser(t, deps, "gone", auth.RoleAdmin, auth.RoleDriver)
	id := userID(t, record)

	h := auth.NewDeleteUserHandler(deps)
	require.NoError(t, h.Execute(context.Background(), auth.DeleteUserMessage{ID: id}))

	_, err := auth.NewDirectory(repo).GetUser(context.Background(), id)
	assert.True(t, auth.IsNotFound(err))

	admins, err := auth.NewDirectory(repo).UsersInRole(context.Background(), auth.RoleAdmin)
	require.NoError(t, err)
	assert.Empty(t, admins)

	err = h.Execute(context.Background(), auth.DeleteUserMessage{ID: id})
	assert.Equal(t, 404, auth.StatusCode(err))
}

func TestRoleMembershipGuards(t *testing.T) {
	repo := newTestRepo(t)
	deps := testDeps(repo)
	user := userID(t, createUser(t, deps, "mira"))
	manager := roleID(t, repo, auth.RoleManager)

	assign := auth.NewAssignRoleHandler(deps)
	remove := auth.NewRemoveRoleHandler(deps)
	msg := auth.RoleMembershipMessage{UserID: user, RoleID: manager}

	require.NoError(t, assign.Execute(context.Background(), msg))

	err := assign.Execute(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRoleAlreadyAssigned))
	assert.Equal(t, 400, auth.StatusCode(err))

	require.NoError(t, remove.Execute(context.Background(), msg))

	err = remove.Execute(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRoleNotAssigned))
	assert.Equal(t, 400, auth.StatusCode(err))

	err = assign.Execute(context.Background(), auth.RoleMembershipMessage{UserID: uuid.New(), RoleID: manager})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeUserNotFound))
	assert.Equal(t, 404, auth.StatusCode(err))

	err = remove.Execute(context.Background(), auth.RoleMembershipMessage{UserID: user, RoleID: uuid.New()})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRoleNotFound))
	assert.Equal(t, 404, auth.StatusCode(err))
}

func TestCreateRole(t *testing.T) {
	repo := newTestRepo(t)
	h := auth.NewCreateRoleHandler(testDeps(repo))

	role, err := h.Execute(context.Background(), auth.CreateRoleMessage{Name: " Magazinier ", Description: "Warehouse"})
	require.NoError(t, err)
	assert.Equal(t, "Magazinier", role.Name)
	assert.NotEqual(t, uuid.Nil, role.ID)

	_, err = h.Execute(context.Background(), auth.CreateRoleMessage{Name: "Magazinier"})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeDuplicateRole))

	_, err = h.Execute(context.Background(), auth.CreateRoleMessage{Name: "  "})
	assert.Equal(t, 400, auth.StatusCode(err))

	roles, err := auth.NewDirectory(repo).ListRoles(context.Background())
	require.NoError(t, err)
	assert.Len(t, roles, 6)
}

func TestResetPassword(t *testing.T) {
	repo := newTestRepo(t)
	deps := testDeps(repo)
	id := userID(t, createUser(t, deps, "rina"))

	provider := auth.NewUserProvider(repo, testHasher()).WithLogger(nopLogger{})
	_, err := provider.VerifyIdentity(context.Background(), "rina", testPassword)
	require.NoError(t, err)

	h := auth.NewResetPasswordHandler(deps)
	require.NoError(t, h.Execute(context.Background(), auth.ResetPasswordMessage{UserID: id, NewPassword: "fresh-one"}))

	_, err = provider.VerifyIdentity(context.Background(), "rina", testPassword)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidCredentials))

	_, err = provider.VerifyIdentity(context.Background(), "rina", "fresh-one")
	assert.NoError(t, err)

	err = h.Execute(context.Background(), auth.ResetPasswordMessage{UserID: id, NewPassword: "NOLOWER"})
	assert.True(t, auth.HasTextCode(err, auth.TextCodePasswordPolicy))

	err = h.Execute(context.Background(), auth.ResetPasswordMessage{UserID: uuid.New(), NewPassword: "valid-one"})
	assert.Equal(t, 404, auth.StatusCode(err))
}

func TestChangePassword(t *testing.T) {
	repo := newTestRepo(t)
	deps := testDeps(repo)
	id := userID(t, createUser(t, deps, "sara"))
	h := auth.NewChangePasswordHandler(deps)

	err := h.Execute(context.Background(), auth.ChangePasswordMessage{UserID: id, CurrentPassword: "wrong", NewPassword: "another1"})
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidPassword))
	assert.Equal(t, 400, auth.StatusCode(err))

	require.NoError(t, h.Execute(context.Background(), auth.ChangePasswordMessage{
		UserID:          id,
		CurrentPassword: testPassword,
		NewPassword:     "another1",
	}))

	_, err = auth.NewUserProvider(repo, testHasher()).WithLogger(nopLogger{}).
		VerifyIdentity(context.Background(), "sara", "another1")
	assert.NoError(t, err)
}

func TestCommands_CancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := auth.NewCreateUserHandler(testDeps(repo)).Execute(ctx, auth.CreateUserMessage{
		Username: "late",
		Email:    "late@hipp.test",
		Password: testPassword,
	})
	assert.Error(t, err)
}
