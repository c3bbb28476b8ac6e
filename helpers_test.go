package auth_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/hipp-al/go-hipp-auth"
)

const testPassword = "secret1"

type testConfig struct {
	key      string
	method   string
	kid      string
	previous map[string]string
	exp      time.Duration
	issuer   string
	audience []string
}

func newTestConfig() *testConfig {
	return &testConfig{
		key:      strings.Repeat("k", 32),
		method:   "HS256",
		exp:      time.Hour,
		issuer:   "hipp-test",
		audience: []string{"hipp-clients"},
	}
}

func (c *testConfig) GetSigningKey() string                     { return c.key }
func (c *testConfig) GetSigningMethod() string                  { return c.method }
func (c *testConfig) GetKeyID() string                          { return c.kid }
func (c *testConfig) GetPreviousSigningKeys() map[string]string { return c.previous }
func (c *testConfig) GetTokenExpiration() time.Duration         { return c.exp }
func (c *testConfig) GetIssuer() string                         { return c.issuer }
func (c *testConfig) GetAudience() []string                     { return c.audience }
func (c *testConfig) GetContextKey() string                     { return "user" }
func (c *testConfig) GetAuthScheme() string                     { return "Bearer" }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// captureSink records activity events
type captureSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// newTestDB opens a private in-memory SQLite database with the schema
// applied. A single connection keeps the database alive and serializes
// transactions.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	require.NoError(t, auth.Migrate(context.Background(), db, nopLogger{}))
	return db
}

func testHasher() auth.PasswordHasher {
	return auth.NewPasswordHasher(auth.MinHashCost)
}

// newTestRepo returns a repository manager over a fresh database with
// the default roles seeded.
func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()
	repo := auth.NewRepositoryManager(newTestDB(t))
	require.NoError(t, auth.NewSeeder(repo, testHasher()).WithLogger(nopLogger{}).SeedRoles(context.Background()))
	return repo
}

func testDeps(repo auth.RepositoryManager) auth.CommandDeps {
	return auth.CommandDeps{
		Repo:        repo,
		Hasher:      testHasher(),
		Policy:      auth.DefaultPasswordPolicy(),
		PhoneRegion: auth.DefaultPhoneRegion,
		Logger:      nopLogger{},
	}
}

func createUser(t *testing.T, deps auth.CommandDeps, username string, roles ...string) *auth.UserRecord {
	t.Helper()
	record, err := auth.NewCreateUserHandler(deps).Execute(context.Background(), auth.CreateUserMessage{
		Username:  username,
		Email:     username + "@hipp.test",
		Password:  testPassword,
		FirstName: "Test",
		LastName:  "User",
		Roles:     roles,
	})
	require.NoError(t, err)
	return record
}

func roleID(t *testing.T, repo auth.RepositoryManager, name string) uuid.UUID {
	t.Helper()
	role, err := repo.Roles().GetByNameTx(context.Background(), repo.DB(), name)
	require.NoError(t, err)
	return role.ID
}

func userID(t *testing.T, record *auth.UserRecord) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(record.ID)
	require.NoError(t, err)
	return id
}
