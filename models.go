package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account record owned by the credential store
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username       string     `bun:"username,notnull,unique" json:"username"`
	Email          string     `bun:"email,notnull,unique" json:"email"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name"`
	LastName       string     `bun:"last_name,notnull" json:"last_name"`
	Phone          string     `bun:"phone_number,notnull" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash,notnull" json:"-"`
	EmailConfirmed bool       `bun:"email_confirmed,notnull" json:"email_confirmed"`
	LoggedInAt     *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Role is a named group of users
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name          string    `bun:"name,notnull,unique" json:"name"`
	Description   string    `bun:"description,notnull" json:"description"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Membership links a user to a role. The pair is the primary key.
type Membership struct {
	bun.BaseModel `bun:"table:user_roles,alias:mbr"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid" json:"role_id"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

func prepareUserDefaults(user *User, now time.Time) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = NormalizeEmail(user.Email)
	user.Username = strings.TrimSpace(user.Username)
}

func prepareRoleDefaults(role *Role, now time.Time) {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.Name = strings.TrimSpace(role.Name)
}

// NormalizeEmail lower cases and trims an email address so lookups and
// the unique index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
