package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRecord is the public view of a user
type UserRecord struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	Phone          string   `json:"phone_number,omitempty"`
	EmailConfirmed bool     `json:"email_confirmed"`
	Roles          []string `json:"roles"`
}

func NewUserRecord(user *User, roles []string) *UserRecord {
	if roles == nil {
		roles = []string{}
	}
	return &UserRecord{
		ID:             user.ID.String(),
		Username:       user.Username,
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Phone:          user.Phone,
		EmailConfirmed: user.EmailConfirmed,
		Roles:          roles,
	}
}

// Directory answers read only questions about users and roles
type Directory struct {
	repo RepositoryManager
}

func NewDirectory(repo RepositoryManager) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) ListUsers(ctx context.Context) ([]*UserRecord, error) {
	records, err := d.repo.Users().ListTx(ctx, d.repo.DB())
	if err != nil {
		return nil, txError(err, "unable to list users")
	}
	return d.withRoles(ctx, records)
}

func (d *Directory) UsersInRole(ctx context.Context, roleName string) ([]*UserRecord, error) {
	db := d.repo.DB()
	if _, err := d.repo.Roles().GetByNameTx(ctx, db, roleName); err != nil {
		return nil, err
	}
	records, err := d.repo.Users().ListByRoleTx(ctx, db, roleName)
	if err != nil {
		return nil, txError(err, "unable to list users in role")
	}
	return d.withRoles(ctx, records)
}

func (d *Directory) GetUser(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	user, err := d.repo.Users().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.withRolesOne(ctx, user)
}

func (d *Directory) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	user, err := d.repo.Users().GetByEmailTx(ctx, d.repo.DB(), email)
	if err != nil {
		return nil, err
	}
	return d.withRolesOne(ctx, user)
}

func (d *Directory) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	user, err := d.repo.Users().GetByUsernameTx(ctx, d.repo.DB(), username)
	if err != nil {
		return nil, err
	}
	return d.withRolesOne(ctx, user)
}

func (d *Directory) ListRoles(ctx context.Context) ([]*Role, error) {
	roles, err := d.repo.Roles().ListTx(ctx, d.repo.DB())
	if err != nil {
		return nil, txError(err, "unable to list roles")
	}
	return roles, nil
}

func (d *Directory) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	return d.repo.Roles().GetByID(ctx, id)
}

// IsEmailUnique reports whether email is free
func (d *Directory) IsEmailUnique(ctx context.Context, email string) (bool, error) {
	return d.repo.Users().IsEmailUniqueTx(ctx, d.repo.DB(), email, uuid.Nil)
}

// IsUsernameUnique reports whether username is free
func (d *Directory) IsUsernameUnique(ctx context.Context, username string) (bool, error) {
	return d.repo.Users().IsUsernameUniqueTx(ctx, d.repo.DB(), username, uuid.Nil)
}

func (d *Directory) withRolesOne(ctx context.Context, user *User) (*UserRecord, error) {
	roles, err := d.repo.Memberships().RoleNamesTx(ctx, d.repo.DB(), user.ID)
	if err != nil {
		return nil, txError(err, "unable to load user roles")
	}
	return NewUserRecord(user, roles), nil
}

func (d *Directory) withRoles(ctx context.Context, users []*User) ([]*UserRecord, error) {
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	var db bun.IDB = d.repo.DB()
	byUser, err := d.repo.Memberships().RoleNamesByUserTx(ctx, db, ids...)
	if err != nil {
		return nil, txError(err, "unable to load user roles")
	}

	out := make([]*UserRecord, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserRecord(u, byUser[u.ID]))
	}
	return out, nil
}
