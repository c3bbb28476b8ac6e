package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetUserPasswordSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"id" = ?;`

// Users is the credential store for user records
type Users interface {
	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	ExistsTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)
	ListTx(ctx context.Context, tx bun.IDB) ([]*User, error)
	ListByRoleTx(ctx context.Context, tx bun.IDB, roleName string) ([]*User, error)

	IsEmailUniqueTx(ctx context.Context, tx bun.IDB, email string, except uuid.UUID) (bool, error)
	IsUsernameUniqueTx(ctx context.Context, tx bun.IDB, username string, except uuid.UUID) (bool, error)

	UpdateProfileTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

// CreateTx inserts the record. Unique index violations are reported as
// duplicate email or username errors.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record, a.now())
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, mapConstraintError(err)
	}
	return record, nil
}

// GetByID loads a user outside of a transaction
func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record, err := a.Repository.GetByID(ctx, id.String())
	if err != nil {
		return nil, notFoundOr(err, ErrUserNotFound, "id", id)
	}
	return record, nil
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.getByColumnTx(ctx, tx, "id", id)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getByColumnTx(ctx, tx, "email", NormalizeEmail(email))
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.username) = lower(?)", strings.TrimSpace(username)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, ErrUserNotFound, "username", username)
	}
	return record, nil
}

func (a *users) getByColumnTx(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, ErrUserNotFound, column, value)
	}
	return record, nil
}

func (a *users) ExistsTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Exists(ctx)
}

func (a *users) ListTx(ctx context.Context, tx bun.IDB) ([]*User, error) {
	records := make([]*User, 0)
	err := tx.NewSelect().
		Model(&records).
		Order("usr.username ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *users) ListByRoleTx(ctx context.Context, tx bun.IDB, roleName string) ([]*User, error) {
	records := make([]*User, 0)
	err := tx.NewSelect().
		Model(&records).
		Join("JOIN user_roles AS mbr ON mbr.user_id = usr.id").
		Join("JOIN roles AS rol ON rol.id = mbr.role_id").
		Where("rol.name = ?", roleName).
		Order("usr.username ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// IsEmailUniqueTx reports whether no user other than except uses email
func (a *users) IsEmailUniqueTx(ctx context.Context, tx bun.IDB, email string, except uuid.UUID) (bool, error) {
	q := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", NormalizeEmail(email))
	if except != uuid.Nil {
		q = q.Where("?TableAlias.id <> ?", except)
	}
	exists, err := q.Exists(ctx)
	return !exists, err
}

// IsUsernameUniqueTx reports whether no user other than except uses
// username, ignoring case.
func (a *users) IsUsernameUniqueTx(ctx context.Context, tx bun.IDB, username string, except uuid.UUID) (bool, error) {
	q := tx.NewSelect().
		Model((*User)(nil)).
		Where("lower(?TableAlias.username) = lower(?)", strings.TrimSpace(username))
	if except != uuid.Nil {
		q = q.Where("?TableAlias.id <> ?", except)
	}
	exists, err := q.Exists(ctx)
	return !exists, err
}

// UpdateProfileTx persists the editable profile columns of record
func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	record.Email = NormalizeEmail(record.Email)
	record.UpdatedAt = a.now()

	res, err := tx.NewUpdate().
		Model(record).
		Column("first_name", "last_name", "email", "phone_number", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, mapConstraintError(err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil, withMeta(ErrUserNotFound, map[string]any{"id": record.ID.String()})
	}

	return record, nil
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := tx.NewRaw(ResetUserPasswordSQL, passwordHash, a.now(), id).Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return withMeta(ErrUserNotFound, map[string]any{"id": id.String()})
	}

	return nil
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("loggedin_at = ?", a.now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// DeleteTx removes the user and its memberships
func (a *users) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*Membership)(nil)).
		Where("user_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return withMeta(ErrUserNotFound, map[string]any{"id": id.String()})
	}

	return nil
}
