package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles stores role records
type Roles interface {
	CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error)
	EnsureTx(ctx context.Context, tx bun.IDB, record *Role) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	ListTx(ctx context.Context, tx bun.IDB) ([]*Role, error)
}

type roles struct {
	repository.Repository[*Role]
	db  *bun.DB
	now func() time.Time
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &roles{
		Repository: repo,
		db:         db,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *roles) CreateTx(ctx context.Context, tx bun.IDB, record *Role) (*Role, error) {
	prepareRoleDefaults(record, r.now())
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, mapConstraintError(err)
	}
	return record, nil
}

// EnsureTx inserts record unless a role with the same name exists. It
// reports whether a row was written.
func (r *roles) EnsureTx(ctx context.Context, tx bun.IDB, record *Role) (bool, error) {
	prepareRoleDefaults(record, r.now())
	res, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, mapConstraintError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *roles) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	record, err := r.Repository.GetByID(ctx, id.String())
	if err != nil {
		return nil, notFoundOr(err, ErrRoleNotFound, "id", id)
	}
	return record, nil
}

func (r *roles) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, ErrRoleNotFound, "id", id)
	}
	return record, nil
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, ErrRoleNotFound, "name", name)
	}
	return record, nil
}

func (r *roles) ListTx(ctx context.Context, tx bun.IDB) ([]*Role, error) {
	records := make([]*Role, 0)
	if err := tx.NewSelect().Model(&records).Order("rol.name ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}
