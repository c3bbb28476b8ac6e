package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Memberships is the user to role index
type Memberships interface {
	ExistsTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error)
	AddTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) error
	RemoveTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error)
	RoleNamesTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]string, error)
	RoleNamesByUserTx(ctx context.Context, tx bun.IDB, userIDs ...uuid.UUID) (map[uuid.UUID][]string, error)
}

type memberships struct {
	now func() time.Time
}

var _ Memberships = (*memberships)(nil)

func NewMembershipsRepository() Memberships {
	return &memberships{
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (m *memberships) ExistsTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error) {
	return tx.NewSelect().
		Model((*Membership)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.role_id = ?", roleID).
		Exists(ctx)
}

// AddTx inserts the pair. A duplicate pair is reported as
// ErrRoleAlreadyAssigned.
func (m *memberships) AddTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) error {
	record := &Membership{
		UserID:    userID,
		RoleID:    roleID,
		CreatedAt: m.now(),
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return mapConstraintError(err)
	}
	return nil
}

// RemoveTx deletes the pair and reports whether it existed
func (m *memberships) RemoveTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) (bool, error) {
	res, err := tx.NewDelete().
		Model((*Membership)(nil)).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RoleNamesTx returns the sorted role names held by the user
func (m *memberships) RoleNamesTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]string, error) {
	names := make([]string, 0)
	err := tx.NewSelect().
		Model((*Role)(nil)).
		Column("rol.name").
		Join("JOIN user_roles AS mbr ON mbr.role_id = rol.id").
		Where("mbr.user_id = ?", userID).
		Order("rol.name ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, err
	}
	return names, nil
}

type userRoleRow struct {
	UserID uuid.UUID `bun:"user_id"`
	Name   string    `bun:"name"`
}

// RoleNamesByUserTx loads role names for several users in one query
func (m *memberships) RoleNamesByUserTx(ctx context.Context, tx bun.IDB, userIDs ...uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows := make([]userRoleRow, 0)
	err := tx.NewSelect().
		Model((*Role)(nil)).
		ColumnExpr("mbr.user_id AS user_id").
		ColumnExpr("rol.name AS name").
		Join("JOIN user_roles AS mbr ON mbr.role_id = rol.id").
		Where("mbr.user_id IN (?)", bun.In(userIDs)).
		Order("rol.name ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row.Name)
	}
	return out, nil
}
