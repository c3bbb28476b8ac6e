package auth

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// notFoundOr turns a missing row into a copy of sentinel and passes any
// other error through.
func notFoundOr(err error, sentinel *errors.Error, key string, value any) error {
	if repository.IsRecordNotFound(err) {
		return withMeta(sentinel, map[string]any{key: fmt.Sprint(value)})
	}
	return err
}

// IsUniqueViolation reports whether err comes from a unique index or
// primary key violation on postgres or SQLite.
func IsUniqueViolation(err error) bool {
	_, ok := uniqueViolationTarget(err)
	return ok
}

// uniqueViolationTarget returns the constraint name or message that
// identifies the violated index.
func uniqueViolationTarget(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation {
			return pgErr.ConstraintName + " " + pgErr.Message, true
		}
		return "", false
	}

	for cur := err; cur != nil; cur = stderrors.Unwrap(cur) {
		msg := cur.Error()
		if strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "SQLSTATE 23505") ||
			strings.Contains(msg, "duplicate key value") {
			return msg, true
		}
	}
	return "", false
}

// mapConstraintError converts storage level uniqueness failures into
// the matching validation error.
func mapConstraintError(err error) error {
	target, ok := uniqueViolationTarget(err)
	if !ok {
		return err
	}

	switch {
	case strings.Contains(target, "user_roles"):
		return ErrRoleAlreadyAssigned
	case strings.Contains(target, "email"):
		return ErrDuplicateEmail
	case strings.Contains(target, "username"):
		return ErrDuplicateUsername
	case strings.Contains(target, "roles"), strings.Contains(target, "name"):
		return ErrDuplicateRole
	default:
		return errors.Wrap(err, errors.CategoryValidation, "unique constraint violated").
			WithCode(errors.CodeBadRequest)
	}
}
