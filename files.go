package auth

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package state
var migrateMu sync.Mutex

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsDir returns the embedded directory holding the migrations
// for the dialect of the given database.
func MigrationsDir(db *bun.DB) (dir string, gooseDialect string, err error) {
	switch db.Dialect().Name() {
	case dialect.SQLite:
		return "data/sql/migrations/sqlite", "sqlite3", nil
	case dialect.PG:
		return "data/sql/migrations/postgres", "postgres", nil
	default:
		return "", "", errors.New(
			fmt.Sprintf("unsupported dialect %s", db.Dialect().Name()),
			errors.CategoryInternal,
		)
	}
}

// Migrate applies all pending migrations
func Migrate(ctx context.Context, db *bun.DB, logger Logger) error {
	if logger == nil {
		logger = defLogger{}
	}

	dir, gooseDialect, err := MigrationsDir(db)
	if err != nil {
		return err
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to open migrations")
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(sub)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{logger: logger})

	if err := goose.SetDialect(gooseDialect); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to set migration dialect")
	}

	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to apply migrations")
	}

	logger.Debug("migrations applied", "dialect", gooseDialect)
	return nil
}

type gooseLogger struct {
	logger Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logger.Error(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logger.Debug(fmt.Sprintf(format, v...))
}
