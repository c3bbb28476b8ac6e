package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// commandTimeout bounds every mutating transaction
var commandTimeout = 10 * time.Second

// CommandDeps are the collaborators shared by the command handlers
type CommandDeps struct {
	Repo        RepositoryManager
	Hasher      PasswordHasher
	Policy      PasswordPolicy
	PhoneRegion string
	Activity    ActivitySink
	Logger      Logger
	// EmailDerivedIDs makes every created user's id a hash of its email,
	// so imports into separate databases agree on ids.
	EmailDerivedIDs bool
}

func (d CommandDeps) logger() Logger {
	if d.Logger == nil {
		return defLogger{}
	}
	return d.Logger
}

func (d CommandDeps) record(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, normalizeActivitySink(d.Activity), d.logger(), event)
}

// checkContext returns a wrapped error when ctx is already done
func checkContext(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+operation,
		)
	default:
		return nil
	}
}

// txError keeps rich errors and wraps anything else as internal
func txError(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
