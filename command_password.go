package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetPasswordMessage sets a new password on behalf of an administrator.
// The current password is not required.
type ResetPasswordMessage struct {
	UserID      uuid.UUID `json:"-"`
	NewPassword string    `json:"new_password"`
	Actor       ActorRef  `json:"-"`
}

func (e ResetPasswordMessage) Type() string { return "user.password.reset" }

// ChangePasswordMessage is a user changing its own password
type ChangePasswordMessage struct {
	UserID          uuid.UUID `json:"-"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`
}

func (e ChangePasswordMessage) Type() string { return "user.password.change" }

type ResetPasswordHandler struct {
	CommandDeps
}

func NewResetPasswordHandler(deps CommandDeps) *ResetPasswordHandler {
	return &ResetPasswordHandler{CommandDeps: deps}
}

func (h *ResetPasswordHandler) Execute(ctx context.Context, event ResetPasswordMessage) error {
	if err := checkContext(ctx, "password reset"); err != nil {
		return err
	}

	if err := h.Policy.Check("new_password", event.NewPassword); err != nil {
		return err
	}

	hash, err := h.Hasher.HashPassword(event.NewPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err = h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.Repo.Users().ResetPasswordTx(ctx, tx, event.UserID, hash)
	})
	if err != nil {
		return txError(err, "password reset transaction failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Actor:     event.Actor,
		UserID:    event.UserID.String(),
	})

	return nil
}

type ChangePasswordHandler struct {
	CommandDeps
}

func NewChangePasswordHandler(deps CommandDeps) *ChangePasswordHandler {
	return &ChangePasswordHandler{CommandDeps: deps}
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	if err := checkContext(ctx, "password change"); err != nil {
		return err
	}

	if event.CurrentPassword == "" {
		return ErrInvalidCurrentPassword
	}

	if err := h.Policy.Check("new_password", event.NewPassword); err != nil {
		return err
	}

	user, err := h.Repo.Users().GetByIDTx(ctx, h.Repo.DB(), event.UserID)
	if err != nil {
		return err
	}

	if !h.Hasher.Verify(user.PasswordHash, event.CurrentPassword) {
		return ErrInvalidCurrentPassword
	}

	hash, err := h.Hasher.HashPassword(event.NewPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err = h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.Repo.Users().ResetPasswordTx(ctx, tx, event.UserID, hash)
	})
	if err != nil {
		return txError(err, "password change transaction failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorRef{ID: event.UserID.String(), Type: "user"},
		UserID:    event.UserID.String(),
	})

	return nil
}
