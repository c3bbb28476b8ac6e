package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type DeleteUserMessage struct {
	ID    uuid.UUID
	Actor ActorRef
}

func (e DeleteUserMessage) Type() string { return "user.delete" }

// DeleteUserHandler removes a user and its memberships. Deletion is
// final, there is no soft delete.
type DeleteUserHandler struct {
	CommandDeps
}

func NewDeleteUserHandler(deps CommandDeps) *DeleteUserHandler {
	return &DeleteUserHandler{CommandDeps: deps}
}

func (h *DeleteUserHandler) Execute(ctx context.Context, event DeleteUserMessage) error {
	if err := checkContext(ctx, "user deletion"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err := h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.Repo.Users().DeleteTx(ctx, tx, event.ID)
	})
	if err != nil {
		return txError(err, "user deletion transaction failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     event.Actor,
		UserID:    event.ID.String(),
	})

	return nil
}
