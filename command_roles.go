package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleMembershipMessage names a user and a role by id
type RoleMembershipMessage struct {
	UserID uuid.UUID `json:"user_id"`
	RoleID uuid.UUID `json:"role_id"`
	Actor  ActorRef  `json:"-"`
}

func (e RoleMembershipMessage) Type() string { return "role.membership" }

// AssignRoleHandler adds a user to a role. Assigning a held role fails
// with ErrRoleAlreadyAssigned.
type AssignRoleHandler struct {
	CommandDeps
}

func NewAssignRoleHandler(deps CommandDeps) *AssignRoleHandler {
	return &AssignRoleHandler{CommandDeps: deps}
}

func (h *AssignRoleHandler) Execute(ctx context.Context, event RoleMembershipMessage) error {
	if err := checkContext(ctx, "role assignment"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var role *Role
	err := h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if role, err = ensureUserAndRole(ctx, tx, h.Repo, event); err != nil {
			return err
		}

		held, err := h.Repo.Memberships().ExistsTx(ctx, tx, event.UserID, event.RoleID)
		if err != nil {
			return err
		}
		if held {
			return ErrRoleAlreadyAssigned
		}

		return h.Repo.Memberships().AddTx(ctx, tx, event.UserID, event.RoleID)
	})
	if err != nil {
		return txError(err, "role assignment transaction failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventRoleAssigned,
		Actor:     event.Actor,
		UserID:    event.UserID.String(),
		Metadata:  map[string]any{"role": role.Name},
	})

	return nil
}

// RemoveRoleHandler takes a user out of a role. Removing a role the user
// does not hold fails with ErrRoleNotAssigned.
type RemoveRoleHandler struct {
	CommandDeps
}

func NewRemoveRoleHandler(deps CommandDeps) *RemoveRoleHandler {
	return &RemoveRoleHandler{CommandDeps: deps}
}

func (h *RemoveRoleHandler) Execute(ctx context.Context, event RoleMembershipMessage) error {
	if err := checkContext(ctx, "role removal"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var role *Role
	err := h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if role, err = ensureUserAndRole(ctx, tx, h.Repo, event); err != nil {
			return err
		}

		removed, err := h.Repo.Memberships().RemoveTx(ctx, tx, event.UserID, event.RoleID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrRoleNotAssigned
		}
		return nil
	})
	if err != nil {
		return txError(err, "role removal transaction failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventRoleRemoved,
		Actor:     event.Actor,
		UserID:    event.UserID.String(),
		Metadata:  map[string]any{"role": role.Name},
	})

	return nil
}

func ensureUserAndRole(ctx context.Context, tx bun.IDB, repo RepositoryManager, event RoleMembershipMessage) (*Role, error) {
	exists, err := repo.Users().ExistsTx(ctx, tx, event.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, withMeta(ErrUserNotFound, map[string]any{"id": event.UserID.String()})
	}
	return repo.Roles().GetByIDTx(ctx, tx, event.RoleID)
}

type CreateRoleMessage struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Actor       ActorRef `json:"-"`
}

func (e CreateRoleMessage) Type() string { return "role.create" }

func (e CreateRoleMessage) Validate() error {
	return validate(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Name, validation.Required, validation.Length(1, 256)),
			validation.Field(&e.Description, validation.Length(0, 512)),
		)
	}, "invalid create role payload")
}

type CreateRoleHandler struct {
	CommandDeps
}

func NewCreateRoleHandler(deps CommandDeps) *CreateRoleHandler {
	return &CreateRoleHandler{CommandDeps: deps}
}

func (h *CreateRoleHandler) Execute(ctx context.Context, event CreateRoleMessage) (*Role, error) {
	if err := checkContext(ctx, "role creation"); err != nil {
		return nil, err
	}

	event.Name = strings.TrimSpace(event.Name)
	if err := event.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	role := &Role{Name: event.Name, Description: event.Description}
	err := h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.Repo.Roles().GetByNameTx(ctx, tx, role.Name); err == nil {
			return ErrDuplicateRole
		} else if !IsNotFound(err) {
			return err
		}

		var err error
		role, err = h.Repo.Roles().CreateTx(ctx, tx, role)
		return err
	})
	if err != nil {
		return nil, txError(err, "role creation transaction failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventRoleCreated,
		Actor:     event.Actor,
		Metadata:  map[string]any{"role": role.Name},
	})

	return role, nil
}
