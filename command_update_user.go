package auth

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateUserMessage changes profile fields. Nil fields are left as they are.
type UpdateUserMessage struct {
	ID        uuid.UUID `json:"-"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone_number"`
	Actor     ActorRef  `json:"-"`
}

func (e UpdateUserMessage) Type() string { return "user.update" }

func (e UpdateUserMessage) Validate() error {
	return validate(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.FirstName, validation.NilOrNotEmpty, validation.Length(0, 100)),
			validation.Field(&e.LastName, validation.NilOrNotEmpty, validation.Length(0, 100)),
			validation.Field(&e.Email, validation.NilOrNotEmpty, validation.Length(0, 256), is.Email),
		)
	}, "invalid update user payload")
}

// UpdateUserHandler applies a partial profile update
type UpdateUserHandler struct {
	CommandDeps
}

func NewUpdateUserHandler(deps CommandDeps) *UpdateUserHandler {
	return &UpdateUserHandler{CommandDeps: deps}
}

func (h *UpdateUserHandler) Execute(ctx context.Context, event UpdateUserMessage) (*UserRecord, error) {
	if err := checkContext(ctx, "user update"); err != nil {
		return nil, err
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	var phone *string
	if event.Phone != nil {
		normalized, err := NormalizePhone(*event.Phone, h.PhoneRegion)
		if err != nil {
			return nil, err
		}
		phone = &normalized
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var user *User
	var roles []string
	err := h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = h.Repo.Users().GetByIDTx(ctx, tx, event.ID); err != nil {
			return err
		}

		if event.FirstName != nil {
			user.FirstName = *event.FirstName
		}
		if event.LastName != nil {
			user.LastName = *event.LastName
		}
		if phone != nil {
			user.Phone = *phone
		}
		if event.Email != nil && NormalizeEmail(*event.Email) != user.Email {
			unique, err := h.Repo.Users().IsEmailUniqueTx(ctx, tx, *event.Email, user.ID)
			if err != nil {
				return err
			}
			if !unique {
				return ErrDuplicateEmail
			}
			user.Email = NormalizeEmail(*event.Email)
		}

		if user, err = h.Repo.Users().UpdateProfileTx(ctx, tx, user); err != nil {
			return err
		}

		roles, err = h.Repo.Memberships().RoleNamesTx(ctx, tx, user.ID)
		return err
	})

	if err != nil {
		return nil, txError(err, "user update transaction failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventUserUpdated,
		Actor:     event.Actor,
		UserID:    user.ID.String(),
	})

	return NewUserRecord(user, roles), nil
}
