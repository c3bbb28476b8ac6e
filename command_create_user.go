package auth

import (
	"context"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

var reUsername = regexp.MustCompile(`^[a-zA-Z0-9\-._@+]+$`)

type CreateUserMessage struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Phone     string   `json:"phone_number"`
	Roles     []string `json:"roles"`
	Actor     ActorRef `json:"-"`
}

func (e CreateUserMessage) Type() string { return "user.create" }

// Validate checks the shape of the payload. The password policy is
// checked by the handler.
func (e CreateUserMessage) Validate() error {
	return validate(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Username, validation.Required, validation.Length(3, 256), validation.Match(reUsername)),
			validation.Field(&e.Email, validation.Required, validation.Length(0, 256), is.Email),
			validation.Field(&e.Password, validation.Required),
			validation.Field(&e.FirstName, validation.Length(0, 100)),
			validation.Field(&e.LastName, validation.Length(0, 100)),
		)
	}, "invalid create user payload")
}

// CreateUserHandler creates a user with confirmed email and the
// requested roles in one transaction.
type CreateUserHandler struct {
	CommandDeps
}

func NewCreateUserHandler(deps CommandDeps) *CreateUserHandler {
	return &CreateUserHandler{CommandDeps: deps}
}

func (h *CreateUserHandler) Execute(ctx context.Context, event CreateUserMessage) (*UserRecord, error) {
	if err := checkContext(ctx, "user creation"); err != nil {
		return nil, err
	}
	return h.execute(ctx, event)
}

func (h *CreateUserHandler) execute(ctx context.Context, event CreateUserMessage) (*UserRecord, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if err := h.Policy.Check("password", event.Password); err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(event.Phone, h.PhoneRegion)
	if err != nil {
		return nil, err
	}

	roleNames := NewRoleSet(event.Roles...)

	// bcrypt is slow, keep it outside the transaction
	hash, err := h.Hasher.HashPassword(event.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:       event.Username,
		Email:          event.Email,
		FirstName:      event.FirstName,
		LastName:       event.LastName,
		Phone:          phone,
		PasswordHash:   hash,
		EmailConfirmed: true,
	}

	if h.EmailDerivedIDs {
		if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
			user.ID = id
		}
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err = h.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		roles := make([]*Role, 0, len(roleNames))
		for _, name := range roleNames {
			role, err := h.Repo.Roles().GetByNameTx(ctx, tx, name)
			if err != nil {
				if IsNotFound(err) {
					return withMeta(ErrInvalidRole, map[string]any{"role": name})
				}
				return err
			}
			roles = append(roles, role)
		}

		unique, err := h.Repo.Users().IsEmailUniqueTx(ctx, tx, user.Email, user.ID)
		if err != nil {
			return err
		}
		if !unique {
			return ErrDuplicateEmail
		}

		unique, err = h.Repo.Users().IsUsernameUniqueTx(ctx, tx, user.Username, user.ID)
		if err != nil {
			return err
		}
		if !unique {
			return ErrDuplicateUsername
		}

		if user, err = h.Repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		for _, role := range roles {
			if err := h.Repo.Memberships().AddTx(ctx, tx, user.ID, role.ID); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, txError(err, "user creation transaction failed")
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventUserCreated,
		Actor:     event.Actor,
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"roles": []string(roleNames)},
	})

	return NewUserRecord(user, roleNames.Sorted()), nil
}
