package auth

import (
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

func (r LoginRequest) Validate() error {
	return validate(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Username, validation.Required),
			validation.Field(&r.Password, validation.Required),
		)
	}, "invalid login request payload")
}

type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ProfileUpdateRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone_number"`
}

// Route is one entry of the HTTP route table. Roles lists the roles
// admitted; a non public route with no roles admits any valid token.
type Route struct {
	Name    string
	Method  string
	Path    string
	Public  bool
	Roles   []string
	Handler fiber.Handler
}

// Controller serves the login, user, role and profile endpoints
type Controller struct {
	auther         Authenticator
	directory      *Directory
	createUser     *CreateUserHandler
	updateUser     *UpdateUserHandler
	deleteUser     *DeleteUserHandler
	resetPassword  *ResetPasswordHandler
	changePassword *ChangePasswordHandler
	createRole     *CreateRoleHandler
	assignRole     *AssignRoleHandler
	removeRole     *RemoveRoleHandler
	contextKey     string
	logger         Logger
}

func NewController(auther Authenticator, deps CommandDeps) *Controller {
	return &Controller{
		auther:         auther,
		directory:      NewDirectory(deps.Repo),
		createUser:     NewCreateUserHandler(deps),
		updateUser:     NewUpdateUserHandler(deps),
		deleteUser:     NewDeleteUserHandler(deps),
		resetPassword:  NewResetPasswordHandler(deps),
		changePassword: NewChangePasswordHandler(deps),
		createRole:     NewCreateRoleHandler(deps),
		assignRole:     NewAssignRoleHandler(deps),
		removeRole:     NewRemoveRoleHandler(deps),
		contextKey:     "user",
		logger:         deps.logger(),
	}
}

func (h *Controller) WithContextKey(key string) *Controller {
	if key != "" {
		h.contextKey = key
	}
	return h
}

// Routes returns the route table with the roles each route requires
func (h *Controller) Routes() []Route {
	admin := []string{RoleAdmin}
	return []Route{
		{Name: "auth.login", Method: fiber.MethodPost, Path: "/api/auth/login", Public: true, Handler: h.Login},

		{Name: "user.list", Method: fiber.MethodGet, Path: "/api/user", Roles: admin, Handler: h.ListUsers},
		{Name: "user.by-email", Method: fiber.MethodGet, Path: "/api/user/by-email/:email", Roles: admin, Handler: h.GetUserByEmail},
		{Name: "user.by-username", Method: fiber.MethodGet, Path: "/api/user/by-username/:username", Roles: admin, Handler: h.GetUserByUsername},
		{Name: "user.by-role", Method: fiber.MethodGet, Path: "/api/user/by-role/:role", Roles: admin, Handler: h.ListUsersInRole},
		{Name: "user.get", Method: fiber.MethodGet, Path: "/api/user/:id", Roles: admin, Handler: h.GetUser},
		{Name: "user.create", Method: fiber.MethodPost, Path: "/api/user", Roles: admin, Handler: h.CreateUser},
		{Name: "user.update", Method: fiber.MethodPut, Path: "/api/user/:id", Roles: admin, Handler: h.UpdateUser},
		{Name: "user.reset-password", Method: fiber.MethodPost, Path: "/api/user/:id/reset-password", Roles: admin, Handler: h.ResetPassword},
		{Name: "user.delete", Method: fiber.MethodDelete, Path: "/api/user/:id", Roles: admin, Handler: h.DeleteUser},

		{Name: "role.list", Method: fiber.MethodGet, Path: "/api/role", Roles: admin, Handler: h.ListRoles},
		{Name: "role.get", Method: fiber.MethodGet, Path: "/api/role/:id", Roles: admin, Handler: h.GetRole},
		{Name: "role.create", Method: fiber.MethodPost, Path: "/api/role", Roles: admin, Handler: h.CreateRole},
		{Name: "role.assign", Method: fiber.MethodPost, Path: "/api/role/assign", Roles: admin, Handler: h.AssignRole},
		{Name: "role.remove", Method: fiber.MethodPost, Path: "/api/role/remove", Roles: admin, Handler: h.RemoveRole},

		{Name: "profile.get", Method: fiber.MethodGet, Path: "/api/profile", Handler: h.Profile},
		{Name: "profile.update", Method: fiber.MethodPut, Path: "/api/profile", Handler: h.UpdateProfile},
		{Name: "profile.change-password", Method: fiber.MethodPost, Path: "/api/profile/change-password", Handler: h.ChangePassword},
	}
}

// RegisterRoutes mounts every route, placing the auth gate in front of
// the non public ones.
func RegisterRoutes(app fiber.Router, gate *RouteAuthenticator, routes []Route) {
	for _, r := range routes {
		handlers := make([]fiber.Handler, 0, 2)
		if !r.Public {
			handlers = append(handlers, gate.ProtectedRoute(r.Roles...))
		}
		handlers = append(handlers, r.Handler)
		app.Add(r.Method, r.Path, handlers...).Name(r.Name)
	}
}

func (h *Controller) Login(c *fiber.Ctx) error {
	req := LoginRequest{}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	if err := req.Validate(); err != nil {
		return err
	}

	res, err := h.auther.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(LoginResponse{
		Success:   true,
		Token:     res.Token,
		Username:  res.Username,
		Email:     res.Email,
		Role:      res.Role(),
		Roles:     res.Roles,
		ExpiresAt: res.ExpiresAt,
	})
}

func (h *Controller) ListUsers(c *fiber.Ctx) error {
	records, err := h.directory.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(records)
}

func (h *Controller) GetUser(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", ErrUserNotFound)
	if err != nil {
		return err
	}
	record, err := h.directory.GetUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *Controller) GetUserByEmail(c *fiber.Ctx) error {
	record, err := h.directory.GetUserByEmail(c.UserContext(), pathParam(c, "email"))
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *Controller) GetUserByUsername(c *fiber.Ctx) error {
	record, err := h.directory.GetUserByUsername(c.UserContext(), pathParam(c, "username"))
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *Controller) ListUsersInRole(c *fiber.Ctx) error {
	records, err := h.directory.UsersInRole(c.UserContext(), pathParam(c, "role"))
	if err != nil {
		return err
	}
	return c.JSON(records)
}

func (h *Controller) CreateUser(c *fiber.Ctx) error {
	msg := CreateUserMessage{}
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	msg.Actor = h.actor(c)

	record, err := h.createUser.Execute(c.UserContext(), msg)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *Controller) UpdateUser(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", ErrUserNotFound)
	if err != nil {
		return err
	}

	msg := UpdateUserMessage{}
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	msg.ID = id
	msg.Actor = h.actor(c)

	record, err := h.updateUser.Execute(c.UserContext(), msg)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *Controller) ResetPassword(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", ErrUserNotFound)
	if err != nil {
		return err
	}

	req := ResetPasswordRequest{}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	err = h.resetPassword.Execute(c.UserContext(), ResetPasswordMessage{
		UserID:      id,
		NewPassword: req.NewPassword,
		Actor:       h.actor(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "password has been reset"})
}

func (h *Controller) DeleteUser(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", ErrUserNotFound)
	if err != nil {
		return err
	}

	if err := h.deleteUser.Execute(c.UserContext(), DeleteUserMessage{ID: id, Actor: h.actor(c)}); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Controller) ListRoles(c *fiber.Ctx) error {
	roles, err := h.directory.ListRoles(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(roles)
}

func (h *Controller) GetRole(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id", ErrRoleNotFound)
	if err != nil {
		return err
	}
	role, err := h.directory.GetRole(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(role)
}

func (h *Controller) CreateRole(c *fiber.Ctx) error {
	msg := CreateRoleMessage{}
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	msg.Actor = h.actor(c)

	role, err := h.createRole.Execute(c.UserContext(), msg)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(role)
}

func (h *Controller) AssignRole(c *fiber.Ctx) error {
	msg := RoleMembershipMessage{}
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	msg.Actor = h.actor(c)

	if err := h.assignRole.Execute(c.UserContext(), msg); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "role assigned"})
}

func (h *Controller) RemoveRole(c *fiber.Ctx) error {
	msg := RoleMembershipMessage{}
	if err := c.BodyParser(&msg); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	msg.Actor = h.actor(c)

	if err := h.removeRole.Execute(c.UserContext(), msg); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "role removed"})
}

func (h *Controller) Profile(c *fiber.Ctx) error {
	id, err := h.currentUserID(c)
	if err != nil {
		return err
	}
	record, err := h.directory.GetUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *Controller) UpdateProfile(c *fiber.Ctx) error {
	id, err := h.currentUserID(c)
	if err != nil {
		return err
	}

	req := ProfileUpdateRequest{}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	record, err := h.updateUser.Execute(c.UserContext(), UpdateUserMessage{
		ID:        id,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Actor:     h.actor(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *Controller) ChangePassword(c *fiber.Ctx) error {
	id, err := h.currentUserID(c)
	if err != nil {
		return err
	}

	req := ChangePasswordRequest{}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	err = h.changePassword.Execute(c.UserContext(), ChangePasswordMessage{
		UserID:          id,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "password changed"})
}

func (h *Controller) actor(c *fiber.Ctx) ActorRef {
	claims, _ := GetFiberClaims(c, h.contextKey)
	return ActorFromClaims(claims)
}

func (h *Controller) currentUserID(c *fiber.Ctx) (uuid.UUID, error) {
	claims, ok := GetFiberClaims(c, h.contextKey)
	if !ok {
		return uuid.Nil, ErrTokenMissing
	}
	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return uuid.Nil, ErrTokenMalformed
	}
	return id, nil
}

// pathParam returns a route parameter with percent escapes decoded,
// so "a%40b.com" and "a@b.com" name the same user.
func pathParam(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// paramUUID parses a route parameter. Ids that are not uuids cannot
// exist, so they are reported with the not found sentinel.
func paramUUID(c *fiber.Ctx, name string, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, notFound
	}
	return id, nil
}
