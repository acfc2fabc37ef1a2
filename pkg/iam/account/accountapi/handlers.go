// Package accountapi exposes the account flows over HTTP.
package accountapi

import (
	"strings"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/account/accountsrv"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/auth"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/captcha"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

// AccountHandlers serves the /v1 account routes.
type AccountHandlers struct {
	service   *accountsrv.Service
	captchas  *captcha.Service
	providers func() []string
}

// NewAccountHandlers creates the handlers. providers lists the enabled
// identity providers for discovery and may be nil.
func NewAccountHandlers(service *accountsrv.Service, captchas *captcha.Service, providers func() []string) *AccountHandlers {
	return &AccountHandlers{service: service, captchas: captchas, providers: providers}
}

// RegisterRoutes mounts every account route on app.
func (h *AccountHandlers) RegisterRoutes(app fiber.Router, mw *auth.TokenMiddleware) {
	v1 := app.Group("/v1")

	authGroup := v1.Group("/auth")
	authGroup.Post("/register", h.Register)
	authGroup.Post("/login", h.Login)
	authGroup.Post("/logout", mw.Authenticate(), h.Logout)
	authGroup.Post("/refresh-token", h.Refresh)
	authGroup.Post("/validate-token", mw.Authenticate(), mw.RateLimit(), h.ValidateToken)
	authGroup.Post("/change-password", mw.Authenticate(), h.ChangePassword)

	v1.Get("/captcha", mw.Authenticate(), h.GetCaptcha)
	v1.Post("/captcha", mw.Authenticate(), h.SolveCaptcha)

	oauth := v1.Group("/oauth")
	oauth.Get("/providers", h.ListProviders)
	oauth.Get("/login", h.OAuthLogin)
	oauth.Get("/callback", h.OAuthCallback)

	admin := mw.RequireRoles(iam.RoleAdministratorID.String(), iam.RoleAdministratorName)
	selfOrAdmin := mw.RequireSelfOrRoles("id", iam.RoleAdministratorID.String(), iam.RoleAdministratorName)

	users := v1.Group("/users", mw.Authenticate())
	users.Get("/", admin, h.ListUsers)
	users.Post("/", admin, h.CreateUser)
	users.Get("/:id", selfOrAdmin, h.GetUser)
	users.Put("/:id", admin, h.UpdateUser)
	users.Get("/:id/login-history", selfOrAdmin, h.LoginHistory)
	users.Post("/:id/two-auth/sync", selfOrAdmin, h.BeginTwoFactor)
	users.Post("/:id/two-auth/check", selfOrAdmin, h.ConfirmTwoFactor)
	users.Delete("/:id/two-auth", selfOrAdmin, h.DisableTwoFactor)
	users.Put("/:id/roles", admin, h.SetRole)
	users.Delete("/:id", admin, h.Block)

	roles := v1.Group("/roles", mw.Authenticate(), admin)
	roles.Get("/", h.ListRoles)
	roles.Post("/", h.CreateRole)
	roles.Get("/:id", h.GetRole)
	roles.Put("/:id", h.UpdateRole)
	roles.Delete("/:id", h.DeleteRole)
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return errx.Validation("invalid request body").WithDetail("error", err.Error())
	}
	return nil
}

// ============================================================================
// Auth
// ============================================================================

func (h *AccountHandlers) Register(c *fiber.Ctx) error {
	var req account.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.IP = c.IP()

	u, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (h *AccountHandlers) Login(c *fiber.Ctx) error {
	var req account.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.IP = c.IP()
	req.UserAgent = c.Get(fiber.HeaderUserAgent)

	result, err := h.service.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

type refreshTokenBody struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the bearer token and the optional refresh token in the body.
func (h *AccountHandlers) Logout(c *fiber.Ctx) error {
	var req refreshTokenBody
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}

	if err := h.service.Logout(c.UserContext(), auth.BearerToken(c), req.RefreshToken, c.IP()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AccountHandlers) Refresh(c *fiber.Ctx) error {
	var req refreshTokenBody
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.service.Refresh(c.UserContext(), req.RefreshToken, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// ValidateToken reports the principal behind {"token": ...}, a token another
// service received from its own caller. The calling service authenticates
// with its bearer token; with no body the bearer token itself is validated.
func (h *AccountHandlers) ValidateToken(c *fiber.Ctx) error {
	var req account.TokenRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	raw := req.Token
	if raw == "" {
		raw = auth.BearerToken(c)
	}

	claims, err := h.service.ValidateToken(c.UserContext(), raw)
	if err != nil {
		return err
	}
	return c.JSON(claims)
}

// ChangePassword sets a new password for the authenticated caller.
func (h *AccountHandlers) ChangePassword(c *fiber.Ctx) error {
	ac, ok := auth.GetAuthContext(c)
	if !ok {
		return iam.ErrUnauthenticated()
	}
	var req account.ChangePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.IP = c.IP()

	if err := h.service.ChangePassword(c.UserContext(), ac.UserID, req); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ============================================================================
// Captcha
// ============================================================================

// GetCaptcha issues a fresh challenge for the caller's IP.
func (h *AccountHandlers) GetCaptcha(c *fiber.Ctx) error {
	problem, err := h.captchas.GenerateProblem(c.UserContext(), c.IP())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"captcha": problem})
}

type captchaAnswer struct {
	Answer string `json:"answer"`
}

func (h *AccountHandlers) SolveCaptcha(c *fiber.Ctx) error {
	var req captchaAnswer
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.captchas.Solve(c.UserContext(), c.IP(), req.Answer); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"unblocked": true})
}

// ============================================================================
// OAuth
// ============================================================================

func (h *AccountHandlers) ListProviders(c *fiber.Ctx) error {
	providers := []string{}
	if h.providers != nil {
		providers = append(providers, h.providers()...)
	}
	return c.JSON(fiber.Map{"providers": providers})
}

// OAuthLogin redirects the browser to the provider named by ?name=.
func (h *AccountHandlers) OAuthLogin(c *fiber.Ctx) error {
	name := strings.ToLower(c.Query("name"))
	if name == "" {
		return errx.Validation("provider name is required").WithDetail("field", "name")
	}

	redirect, err := h.service.BeginFederatedLogin(c.UserContext(), name)
	if err != nil {
		return err
	}
	return c.Redirect(redirect, fiber.StatusFound)
}

func (h *AccountHandlers) OAuthCallback(c *fiber.Ctx) error {
	req := account.FederatedLoginRequest{
		Provider:  strings.ToLower(c.Query("name")),
		Code:      c.Query("code"),
		State:     c.Query("state"),
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
	if req.Provider == "" || req.Code == "" {
		return errx.Validation("name and code are required")
	}

	result, err := h.service.FederatedLogin(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// ============================================================================
// Users
// ============================================================================

func userIDParam(c *fiber.Ctx) kernel.UserID {
	return kernel.NewUserID(c.Params("id"))
}

func paginationQuery(c *fiber.Ctx) (kernel.PaginationOptions, error) {
	var opts kernel.PaginationOptions
	if err := c.QueryParser(&opts); err != nil {
		return opts, errx.Validation("invalid pagination parameters").WithDetail("error", err.Error())
	}
	return opts, nil
}

func (h *AccountHandlers) ListUsers(c *fiber.Ctx) error {
	opts, err := paginationQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListUsers(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *AccountHandlers) CreateUser(c *fiber.Ctx) error {
	var req account.CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	u, err := h.service.CreateUser(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (h *AccountHandlers) UpdateUser(c *fiber.Ctx) error {
	var req account.UpdateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	u, err := h.service.UpdateUser(c.UserContext(), userIDParam(c), req)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *AccountHandlers) GetUser(c *fiber.Ctx) error {
	u, err := h.service.GetUser(c.UserContext(), userIDParam(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (h *AccountHandlers) LoginHistory(c *fiber.Ctx) error {
	opts, err := paginationQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.LoginHistory(c.UserContext(), userIDParam(c), opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *AccountHandlers) BeginTwoFactor(c *fiber.Ctx) error {
	enrollment, err := h.service.BeginTwoFactor(c.UserContext(), userIDParam(c))
	if err != nil {
		return err
	}
	return c.JSON(enrollment)
}

func parseCode(c *fiber.Ctx) (string, error) {
	var req account.TwoFactorCodeRequest
	if err := parseBody(c, &req); err != nil {
		return "", err
	}
	if req.Code == "" {
		return "", errx.Validation("code is required").WithDetail("field", "code")
	}
	return req.Code, nil
}

func (h *AccountHandlers) ConfirmTwoFactor(c *fiber.Ctx) error {
	code, err := parseCode(c)
	if err != nil {
		return err
	}

	u, err := h.service.ConfirmTwoFactor(c.UserContext(), userIDParam(c), code, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(u)
}

// DisableTwoFactor turns two-factor off; the body carries a current code.
func (h *AccountHandlers) DisableTwoFactor(c *fiber.Ctx) error {
	code, err := parseCode(c)
	if err != nil {
		return err
	}

	u, err := h.service.DisableTwoFactor(c.UserContext(), userIDParam(c), code, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(u)
}

type setRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (h *AccountHandlers) SetRole(c *fiber.Ctx) error {
	var req setRoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.RoleID == "" {
		return errx.Validation("role_id is required").WithDetail("field", "role_id")
	}

	u, err := h.service.SetRole(c.UserContext(), userIDParam(c), kernel.NewRoleID(req.RoleID))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

// Block deactivates the user. The account row is kept.
func (h *AccountHandlers) Block(c *fiber.Ctx) error {
	u, err := h.service.Block(c.UserContext(), userIDParam(c))
	if err != nil {
		return err
	}
	return c.JSON(u)
}

// ============================================================================
// Roles
// ============================================================================

func roleIDParam(c *fiber.Ctx) kernel.RoleID {
	return kernel.NewRoleID(c.Params("id"))
}

func (h *AccountHandlers) ListRoles(c *fiber.Ctx) error {
	opts, err := paginationQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListRoles(c.UserContext(), opts)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *AccountHandlers) GetRole(c *fiber.Ctx) error {
	role, err := h.service.GetRole(c.UserContext(), roleIDParam(c))
	if err != nil {
		return err
	}
	return c.JSON(role)
}

func (h *AccountHandlers) CreateRole(c *fiber.Ctx) error {
	var req account.RoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	role, err := h.service.CreateRole(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(role)
}

func (h *AccountHandlers) UpdateRole(c *fiber.Ctx) error {
	var req account.RoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	role, err := h.service.UpdateRole(c.UserContext(), roleIDParam(c), req)
	if err != nil {
		return err
	}
	return c.JSON(role)
}

// DeleteRole retires the role and returns it with deleted_at set.
func (h *AccountHandlers) DeleteRole(c *fiber.Ctx) error {
	role, err := h.service.DeleteRole(c.UserContext(), roleIDParam(c))
	if err != nil {
		return err
	}
	return c.JSON(role)
}
