package auth

import (
	"strings"

	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/ratelimit"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

const localsKey = string(kernel.AuthContextKey)

// TokenMiddleware exposes the gate and the rate limiter as Fiber handlers.
// Each handler returns the *errx.Error it failed with and leaves rendering to
// the application's error handler.
type TokenMiddleware struct {
	gate    *Gate
	limiter *ratelimit.Limiter
	audit   AuditService
}

// MiddlewareOption configures a TokenMiddleware.
type MiddlewareOption func(*TokenMiddleware)

// WithAudit records role denials on audit.
func WithAudit(audit AuditService) MiddlewareOption {
	return func(am *TokenMiddleware) { am.audit = audit }
}

// NewAuthMiddleware creates the middleware set. limiter may be nil when no
// route is rate limited.
func NewAuthMiddleware(gate *Gate, limiter *ratelimit.Limiter, opts ...MiddlewareOption) *TokenMiddleware {
	am := &TokenMiddleware{gate: gate, limiter: limiter}
	for _, opt := range opts {
		opt(am)
	}
	return am
}

func (am *TokenMiddleware) denied(c *fiber.Ctx, ac *kernel.AuthContext, err error) error {
	if am.audit != nil {
		am.audit.LogAccessDenied(c.UserContext(), ac.UserID, c.Method()+" "+c.Path(), c.IP())
	}
	return err
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header, falling back to the access_token cookie.
func BearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Cookies("access_token")
}

// GetAuthContext returns the principal stored by Authenticate.
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	ac, ok := c.Locals(localsKey).(*kernel.AuthContext)
	return ac, ok && ac != nil
}

// Authenticate validates the bearer token and stores the principal in the
// request locals and user context.
func (am *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := BearerToken(c)
		claims, err := am.gate.Authenticate(c.UserContext(), raw)
		if err != nil {
			return err
		}

		ac := NewAuthContext(claims, raw)
		c.Locals(localsKey, ac)
		c.SetUserContext(kernel.WithAuthContext(c.UserContext(), ac))

		return c.Next()
	}
}

// RequireRoles lets the request through when the principal holds one of
// roles. It must run after Authenticate.
func (am *TokenMiddleware) RequireRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok {
			return iam.ErrUnauthenticated()
		}
		if err := CheckRoles(ac.RoleID, ac.RoleName, roles...); err != nil {
			return am.denied(c, ac, err)
		}
		return c.Next()
	}
}

// RequireSelfOrRoles lets the request through when the route parameter
// param names the principal itself, or the principal holds one of roles.
func (am *TokenMiddleware) RequireSelfOrRoles(param string, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, ok := GetAuthContext(c)
		if !ok {
			return iam.ErrUnauthenticated()
		}
		if ac.IsSelf(kernel.NewUserID(c.Params(param))) {
			return c.Next()
		}
		if iam.IsRoot(ac.RoleID, ac.RoleName) || (len(roles) > 0 && ac.HasAnyRole(roles...)) {
			return c.Next()
		}
		return am.denied(c, ac, iam.ErrAccessDenied())
	}
}

// RateLimit counts the request against the caller's per-minute budget. The
// caller is the authenticated user when there is one, otherwise the client IP.
func (am *TokenMiddleware) RateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if am.limiter == nil {
			return c.Next()
		}
		identity := c.IP()
		if ac, ok := GetAuthContext(c); ok {
			identity = ac.UserID.String()
		}
		if err := am.limiter.Allow(c.UserContext(), identity, c.IP()); err != nil {
			return err
		}
		return c.Next()
	}
}
