package kernel

import "context"

// ============================================================================
// Context Types
// ============================================================================

// AuthContext is the authenticated principal attached to each request once
// its session token has passed validation and the revocation check.
type AuthContext struct {
	UserID   UserID `json:"user_id"`
	RoleID   RoleID `json:"role_id"`
	RoleName string `json:"role_name"`
	Token    string `json:"-"`
}

// IsValid reports whether the context identifies a principal
func (ac *AuthContext) IsValid() bool {
	return ac != nil && !ac.UserID.IsEmpty() && !ac.RoleID.IsEmpty()
}

// HasAnyRole reports whether the principal's role id or role name is in roles.
func (ac *AuthContext) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if r == ac.RoleID.String() || r == ac.RoleName {
			return true
		}
	}
	return false
}

// IsSelf reports whether the principal is the given user
func (ac *AuthContext) IsSelf(id UserID) bool {
	return ac.UserID == id
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey stores *AuthContext in context.Context and fiber locals
	AuthContextKey ContextKey = "auth_context"
)

// WithAuthContext returns a copy of ctx carrying ac
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, ac)
}

// AuthContextFrom extracts the principal stored by WithAuthContext
func AuthContextFrom(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return ac, ok && ac != nil
}
