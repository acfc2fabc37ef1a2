// Package auth is the authorization gate in front of protected operations.
//
// A request passes through three checks in order: the session token must
// verify and be unexpired, it must not be in the revocation ledger, and its
// role must be one of the roles the operation accepts. The root role passes
// every role check.
package auth

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/revocation"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/token"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Gate combines token validation with the revocation and role checks.
type Gate struct {
	codec  *token.Codec
	ledger *revocation.Ledger
}

// NewGate creates a gate
func NewGate(codec *token.Codec, ledger *revocation.Ledger) *Gate {
	return &Gate{codec: codec, ledger: ledger}
}

// Authenticate validates a session token and checks it was not revoked.
func (g *Gate) Authenticate(ctx context.Context, raw string) (*token.Claims, error) {
	if raw == "" {
		return nil, iam.ErrUnauthenticated()
	}

	claims, err := g.codec.Validate(raw)
	if err != nil {
		return nil, err
	}

	revoked, err := g.ledger.IsRevoked(ctx, raw)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, iam.ErrTokenRevoked()
	}

	return claims, nil
}

// Authorize authenticates raw and then requires one of roles. Roles may be
// given as ids or names. With no roles any authenticated caller passes.
func (g *Gate) Authorize(ctx context.Context, raw string, roles ...string) (*token.Claims, error) {
	claims, err := g.Authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := CheckRoles(claims.RoleID, claims.RoleName, roles...); err != nil {
		return nil, err
	}
	return claims, nil
}

// CheckRoles passes when roleID or roleName is in roles, or the role is root.
func CheckRoles(roleID kernel.RoleID, roleName string, roles ...string) error {
	if len(roles) == 0 || iam.IsRoot(roleID, roleName) {
		return nil
	}
	for _, r := range roles {
		if r == roleID.String() || (roleName != "" && r == roleName) {
			return nil
		}
	}
	return iam.ErrAccessDenied().WithDetail("required_roles", roles)
}

// NewAuthContext builds the request principal from validated claims
func NewAuthContext(claims *token.Claims, raw string) *kernel.AuthContext {
	return &kernel.AuthContext{
		UserID:   claims.UserID,
		RoleID:   claims.RoleID,
		RoleName: claims.RoleName,
		Token:    raw,
	}
}
