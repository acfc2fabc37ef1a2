package iam

import (
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthenticated     = ErrRegistry.Register("UNAUTHENTICATED", errx.TypeUnauthenticated, "Authentication required")
	CodeTokenMalformed      = ErrRegistry.Register("TOKEN_MALFORMED", errx.TypeUnauthenticated, "Incorrect token")
	CodeTokenExpired        = ErrRegistry.Register("TOKEN_EXPIRED", errx.TypeUnauthenticated, "Token expired")
	CodeTokenRevoked        = ErrRegistry.Register("TOKEN_REVOKED", errx.TypeForbidden, "Token revoked")
	CodeAccessDenied        = ErrRegistry.Register("ACCESS_DENIED", errx.TypeForbidden, "Access denied")
	CodeRevocationUnchecked = ErrRegistry.Register("REVOCATION_UNCHECKED", errx.TypeUnavailable, "Token revocation status could not be verified")
)

func ErrUnauthenticated() *errx.Error {
	return ErrRegistry.New(CodeUnauthenticated)
}

func ErrTokenMalformed() *errx.Error {
	return ErrRegistry.New(CodeTokenMalformed)
}

func ErrTokenExpired() *errx.Error {
	return ErrRegistry.New(CodeTokenExpired)
}

func ErrTokenRevoked() *errx.Error {
	return ErrRegistry.New(CodeTokenRevoked)
}

func ErrAccessDenied() *errx.Error {
	return ErrRegistry.New(CodeAccessDenied)
}

func ErrRevocationUnchecked(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeRevocationUnchecked, cause)
}

// ============================================================================
// Roles
// ============================================================================

// Built-in roles. Their ids are fixed so tokens minted by any node agree.
const (
	RoleRootID          kernel.RoleID = "708db765-8122-48aa-be17-7b00f77541de"
	RoleUserID          kernel.RoleID = "d6354fb4-d27a-4656-8cf2-ecbd9962b129"
	RoleAdministratorID kernel.RoleID = "397427ed-b15a-4e29-8170-c7e941817201"

	RoleRootName          = "root"
	RoleUserName          = "user"
	RoleAdministratorName = "administrator"
)

// RoleName returns the name of a built-in role, or "" for unknown ids.
func RoleName(id kernel.RoleID) string {
	switch id {
	case RoleRootID:
		return RoleRootName
	case RoleUserID:
		return RoleUserName
	case RoleAdministratorID:
		return RoleAdministratorName
	default:
		return ""
	}
}

// IsRoot reports whether the role id or name designates the superuser.
func IsRoot(id kernel.RoleID, name string) bool {
	return id == RoleRootID || name == RoleRootName
}

// ============================================================================
// Identity providers
// ============================================================================

// OAuthProvider names a supported identity provider
type OAuthProvider string

const (
	OAuthProviderYandex OAuthProvider = "yandex"
	OAuthProviderMail   OAuthProvider = "mail"
	OAuthProviderVK     OAuthProvider = "vk"
)

// GetProviderName returns the human-readable provider name
func (p OAuthProvider) GetProviderName() string {
	switch p {
	case OAuthProviderYandex:
		return "Yandex"
	case OAuthProviderMail:
		return "Mail.ru"
	case OAuthProviderVK:
		return "VK"
	default:
		return "Unknown"
	}
}
