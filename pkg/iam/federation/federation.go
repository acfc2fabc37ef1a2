// Package federation signs users in through third-party OAuth2 identity
// providers and normalizes what they return into an Identity.
package federation

import (
	"github.com/Abraxas-365/gatekeeper/pkg/errx"
)

// Identity is the normalized result of a successful provider sign-in.
type Identity struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
	Login          string `json:"login"`
	Email          string `json:"email,omitempty"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("FEDERATION")

var (
	CodeProviderNotFound      = ErrRegistry.Register("PROVIDER_NOT_FOUND", errx.TypeNotFound, "Identity provider not found")
	CodeInvalidState          = ErrRegistry.Register("INVALID_STATE", errx.TypeValidation, "Invalid or expired OAuth state")
	CodeProviderError         = ErrRegistry.Register("PROVIDER_ERROR", errx.TypeFederation, "Identity provider rejected the request")
	CodeUserInfoFailed        = ErrRegistry.Register("USER_INFO_FAILED", errx.TypeFederation, "Failed to fetch user info from identity provider")
	CodeMissingProviderUserID = ErrRegistry.Register("MISSING_PROVIDER_USER_ID", errx.TypeFederation, "Identity provider returned no user id")
)

func ErrProviderNotFound(name string) *errx.Error {
	return ErrRegistry.New(CodeProviderNotFound).WithDetail("provider", name)
}

func ErrInvalidState() *errx.Error {
	return ErrRegistry.New(CodeInvalidState)
}

// ErrProviderError carries the provider's own message.
func ErrProviderError(provider, message string, cause error) *errx.Error {
	e := ErrRegistry.NewWithCause(CodeProviderError, cause).WithDetail("provider", provider)
	if message != "" {
		e.Message = message
	}
	return e
}

func ErrUserInfoFailed(provider string, cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeUserInfoFailed, cause).WithDetail("provider", provider)
}

func ErrMissingProviderUserID(provider string) *errx.Error {
	return ErrRegistry.New(CodeMissingProviderUserID).WithDetail("provider", provider)
}
