// Package otp models time-based one-time password (TOTP) second factors.
package otp

import (
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// TOTP parameters shared by enrollment and verification. Authenticator apps
// assume these defaults, so they are not configurable.
const (
	Period = 30 * time.Second
	Digits = 6
	// Skew is the number of periods accepted on either side of the current one.
	Skew = 1
)

// Identity is the subject of a two-factor operation.
type Identity struct {
	UserID kernel.UserID
	// AccountName is shown in the authenticator app, usually the login.
	AccountName string
	// Enabled is the durable "two-factor on" flag held by the user directory.
	Enabled bool
}

// Enrollment is returned when a new secret is staged.
type Enrollment struct {
	ProvisioningURI string `json:"provisioning_uri"`
	// QRCode is a data URL of a PNG encoding ProvisioningURI.
	QRCode string `json:"qr_code,omitempty"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("OTP")

var (
	CodeAlreadyEnrolled   = ErrRegistry.Register("ALREADY_ENROLLED", errx.TypeLogic, "Two-factor authentication is already enabled")
	CodeNotEnrolled       = ErrRegistry.Register("NOT_ENROLLED", errx.TypeLogic, "Two-factor authentication is not enabled")
	CodeInvalidCode       = ErrRegistry.Register("INVALID_CODE", errx.TypeLogic, "Two-factor code is not valid")
	CodeTwoFactorRequired = ErrRegistry.Register("TWO_FACTOR_REQUIRED", errx.TypeUnauthenticated, "Two-factor code is required")
	CodeKeyGeneration     = ErrRegistry.Register("KEY_GENERATION_FAILED", errx.TypeInternal, "Failed to generate two-factor secret")
)

func ErrAlreadyEnrolled() *errx.Error   { return ErrRegistry.New(CodeAlreadyEnrolled) }
func ErrNotEnrolled() *errx.Error       { return ErrRegistry.New(CodeNotEnrolled) }
func ErrInvalidCode() *errx.Error       { return ErrRegistry.New(CodeInvalidCode) }
func ErrTwoFactorRequired() *errx.Error { return ErrRegistry.New(CodeTwoFactorRequired) }

func ErrKeyGeneration(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeKeyGeneration, cause)
}
