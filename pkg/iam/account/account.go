// Package account defines the requests and results of the account flows:
// registration, password and federated sign-in, token refresh and logout.
package account

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

const (
	MinLoginLength    = 3
	MaxLoginLength    = 64
	MinPasswordLength = 8
)

// JobRecordLogin is the background job that appends to the login history.
// Its payload is a user.LoginRecord.
const JobRecordLogin = "account.record_login"

// JobSecurityAlert emails a user about a change to their account. Its
// payload is a SecurityAlert.
const JobSecurityAlert = "account.security_alert"

// Security alert kinds.
const (
	AlertTwoFactorEnabled  = "two_factor_enabled"
	AlertTwoFactorDisabled = "two_factor_disabled"
	AlertPasswordChanged   = "password_changed"
	AlertAccountBlocked    = "account_blocked"
)

// SecurityAlert tells a user that something changed on their account.
type SecurityAlert struct {
	UserID kernel.UserID `json:"user_id"`
	Login  string        `json:"login"`
	Email  string        `json:"email"`
	Kind   string        `json:"kind"`
	IP     string        `json:"ip,omitempty"`
	At     time.Time     `json:"at"`
}

// RegisterRequest creates a password account
type RegisterRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// Captcha answers the challenge issued to the caller's IP, if any.
	Captcha string `json:"captcha,omitempty"`
	IP      string `json:"-"`
}

// Validate checks the request shape
func (r RegisterRequest) Validate() error {
	if err := validateProfile(r.Login, r.Email); err != nil {
		return err
	}
	return validatePassword("password", r.Password)
}

func validateProfile(login, email string) error {
	login = strings.TrimSpace(login)
	if n := utf8.RuneCountInString(login); n < MinLoginLength || n > MaxLoginLength {
		return errx.Validation("login must be between 3 and 64 characters").WithDetail("field", "login")
	}
	if email != "" && !strings.Contains(email, "@") {
		return errx.Validation("email is not valid").WithDetail("field", "email")
	}
	return nil
}

func validatePassword(field, password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return errx.Validation(field+" must be at least 8 characters").WithDetail("field", field)
	}
	return nil
}

// CreateUserRequest is an administrator creating an account with any
// non-root role
type CreateUserRequest struct {
	Login    string        `json:"login"`
	Email    string        `json:"email"`
	Password string        `json:"password"`
	RoleID   kernel.RoleID `json:"role_id"`
}

func (r CreateUserRequest) Validate() error {
	if err := validateProfile(r.Login, r.Email); err != nil {
		return err
	}
	if err := validatePassword("password", r.Password); err != nil {
		return err
	}
	if r.RoleID.IsEmpty() {
		return errx.Validation("role_id is required").WithDetail("field", "role_id")
	}
	return nil
}

// UpdateUserRequest replaces a user's profile. An empty Password keeps the
// current one and an empty RoleID keeps the current role.
type UpdateUserRequest struct {
	Login    string        `json:"login"`
	Email    string        `json:"email"`
	Password string        `json:"password,omitempty"`
	RoleID   kernel.RoleID `json:"role_id,omitempty"`
}

func (r UpdateUserRequest) Validate() error {
	if err := validateProfile(r.Login, r.Email); err != nil {
		return err
	}
	if r.Password != "" {
		return validatePassword("password", r.Password)
	}
	return nil
}

// ChangePasswordRequest sets a new password for the caller. CurrentPassword
// is required when the account already has one.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	Password        string `json:"password"`
	IP              string `json:"-"`
}

func (r ChangePasswordRequest) Validate() error {
	return validatePassword("password", r.Password)
}

// RoleRequest creates or renames a role
type RoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// LoginRequest signs in with a login or email and a password
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	// Code is the current TOTP value, required once two-factor is enabled.
	Code      string `json:"code,omitempty"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.Login) == "" || r.Password == "" {
		return errx.Validation("login and password are required")
	}
	return nil
}

// FederatedLoginRequest completes a provider sign-in from its callback
type FederatedLoginRequest struct {
	Provider  string
	Code      string
	State     string
	IP        string
	UserAgent string
}

// LoginResult is returned by every flow that issues tokens
type LoginResult struct {
	Token        string     `json:"token"`
	RefreshToken string     `json:"refresh_token"`
	User         *user.User `json:"user"`
}

// TokenRequest carries a single token in the body. Services use it to
// validate a token their own caller presented.
type TokenRequest struct {
	Token string `json:"token"`
}

// TwoFactorCodeRequest carries the current TOTP value
type TwoFactorCodeRequest struct {
	Code string `json:"code"`
}
