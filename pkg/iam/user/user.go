// Package user holds the platform's user entities and the ports the
// authentication core uses to reach them. Persistence lives in userinfra.
package user

import (
	"strings"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/google/uuid"
)

// ============================================================================
// Entities
// ============================================================================

// User is a platform identity
type User struct {
	ID               kernel.UserID `db:"id" json:"id"`
	RoleID           kernel.RoleID `db:"role_id" json:"role_id"`
	RoleName         string        `db:"role_name" json:"role_name"`
	Login            string        `db:"login" json:"login"`
	Email            string        `db:"email" json:"email,omitempty"`
	PasswordHash     string        `db:"password_hash" json:"-"`
	TwoFactorEnabled bool          `db:"two_factor_enabled" json:"two_factor_enabled"`
	DeletedAt        *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// SocialAccount links a user to an identity at an external provider
type SocialAccount struct {
	ID             string        `db:"id" json:"id"`
	UserID         kernel.UserID `db:"user_id" json:"user_id"`
	Provider       string        `db:"provider" json:"provider"`
	ProviderUserID string        `db:"provider_user_id" json:"provider_user_id"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// LoginRecord is one entry of a user's sign-in history
type LoginRecord struct {
	ID        string        `db:"id" json:"id"`
	UserID    kernel.UserID `db:"user_id" json:"user_id"`
	IP        string        `db:"ip" json:"ip"`
	UserAgent string        `db:"user_agent" json:"user_agent"`
	Method    string        `db:"method" json:"method"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Login methods recorded in the history.
const (
	MethodPassword = "password"
	MethodOAuth    = "oauth"
	// MethodAdmin marks accounts an administrator created.
	MethodAdmin = "admin"
)

// ============================================================================
// Constructors & domain methods
// ============================================================================

// NewUser creates an active user with the given built-in role.
func NewUser(login, email, passwordHash string, roleID kernel.RoleID, now time.Time) *User {
	return &User{
		ID:           kernel.GenerateUserID(),
		RoleID:       roleID,
		RoleName:     iam.RoleName(roleID),
		Login:        strings.TrimSpace(login),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewSocialAccount links a user to a provider identity.
func NewSocialAccount(userID kernel.UserID, provider, providerUserID string, now time.Time) *SocialAccount {
	return &SocialAccount{
		ID:             uuid.NewString(),
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		CreatedAt:      now,
	}
}

// NewLoginRecord creates a history entry
func NewLoginRecord(userID kernel.UserID, method, ip, userAgent string, now time.Time) LoginRecord {
	return LoginRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Method:    method,
		CreatedAt: now,
	}
}

// IsBlocked reports whether the account was deactivated
func (u *User) IsBlocked() bool {
	return u.DeletedAt != nil
}

// IsRoot reports whether u holds the superuser role
func (u *User) IsRoot() bool {
	return iam.IsRoot(u.RoleID, u.RoleName)
}

// HasPassword reports whether the user can sign in with a password.
// Accounts provisioned through a provider have none.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Block deactivates the account. The root user cannot be blocked.
func (u *User) Block(now time.Time) error {
	if u.IsRoot() {
		return ErrRootProtected()
	}
	if u.DeletedAt == nil {
		t := now
		u.DeletedAt = &t
	}
	u.UpdatedAt = now
	return nil
}

// SetRole assigns role. The root role is never granted or taken away.
func (u *User) SetRole(role *Role, now time.Time) error {
	if role.IsRoot() || u.IsRoot() {
		return ErrRootProtected()
	}
	if role.IsDeleted() {
		return ErrRoleNotFound().WithDetail("role_id", role.ID)
	}
	u.RoleID = role.ID
	u.RoleName = role.Name
	u.UpdatedAt = now
	return nil
}

// UpdateProfile replaces the login and email.
func (u *User) UpdateProfile(login, email string, now time.Time) {
	u.Login = strings.TrimSpace(login)
	u.Email = strings.ToLower(strings.TrimSpace(email))
	u.UpdatedAt = now
}

// SetPasswordHash replaces the stored digest
func (u *User) SetPasswordHash(hash string, now time.Time) {
	u.PasswordHash = hash
	u.UpdatedAt = now
}

// EnableTwoFactor sets the durable two-factor flag
func (u *User) EnableTwoFactor(now time.Time) {
	u.TwoFactorEnabled = true
	u.UpdatedAt = now
}

func (u *User) DisableTwoFactor(now time.Time) {
	u.TwoFactorEnabled = false
	u.UpdatedAt = now
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeNotFound               = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, "User not found")
	CodeAlreadyExists          = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeAlreadyExists, "User with this login or email already exists")
	CodeInvalidCredentials     = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeUnauthenticated, "Incorrect login or password")
	CodeAccountBlocked         = ErrRegistry.Register("ACCOUNT_BLOCKED", errx.TypeForbidden, "Account is blocked")
	CodeRoleNotFound           = ErrRegistry.Register("ROLE_NOT_FOUND", errx.TypeNotFound, "Role not found")
	CodeRootProtected          = ErrRegistry.Register("ROOT_PROTECTED", errx.TypeForbidden, "The root role cannot be granted, changed or blocked")
	CodeFederatedLoginConflict = ErrRegistry.Register("FEDERATED_LOGIN_CONFLICT", errx.TypeAlreadyExists, "An account with this login already exists; sign in with a password instead")
	CodeRoleAlreadyExists      = ErrRegistry.Register("ROLE_ALREADY_EXISTS", errx.TypeAlreadyExists, "Role with this name already exists")
	CodeRoleInUse              = ErrRegistry.Register("ROLE_IN_USE", errx.TypeLogic, "Role is assigned to a user and cannot be deleted")
	CodeBuiltInRole            = ErrRegistry.Register("BUILT_IN_ROLE", errx.TypeLogic, "Built-in roles cannot be deleted")
	CodeWrongPassword          = ErrRegistry.Register("WRONG_PASSWORD", errx.TypeLogic, "Current password is incorrect")
)

func ErrNotFound() *errx.Error {
	return ErrRegistry.New(CodeNotFound)
}

func ErrAlreadyExists() *errx.Error {
	return ErrRegistry.New(CodeAlreadyExists)
}

func ErrInvalidCredentials() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredentials)
}

func ErrAccountBlocked() *errx.Error {
	return ErrRegistry.New(CodeAccountBlocked)
}

func ErrRoleNotFound() *errx.Error {
	return ErrRegistry.New(CodeRoleNotFound)
}

func ErrRootProtected() *errx.Error {
	return ErrRegistry.New(CodeRootProtected)
}

func ErrFederatedLoginConflict(provider, login string) *errx.Error {
	return ErrRegistry.New(CodeFederatedLoginConflict).
		WithDetail("provider", provider).
		WithDetail("login", login)
}

func ErrRoleAlreadyExists(name string) *errx.Error {
	return ErrRegistry.New(CodeRoleAlreadyExists).WithDetail("name", name)
}

func ErrRoleInUse(id kernel.RoleID) *errx.Error {
	return ErrRegistry.New(CodeRoleInUse).WithDetail("role_id", id)
}

func ErrBuiltInRole() *errx.Error {
	return ErrRegistry.New(CodeBuiltInRole)
}

func ErrWrongPassword() *errx.Error {
	return ErrRegistry.New(CodeWrongPassword)
}
