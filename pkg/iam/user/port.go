package user

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Directory is the user store. Lookups fail with CodeNotFound; writes that
// collide on login or email fail with CodeAlreadyExists.
type Directory interface {
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)
	// FindByLoginOrEmail matches either column case-insensitively.
	FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*User, error)
	ExistsByLoginOrEmail(ctx context.Context, login, email string) (bool, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[*User], error)

	FindSocialAccount(ctx context.Context, provider, providerUserID string) (*SocialAccount, error)
	// CreateWithSocialAccount provisions a user and its provider link atomically.
	CreateWithSocialAccount(ctx context.Context, u *User, account *SocialAccount) error
}

// RoleRepository stores roles. Deleted roles are invisible to lookups, which
// fail with CodeRoleNotFound; a name collision among live roles fails with
// CodeRoleAlreadyExists.
type RoleRepository interface {
	FindRoleByID(ctx context.Context, id kernel.RoleID) (*Role, error)
	// ExistsRoleByName matches case-insensitively, ignoring the role except.
	ExistsRoleByName(ctx context.Context, name string, except kernel.RoleID) (bool, error)
	ListRoles(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[*Role], error)
	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r *Role) error
	// CountActiveUsers counts unblocked users holding the role.
	CountActiveUsers(ctx context.Context, id kernel.RoleID) (int, error)
}

// PasswordHasher hashes and checks passwords
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// LoginHistoryRepository stores sign-in records
type LoginHistoryRepository interface {
	Record(ctx context.Context, record LoginRecord) error
	ListByUser(ctx context.Context, userID kernel.UserID, opts kernel.PaginationOptions) (kernel.Paginated[LoginRecord], error)
}
