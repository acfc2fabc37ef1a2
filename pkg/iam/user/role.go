package user

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

const MaxRoleNameLength = 256

// Role is a named permission level a user holds. The three built-in roles
// are seeded with fixed ids; the rest are managed by administrators.
type Role struct {
	ID          kernel.RoleID `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	Description string        `db:"description" json:"description,omitempty"`
	DeletedAt   *time.Time    `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// NewRole creates a custom role.
func NewRole(name, description string, now time.Time) (*Role, error) {
	r := &Role{
		ID:        kernel.GenerateRoleID(),
		CreatedAt: now,
	}
	if err := r.Rename(name, description, now); err != nil {
		return nil, err
	}
	return r, nil
}

// BuiltInRoles returns the seeded roles.
func BuiltInRoles(now time.Time) []*Role {
	ids := []kernel.RoleID{iam.RoleRootID, iam.RoleUserID, iam.RoleAdministratorID}
	roles := make([]*Role, 0, len(ids))
	for _, id := range ids {
		roles = append(roles, &Role{ID: id, Name: iam.RoleName(id), CreatedAt: now, UpdatedAt: now})
	}
	return roles
}

func (r *Role) IsRoot() bool {
	return iam.IsRoot(r.ID, "")
}

// IsBuiltIn reports whether the role is one of the seeded roles. Built-in
// roles can be renamed but never deleted.
func (r *Role) IsBuiltIn() bool {
	return iam.RoleName(r.ID) != ""
}

func (r *Role) IsDeleted() bool {
	return r.DeletedAt != nil
}

// Rename changes the name and description. The root role is fixed.
func (r *Role) Rename(name, description string, now time.Time) error {
	if r.IsRoot() {
		return ErrRootProtected()
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxRoleNameLength {
		return errx.Validation("role name must be between 1 and 256 characters").WithDetail("field", "name")
	}
	r.Name = name
	r.Description = strings.TrimSpace(description)
	r.UpdatedAt = now
	return nil
}

// Delete marks the role deleted. Callers check first that no active user
// holds it.
func (r *Role) Delete(now time.Time) error {
	if r.IsRoot() {
		return ErrRootProtected()
	}
	if r.IsBuiltIn() {
		return ErrBuiltInRole().WithDetail("role_id", r.ID)
	}
	if r.DeletedAt == nil {
		t := now
		r.DeletedAt = &t
	}
	r.UpdatedAt = now
	return nil
}
