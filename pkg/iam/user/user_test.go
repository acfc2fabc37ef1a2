package user

import (
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestNewUser_NormalizesInput(t *testing.T) {
	u := NewUser("  neo ", " Neo@Matrix.IO ", "hash", iam.RoleUserID, now)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "neo", u.Login)
	assert.Equal(t, "neo@matrix.io", u.Email)
	assert.Equal(t, iam.RoleUserName, u.RoleName)
	assert.False(t, u.IsBlocked())
	assert.True(t, u.HasPassword())
}

func builtIn(id kernel.RoleID) *Role {
	for _, r := range BuiltInRoles(now) {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func TestUser_SetRole(t *testing.T) {
	u := NewUser("neo", "", "", iam.RoleUserID, now)

	require.NoError(t, u.SetRole(builtIn(iam.RoleAdministratorID), now))
	assert.Equal(t, iam.RoleAdministratorName, u.RoleName)

	err := u.SetRole(builtIn(iam.RoleRootID), now)
	assert.True(t, errx.HasCode(err, CodeRootProtected))

	gone, err := NewRole("gone", "", now)
	require.NoError(t, err)
	require.NoError(t, gone.Delete(now))
	assert.True(t, errx.HasCode(u.SetRole(gone, now), CodeRoleNotFound))

	root := NewUser("root", "", "h", iam.RoleRootID, now)
	assert.True(t, errx.HasCode(root.SetRole(builtIn(iam.RoleUserID), now), CodeRootProtected))
}

func TestRole_Lifecycle(t *testing.T) {
	r, err := NewRole("  editor ", "edits", now)
	require.NoError(t, err)
	assert.Equal(t, "editor", r.Name)
	assert.False(t, r.IsBuiltIn())

	_, err = NewRole("   ", "", now)
	assert.True(t, errx.IsType(err, errx.TypeValidation))

	require.NoError(t, r.Delete(now))
	assert.True(t, r.IsDeleted())

	admin := builtIn(iam.RoleAdministratorID)
	require.NoError(t, admin.Rename("admins", "", now))
	assert.True(t, errx.HasCode(admin.Delete(now), CodeBuiltInRole))

	root := builtIn(iam.RoleRootID)
	assert.True(t, errx.HasCode(root.Rename("god", "", now), CodeRootProtected))
	assert.True(t, errx.HasCode(root.Delete(now), CodeRootProtected))
}

func TestUser_Block(t *testing.T) {
	u := NewUser("neo", "", "h", iam.RoleUserID, now)
	require.NoError(t, u.Block(now))
	require.True(t, u.IsBlocked())

	// Blocking again keeps the original timestamp.
	require.NoError(t, u.Block(now.Add(time.Hour)))
	assert.Equal(t, now, *u.DeletedAt)

	root := NewUser("root", "", "h", iam.RoleRootID, now)
	assert.True(t, errx.HasCode(root.Block(now), CodeRootProtected))
	assert.False(t, root.IsBlocked())
}
