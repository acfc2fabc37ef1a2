// Package usermem keeps users and login history in process memory. It backs
// tests and the single-node development mode.
package usermem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// Directory is an in-memory user.Directory and user.RoleRepository. It
// starts with the built-in roles.
type Directory struct {
	mu       sync.RWMutex
	users    map[kernel.UserID]user.User
	accounts map[string]user.SocialAccount
	roles    map[kernel.RoleID]user.Role
}

func NewDirectory() *Directory {
	d := &Directory{
		users:    make(map[kernel.UserID]user.User),
		accounts: make(map[string]user.SocialAccount),
		roles:    make(map[kernel.RoleID]user.Role),
	}
	for _, r := range user.BuiltInRoles(time.Now().UTC()) {
		d.roles[r.ID] = *r
	}
	return d
}

var (
	_ user.Directory      = (*Directory)(nil)
	_ user.RoleRepository = (*Directory)(nil)
)

// withRole returns a copy of u carrying the current name of its role;
// caller holds mu.
func (d *Directory) withRole(u user.User) *user.User {
	if r, ok := d.roles[u.RoleID]; ok {
		u.RoleName = r.Name
	}
	return &u
}

func accountKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (d *Directory) FindByID(ctx context.Context, id kernel.UserID) (*user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, user.ErrNotFound().WithDetail("user_id", id)
	}
	return d.withRole(u), nil
}

func (d *Directory) FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found *user.User
	for _, u := range d.users {
		if !strings.EqualFold(u.Login, loginOrEmail) && !(u.Email != "" && strings.EqualFold(u.Email, loginOrEmail)) {
			continue
		}
		if found == nil || (found.IsBlocked() && !u.IsBlocked()) {
			found = d.withRole(u)
		}
	}
	if found == nil {
		return nil, user.ErrNotFound()
	}
	return found, nil
}

func (d *Directory) ExistsByLoginOrEmail(ctx context.Context, login, email string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.taken(login, email, ""), nil
}

// taken reports a login or email collision with any user other than except;
// caller holds mu.
func (d *Directory) taken(login, email string, except kernel.UserID) bool {
	for id, u := range d.users {
		if id == except {
			continue
		}
		if strings.EqualFold(u.Login, login) {
			return true
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (d *Directory) Create(ctx context.Context, u *user.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.create(u)
}

func (d *Directory) create(u *user.User) error {
	if _, ok := d.roles[u.RoleID]; !ok {
		return user.ErrRoleNotFound().WithDetail("role_id", u.RoleID)
	}
	if _, ok := d.users[u.ID]; ok || d.taken(u.Login, u.Email, "") {
		return user.ErrAlreadyExists().WithDetail("login", u.Login)
	}
	d.users[u.ID] = *u
	return nil
}

func (d *Directory) CreateWithSocialAccount(ctx context.Context, u *user.User, account *user.SocialAccount) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := accountKey(account.Provider, account.ProviderUserID)
	if _, ok := d.accounts[key]; ok {
		return user.ErrAlreadyExists().
			WithDetail("provider", account.Provider).
			WithDetail("provider_user_id", account.ProviderUserID)
	}
	if err := d.create(u); err != nil {
		return err
	}
	d.accounts[key] = *account
	return nil
}

func (d *Directory) Update(ctx context.Context, u *user.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[u.ID]; !ok {
		return user.ErrNotFound().WithDetail("user_id", u.ID)
	}
	if _, ok := d.roles[u.RoleID]; !ok {
		return user.ErrRoleNotFound().WithDetail("role_id", u.RoleID)
	}
	if d.taken(u.Login, u.Email, u.ID) {
		return user.ErrAlreadyExists().WithDetail("login", u.Login)
	}
	d.users[u.ID] = *u
	return nil
}

// List orders users newest first.
func (d *Directory) List(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[*user.User], error) {
	opts = opts.Normalize()

	d.mu.RLock()
	all := make([]*user.User, 0, len(d.users))
	for _, u := range d.users {
		all = append(all, d.withRole(u))
	}
	d.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return kernel.NewPaginated(window(all, opts), opts, len(all)), nil
}

func (d *Directory) FindSocialAccount(ctx context.Context, provider, providerUserID string) (*user.SocialAccount, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[accountKey(provider, providerUserID)]
	if !ok {
		return nil, user.ErrNotFound().
			WithDetail("provider", provider).
			WithDetail("provider_user_id", providerUserID)
	}
	return &a, nil
}

// ============================================================================
// Roles
// ============================================================================

func (d *Directory) FindRoleByID(ctx context.Context, id kernel.RoleID) (*user.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.roles[id]
	if !ok || r.IsDeleted() {
		return nil, user.ErrRoleNotFound().WithDetail("role_id", id)
	}
	return &r, nil
}

func (d *Directory) ExistsRoleByName(ctx context.Context, name string, except kernel.RoleID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roleNameTaken(name, except), nil
}

// roleNameTaken reports a live role other than except named name; caller
// holds mu.
func (d *Directory) roleNameTaken(name string, except kernel.RoleID) bool {
	for id, r := range d.roles {
		if id != except && !r.IsDeleted() && strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

// ListRoles orders live roles oldest first, then by name.
func (d *Directory) ListRoles(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[*user.Role], error) {
	opts = opts.Normalize()

	d.mu.RLock()
	live := make([]*user.Role, 0, len(d.roles))
	for _, r := range d.roles {
		if !r.IsDeleted() {
			live = append(live, &r)
		}
	}
	d.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool {
		if live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].Name < live[j].Name
		}
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})
	return kernel.NewPaginated(window(live, opts), opts, len(live)), nil
}

func (d *Directory) CreateRole(ctx context.Context, r *user.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.roles[r.ID]; ok || d.roleNameTaken(r.Name, "") {
		return user.ErrRoleAlreadyExists(r.Name)
	}
	d.roles[r.ID] = *r
	return nil
}

func (d *Directory) UpdateRole(ctx context.Context, r *user.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.roles[r.ID]; !ok {
		return user.ErrRoleNotFound().WithDetail("role_id", r.ID)
	}
	if !r.IsDeleted() && d.roleNameTaken(r.Name, r.ID) {
		return user.ErrRoleAlreadyExists(r.Name)
	}
	d.roles[r.ID] = *r
	return nil
}

func (d *Directory) CountActiveUsers(ctx context.Context, id kernel.RoleID) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, u := range d.users {
		if u.RoleID == id && !u.IsBlocked() {
			n++
		}
	}
	return n, nil
}

func window[T any](items []T, opts kernel.PaginationOptions) []T {
	start := opts.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + opts.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
