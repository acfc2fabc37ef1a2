package userinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

const selectRole = `
	SELECT id, name, COALESCE(description, '') AS description, deleted_at, created_at, updated_at
	FROM roles`

// PostgresRoleRepository implements user.RoleRepository on PostgreSQL.
// Deleting a role sets deleted_at; the row stays for blocked users that
// still reference it.
type PostgresRoleRepository struct {
	db *sqlx.DB
}

func NewPostgresRoleRepository(db *sqlx.DB) *PostgresRoleRepository {
	return &PostgresRoleRepository{db: db}
}

var _ user.RoleRepository = (*PostgresRoleRepository)(nil)

func (r *PostgresRoleRepository) FindRoleByID(ctx context.Context, id kernel.RoleID) (*user.Role, error) {
	var role user.Role
	err := r.db.GetContext(ctx, &role, selectRole+` WHERE id = $1 AND deleted_at IS NULL`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrRoleNotFound().WithDetail("role_id", id)
		}
		return nil, errx.Wrap(err, "failed to find role by id", errx.TypeInternal)
	}
	return &role, nil
}

func (r *PostgresRoleRepository) ExistsRoleByName(ctx context.Context, name string, except kernel.RoleID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(
		SELECT 1 FROM roles
		WHERE lower(name) = lower($1) AND deleted_at IS NULL AND ($2 = '' OR id::text <> $2)
	)`
	if err := r.db.GetContext(ctx, &exists, query, name, except.String()); err != nil {
		return false, errx.Wrap(err, "failed to check role existence", errx.TypeInternal)
	}
	return exists, nil
}

func (r *PostgresRoleRepository) ListRoles(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[*user.Role], error) {
	opts = opts.Normalize()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM roles WHERE deleted_at IS NULL`); err != nil {
		return kernel.Paginated[*user.Role]{}, errx.Wrap(err, "failed to count roles", errx.TypeInternal)
	}

	var roles []*user.Role
	query := selectRole + ` WHERE deleted_at IS NULL ORDER BY created_at, name LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &roles, query, opts.PageSize, opts.Offset()); err != nil {
		return kernel.Paginated[*user.Role]{}, errx.Wrap(err, "failed to list roles", errx.TypeInternal)
	}
	return kernel.NewPaginated(roles, opts, total), nil
}

func (r *PostgresRoleRepository) CreateRole(ctx context.Context, role *user.Role) error {
	query := `
		INSERT INTO roles (id, name, description, deleted_at, created_at, updated_at)
		VALUES (:id, :name, NULLIF(:description, ''), :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, role); err != nil {
		if isUniqueViolation(err) {
			return user.ErrRoleAlreadyExists(role.Name)
		}
		return errx.Wrap(err, "failed to create role", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresRoleRepository) UpdateRole(ctx context.Context, role *user.Role) error {
	query := `
		UPDATE roles SET
			name = :name,
			description = NULLIF(:description, ''),
			deleted_at = :deleted_at,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, role)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrRoleAlreadyExists(role.Name)
		}
		return errx.Wrap(err, "failed to update role", errx.TypeInternal).
			WithDetail("role_id", role.ID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on update", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return user.ErrRoleNotFound().WithDetail("role_id", role.ID)
	}
	return nil
}

func (r *PostgresRoleRepository) CountActiveUsers(ctx context.Context, id kernel.RoleID) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM users WHERE role_id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &n, query, id.String()); err != nil {
		return 0, errx.Wrap(err, "failed to count role holders", errx.TypeInternal)
	}
	return n, nil
}
