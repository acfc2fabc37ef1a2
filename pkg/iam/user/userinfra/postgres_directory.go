package userinfra

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// selectUser joins the role so RoleName is always current.
const selectUser = `
	SELECT u.id, u.role_id, r.name AS role_name, u.login, COALESCE(u.email, '') AS email,
	       COALESCE(u.password_hash, '') AS password_hash, u.two_factor_enabled,
	       u.deleted_at, u.created_at, u.updated_at
	FROM users u
	JOIN roles r ON r.id = u.role_id`

// PostgresDirectory implements user.Directory on PostgreSQL.
type PostgresDirectory struct {
	db *sqlx.DB
}

func NewPostgresDirectory(db *sqlx.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

var _ user.Directory = (*PostgresDirectory)(nil)

func (r *PostgresDirectory) FindByID(ctx context.Context, id kernel.UserID) (*user.User, error) {
	var u user.User
	err := r.db.GetContext(ctx, &u, selectUser+` WHERE u.id = $1`, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound().WithDetail("user_id", id)
		}
		return nil, errx.Wrap(err, "failed to find user by id", errx.TypeInternal)
	}
	return &u, nil
}

// FindByLoginOrEmail prefers an active account when a blocked one shares the
// login.
func (r *PostgresDirectory) FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*user.User, error) {
	var u user.User
	query := selectUser + `
		WHERE lower(u.login) = lower($1) OR lower(u.email) = lower($1)
		ORDER BY u.deleted_at DESC NULLS FIRST
		LIMIT 1`
	err := r.db.GetContext(ctx, &u, query, loginOrEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user by login", errx.TypeInternal)
	}
	return &u, nil
}

func (r *PostgresDirectory) ExistsByLoginOrEmail(ctx context.Context, login, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(
		SELECT 1 FROM users
		WHERE lower(login) = lower($1) OR ($2 <> '' AND lower(email) = lower($2))
	)`
	if err := r.db.GetContext(ctx, &exists, query, login, email); err != nil {
		return false, errx.Wrap(err, "failed to check user existence", errx.TypeInternal)
	}
	return exists, nil
}

const insertUser = `
	INSERT INTO users (
		id, role_id, login, email, password_hash, two_factor_enabled,
		deleted_at, created_at, updated_at
	) VALUES (
		:id, :role_id, :login, NULLIF(:email, ''), NULLIF(:password_hash, ''), :two_factor_enabled,
		:deleted_at, :created_at, :updated_at
	)`

func (r *PostgresDirectory) Create(ctx context.Context, u *user.User) error {
	if _, err := r.db.NamedExecContext(ctx, insertUser, u); err != nil {
		return createError(err, u)
	}
	return nil
}

func (r *PostgresDirectory) CreateWithSocialAccount(ctx context.Context, u *user.User, account *user.SocialAccount) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertUser, u); err != nil {
		return createError(err, u)
	}

	query := `
		INSERT INTO social_accounts (id, user_id, provider, provider_user_id, created_at)
		VALUES (:id, :user_id, :provider, :provider_user_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, account); err != nil {
		if isUniqueViolation(err) {
			return user.ErrAlreadyExists().
				WithDetail("provider", account.Provider).
				WithDetail("provider_user_id", account.ProviderUserID)
		}
		return errx.Wrap(err, "failed to link social account", errx.TypeInternal)
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit user provisioning", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresDirectory) Update(ctx context.Context, u *user.User) error {
	query := `
		UPDATE users SET
			role_id = :role_id,
			login = :login,
			email = NULLIF(:email, ''),
			password_hash = NULLIF(:password_hash, ''),
			two_factor_enabled = :two_factor_enabled,
			deleted_at = :deleted_at,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, u)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrAlreadyExists().WithDetail("login", u.Login)
		}
		return errx.Wrap(err, "failed to update user", errx.TypeInternal).
			WithDetail("user_id", u.ID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on update", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return user.ErrNotFound().WithDetail("user_id", u.ID)
	}
	return nil
}

func (r *PostgresDirectory) List(ctx context.Context, opts kernel.PaginationOptions) (kernel.Paginated[*user.User], error) {
	opts = opts.Normalize()

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return kernel.Paginated[*user.User]{}, errx.Wrap(err, "failed to count users", errx.TypeInternal)
	}

	var users []*user.User
	query := selectUser + ` ORDER BY u.created_at DESC LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &users, query, opts.PageSize, opts.Offset()); err != nil {
		return kernel.Paginated[*user.User]{}, errx.Wrap(err, "failed to list users", errx.TypeInternal)
	}
	return kernel.NewPaginated(users, opts, total), nil
}

func (r *PostgresDirectory) FindSocialAccount(ctx context.Context, provider, providerUserID string) (*user.SocialAccount, error) {
	var a user.SocialAccount
	query := `
		SELECT id, user_id, provider, provider_user_id, created_at
		FROM social_accounts
		WHERE provider = $1 AND provider_user_id = $2`
	err := r.db.GetContext(ctx, &a, query, provider, providerUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound().
				WithDetail("provider", provider).
				WithDetail("provider_user_id", providerUserID)
		}
		return nil, errx.Wrap(err, "failed to find social account", errx.TypeInternal)
	}
	return &a, nil
}

func createError(err error, u *user.User) error {
	if isUniqueViolation(err) {
		return user.ErrAlreadyExists().WithDetail("login", u.Login)
	}
	return errx.Wrap(err, "failed to create user", errx.TypeInternal)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
