package userinfra

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/user"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresLoginHistory implements user.LoginHistoryRepository.
type PostgresLoginHistory struct {
	db *sqlx.DB
}

func NewPostgresLoginHistory(db *sqlx.DB) *PostgresLoginHistory {
	return &PostgresLoginHistory{db: db}
}

var _ user.LoginHistoryRepository = (*PostgresLoginHistory)(nil)

// Record is idempotent on the record id so a retried job does not duplicate
// the entry.
func (r *PostgresLoginHistory) Record(ctx context.Context, rec user.LoginRecord) error {
	query := `
		INSERT INTO login_history (id, user_id, ip, user_agent, method, created_at)
		VALUES (:id, :user_id, :ip, :user_agent, :method, :created_at)
		ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return errx.Wrap(err, "failed to record login", errx.TypeInternal).
			WithDetail("user_id", rec.UserID)
	}
	return nil
}

func (r *PostgresLoginHistory) ListByUser(ctx context.Context, userID kernel.UserID, opts kernel.PaginationOptions) (kernel.Paginated[user.LoginRecord], error) {
	opts = opts.Normalize()

	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM login_history WHERE user_id = $1`, userID.String())
	if err != nil {
		return kernel.Paginated[user.LoginRecord]{}, errx.Wrap(err, "failed to count login history", errx.TypeInternal)
	}

	var records []user.LoginRecord
	query := `
		SELECT id, user_id, ip, user_agent, method, created_at
		FROM login_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &records, query, userID.String(), opts.PageSize, opts.Offset()); err != nil {
		return kernel.Paginated[user.LoginRecord]{}, errx.Wrap(err, "failed to list login history", errx.TypeInternal)
	}
	return kernel.NewPaginated(records, opts, total), nil
}
