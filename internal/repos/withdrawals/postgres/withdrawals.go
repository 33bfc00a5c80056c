package withdrawals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/withdrawals"
)

var _ withdrawals.Withdrawals = (*withdrawalsRepo)(nil)

const withdrawalColumns = `id, user_id, amount, iban, account_name, status, reject_reason,
	reviewed_by, reviewed_at, paid_at, created_at, updated_at`

type withdrawalsRepo struct{}

func New() *withdrawalsRepo {
	return &withdrawalsRepo{}
}

func (r *withdrawalsRepo) Create(ctx context.Context, tx *sqlx.Tx, w *models.WithdrawalRequest) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO withdrawal_requests (id, user_id, amount, iban, account_name, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, w.ID, w.UserID, w.Amount, w.IBAN, w.AccountName, w.Status).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal request: %w", err)
	}

	return nil
}

func (r *withdrawalsRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest

	err := tx.GetContext(ctx, &w, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WithdrawalRequest{}, fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound)
		}

		return models.WithdrawalRequest{}, fmt.Errorf("lock withdrawal request: %w", err)
	}

	return w, nil
}

func (r *withdrawalsRepo) CountByStatus(
	ctx context.Context,
	tx *sqlx.Tx,
	userID string,
	status models.WithdrawalStatus,
) (int, error) {
	var n int

	err := tx.GetContext(ctx, &n, `
		SELECT COUNT(*)
		FROM withdrawal_requests
		WHERE user_id = $1 AND status = $2
	`, userID, status)
	if err != nil {
		return 0, fmt.Errorf("count withdrawal requests: %w", err)
	}

	return n, nil
}

func (r *withdrawalsRepo) Update(
	ctx context.Context,
	tx *sqlx.Tx,
	w *models.WithdrawalRequest,
	from models.WithdrawalStatus,
) error {
	err := tx.QueryRowxContext(ctx, `
		UPDATE withdrawal_requests
		SET status        = $3,
		    reject_reason = $4,
		    reviewed_by   = $5,
		    reviewed_at   = $6,
		    paid_at       = $7,
		    updated_at    = NOW()
		WHERE id = $1 AND status = $2
		RETURNING updated_at
	`, w.ID, from, w.Status, w.RejectReason, w.ReviewedBy, w.ReviewedAt, w.PaidAt).Scan(&w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("withdrawal %s is no longer %s: %w", w.ID, from, models.ErrInvalidWithdrawalState)
		}

		return fmt.Errorf("update withdrawal request: %w", err)
	}

	return nil
}

func (r *withdrawalsRepo) Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest

	err := sqlx.GetContext(ctx, q, &w, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WithdrawalRequest{}, fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound)
		}

		return models.WithdrawalRequest{}, fmt.Errorf("get withdrawal request: %w", err)
	}

	return w, nil
}

// List returns requests in the given status, oldest first. An empty status
// lists every request.
func (r *withdrawalsRepo) List(
	ctx context.Context,
	q sqlx.QueryerContext,
	status models.WithdrawalStatus,
	limit int,
) ([]models.WithdrawalRequest, error) {
	out := []models.WithdrawalRequest{}

	err := sqlx.SelectContext(ctx, q, &out, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE $1 = '' OR status = $1
		ORDER BY created_at, id
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list withdrawal requests: %w", err)
	}

	return out, nil
}
