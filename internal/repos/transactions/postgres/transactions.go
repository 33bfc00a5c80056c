package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/transactions"
)

var _ transactions.Transactions = (*transactionsRepo)(nil)

const (
	referenceConstraint = "wallet_transactions_reference_uniq"

	txColumns = `id, user_id, type, amount, status, available_delta, held_delta,
		provider, reference_id, meta, created_at, updated_at`
)

type transactionsRepo struct{}

func New() *transactionsRepo {
	return &transactionsRepo{}
}

// Insert writes t and fills its timestamps.
func (r *transactionsRepo) Insert(ctx context.Context, tx *sqlx.Tx, t *models.WalletTransaction) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO wallet_transactions
			(id, user_id, type, amount, status, available_delta, held_delta, provider, reference_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, t.ID, t.UserID, t.Type, t.Amount, t.Status, t.AvailableDelta, t.HeldDelta,
		t.Provider, t.ReferenceID, t.Meta,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err, referenceConstraint) {
			return transactions.ErrDuplicateTransaction
		}

		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

func (r *transactionsRepo) FindByReference(
	ctx context.Context,
	q sqlx.QueryerContext,
	userID string,
	typ models.TxType,
	referenceID string,
) (models.WalletTransaction, error) {
	var t models.WalletTransaction

	err := sqlx.GetContext(ctx, q, &t, `
		SELECT `+txColumns+`
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
	`, userID, typ, referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WalletTransaction{}, models.ErrNotFound
		}

		return models.WalletTransaction{}, fmt.Errorf("find transaction: %w", err)
	}

	return t, nil
}

// Finalize moves a PENDING row to t.Status and records the effect it
// applied. A row that already left PENDING is reported as closed.
func (r *transactionsRepo) Finalize(ctx context.Context, tx *sqlx.Tx, t *models.WalletTransaction) error {
	err := tx.QueryRowxContext(ctx, `
		UPDATE wallet_transactions
		SET status          = $2,
		    available_delta = $3,
		    held_delta      = $4,
		    provider        = COALESCE(NULLIF($5, ''), provider),
		    meta            = meta || $6::jsonb,
		    updated_at      = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING updated_at
	`, t.ID, t.Status, t.AvailableDelta, t.HeldDelta, t.Provider, t.Meta).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrTransactionClosed
		}

		return fmt.Errorf("finalize transaction: %w", err)
	}

	return nil
}

// ResolvePending moves every PENDING row of a reference to status without
// touching its recorded effect.
func (r *transactionsRepo) ResolvePending(
	ctx context.Context,
	tx *sqlx.Tx,
	userID, referenceID string,
	status models.TxStatus,
) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallet_transactions
		SET status = $3, updated_at = NOW()
		WHERE user_id = $1 AND reference_id = $2 AND status = 'PENDING'
	`, userID, referenceID, status)
	if err != nil {
		return 0, fmt.Errorf("resolve pending: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return affected, nil
}

func (r *transactionsRepo) ListByUser(
	ctx context.Context,
	q sqlx.QueryerContext,
	userID string,
	limit int,
) ([]models.WalletTransaction, error) {
	out := []models.WalletTransaction{}

	err := sqlx.SelectContext(ctx, q, &out, `
		SELECT `+txColumns+`
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	return out, nil
}

// SumEffects adds up the recorded deltas of every row. Rows carry a
// non-zero delta only once their effect hit the wallet, so the sums must
// equal the wallet balances.
func (r *transactionsRepo) SumEffects(
	ctx context.Context,
	q sqlx.QueryerContext,
	userID string,
) (transactions.Effects, error) {
	var e transactions.Effects

	err := sqlx.GetContext(ctx, q, &e, `
		SELECT COALESCE(SUM(available_delta), 0) AS available,
		       COALESCE(SUM(held_delta), 0)      AS held
		FROM wallet_transactions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return transactions.Effects{}, fmt.Errorf("sum effects: %w", err)
	}

	return e, nil
}
