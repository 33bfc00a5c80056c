package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/wallets"
)

var _ wallets.Wallets = (*walletsRepo)(nil)

const walletColumns = `user_id, balance_available, balance_held, created_at, updated_at`

type walletsRepo struct{}

func New() *walletsRepo {
	return &walletsRepo{}
}

// Ensure creates an empty wallet for userID if none exists.
func (r *walletsRepo) Ensure(ctx context.Context, tx *sqlx.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}

	return nil
}

func (r *walletsRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, userID string) (models.Wallet, error) {
	var w models.Wallet

	err := tx.GetContext(ctx, &w, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, fmt.Errorf("wallet %s: %w", userID, models.ErrNotFound)
		}

		return models.Wallet{}, fmt.Errorf("lock wallet: %w", err)
	}

	return w, nil
}

// Apply adds the deltas to both balances. The WHERE clause refuses any
// update that would leave a balance negative.
func (r *walletsRepo) Apply(
	ctx context.Context,
	tx *sqlx.Tx,
	userID string,
	availableDelta, heldDelta int64,
) (models.Wallet, error) {
	var w models.Wallet

	err := tx.GetContext(ctx, &w, `
		UPDATE wallets
		SET balance_available = balance_available + $2,
		    balance_held      = balance_held + $3,
		    updated_at        = NOW()
		WHERE user_id = $1
		  AND balance_available + $2 >= 0
		  AND balance_held + $3 >= 0
		RETURNING `+walletColumns, userID, availableDelta, heldDelta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, wallets.ErrNegativeBalance
		}

		return models.Wallet{}, fmt.Errorf("apply wallet deltas: %w", err)
	}

	return w, nil
}

func (r *walletsRepo) Get(ctx context.Context, q sqlx.QueryerContext, userID string) (models.Wallet, error) {
	var w models.Wallet

	err := sqlx.GetContext(ctx, q, &w, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, fmt.Errorf("wallet %s: %w", userID, models.ErrNotFound)
		}

		return models.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	return w, nil
}
