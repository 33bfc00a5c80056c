package deposits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/deposits"
)

var _ deposits.Deposits = (*depositsRepo)(nil)

const depositColumns = `id, user_id, gross_amount, net_credit_amount, fee_amount, status,
	gateway_merchant_oid, gateway_response, failure_reason, created_at, updated_at, completed_at`

type depositsRepo struct{}

func New() *depositsRepo {
	return &depositsRepo{}
}

func (r *depositsRepo) Create(ctx context.Context, tx *sqlx.Tx, d *models.Deposit) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO deposits
			(id, user_id, gross_amount, net_credit_amount, fee_amount, status, gateway_merchant_oid, gateway_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, d.ID, d.UserID, d.GrossAmount, d.NetCreditAmount, d.FeeAmount, d.Status,
		d.GatewayMerchantOID, d.GatewayResponse,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert deposit: %w", err)
	}

	return nil
}

func (r *depositsRepo) LockByMerchantOID(ctx context.Context, tx *sqlx.Tx, merchantOID string) (models.Deposit, error) {
	var d models.Deposit

	err := tx.GetContext(ctx, &d, `
		SELECT `+depositColumns+`
		FROM deposits
		WHERE gateway_merchant_oid = $1
		FOR UPDATE
	`, merchantOID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Deposit{}, fmt.Errorf("deposit %s: %w", merchantOID, models.ErrNotFound)
		}

		return models.Deposit{}, fmt.Errorf("lock deposit: %w", err)
	}

	return d, nil
}

func (r *depositsRepo) Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.Deposit, error) {
	var d models.Deposit

	err := sqlx.GetContext(ctx, q, &d, `
		SELECT `+depositColumns+`
		FROM deposits
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Deposit{}, fmt.Errorf("deposit %s: %w", id, models.ErrNotFound)
		}

		return models.Deposit{}, fmt.Errorf("get deposit: %w", err)
	}

	return d, nil
}

// MarkResult stores the terminal outcome of a PENDING deposit.
func (r *depositsRepo) MarkResult(ctx context.Context, tx *sqlx.Tx, d *models.Deposit) error {
	err := tx.QueryRowxContext(ctx, `
		UPDATE deposits
		SET status           = $2,
		    failure_reason   = $3,
		    gateway_response = $4,
		    completed_at     = NOW(),
		    updated_at       = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING completed_at, updated_at
	`, d.ID, d.Status, d.FailureReason, d.GatewayResponse).Scan(&d.CompletedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("deposit %s already settled: %w", d.ID, models.ErrTransactionClosed)
		}

		return fmt.Errorf("mark deposit result: %w", err)
	}

	return nil
}
