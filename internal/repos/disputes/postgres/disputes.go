package disputes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/disputes"
)

var _ disputes.Disputes = (*disputesRepo)(nil)

const disputeColumns = `id, order_id, opened_by, reason, note, status, resolution, buyer_amount,
	seller_amount, resolved_by, resolution_note, resolved_at, created_at, updated_at`

type disputesRepo struct{}

func New() *disputesRepo {
	return &disputesRepo{}
}

func (r *disputesRepo) Create(ctx context.Context, tx *sqlx.Tx, d *models.Dispute) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO disputes (id, order_id, opened_by, reason, note, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, d.ID, d.OrderID, d.OpenedBy, d.Reason, d.Note, d.Status).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err, "") {
			return disputes.ErrDisputeExists
		}

		return fmt.Errorf("insert dispute: %w", err)
	}

	return nil
}

func (r *disputesRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (models.Dispute, error) {
	return r.getOne(ctx, tx, `WHERE id = $1 FOR UPDATE`, id)
}

// Resolve stores the outcome of an OPEN dispute.
func (r *disputesRepo) Resolve(ctx context.Context, tx *sqlx.Tx, d *models.Dispute) error {
	err := tx.QueryRowxContext(ctx, `
		UPDATE disputes
		SET status          = 'RESOLVED',
		    resolution      = $2,
		    buyer_amount    = $3,
		    seller_amount   = $4,
		    resolved_by     = $5,
		    resolution_note = $6,
		    resolved_at     = NOW(),
		    updated_at      = NOW()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING status, resolved_at, updated_at
	`, d.ID, d.Resolution, d.BuyerAmount, d.SellerAmount, d.ResolvedBy, d.ResolutionNote,
	).Scan(&d.Status, &d.ResolvedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrDisputeAlreadyResolved
		}

		return fmt.Errorf("resolve dispute: %w", err)
	}

	return nil
}

func (r *disputesRepo) Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.Dispute, error) {
	return r.getOne(ctx, q, `WHERE id = $1`, id)
}

func (r *disputesRepo) GetByOrder(ctx context.Context, q sqlx.QueryerContext, orderID string) (models.Dispute, error) {
	return r.getOne(ctx, q, `WHERE order_id = $1`, orderID)
}

func (r *disputesRepo) getOne(ctx context.Context, q sqlx.QueryerContext, where string, arg string) (models.Dispute, error) {
	var d models.Dispute

	err := sqlx.GetContext(ctx, q, &d, `SELECT `+disputeColumns+` FROM disputes `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Dispute{}, fmt.Errorf("dispute %s: %w", arg, models.ErrNotFound)
		}

		return models.Dispute{}, fmt.Errorf("get dispute: %w", err)
	}

	return d, nil
}
