package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/orders"
)

var _ orders.Orders = (*ordersRepo)(nil)

const (
	openListingConstraint = "marketplace_orders_open_listing_uniq"

	orderColumns = `id, listing_id, buyer_id, seller_id, amount, status, auto_release_at,
		completed_at, disputed_at, refunded_at, created_at, updated_at`
)

type ordersRepo struct{}

func New() *ordersRepo {
	return &ordersRepo{}
}

func (r *ordersRepo) Create(ctx context.Context, tx *sqlx.Tx, o *models.Order) error {
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO marketplace_orders
			(id, listing_id, buyer_id, seller_id, amount, status, auto_release_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, o.ID, o.ListingID, o.BuyerID, o.SellerID, o.Amount, o.Status, o.AutoReleaseAt,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err, openListingConstraint) {
			return orders.ErrOpenOrderExists
		}

		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *ordersRepo) HasOpen(ctx context.Context, tx *sqlx.Tx, listingID string) (bool, error) {
	var exists bool

	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1
			FROM marketplace_orders
			WHERE listing_id = $1
			  AND status IN ('PENDING_DELIVERY', 'DISPUTED')
		)
	`, listingID)
	if err != nil {
		return false, fmt.Errorf("check open order: %w", err)
	}

	return exists, nil
}

func (r *ordersRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (models.Order, error) {
	var o models.Order

	err := tx.GetContext(ctx, &o, `
		SELECT `+orderColumns+`
		FROM marketplace_orders
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
		}

		return models.Order{}, fmt.Errorf("lock order: %w", err)
	}

	return o, nil
}

func (r *ordersRepo) Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.Order, error) {
	var o models.Order

	err := sqlx.GetContext(ctx, q, &o, `
		SELECT `+orderColumns+`
		FROM marketplace_orders
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
		}

		return models.Order{}, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

func (r *ordersRepo) Transition(
	ctx context.Context,
	tx *sqlx.Tx,
	o *models.Order,
	to models.OrderStatus,
	at time.Time,
) error {
	var column string

	switch to {
	case models.OrderCompleted:
		column = "completed_at"
	case models.OrderDisputed:
		column = "disputed_at"
	case models.OrderRefunded:
		column = "refunded_at"
	default:
		return fmt.Errorf("transition to %s: %w", to, models.ErrInvalidOrderState)
	}

	err := tx.GetContext(ctx, o, `
		UPDATE marketplace_orders
		SET status = $3, `+column+` = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns, o.ID, o.Status, to, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s moved concurrently: %w", o.ID, models.ErrInvalidOrderState)
		}

		return fmt.Errorf("update order status: %w", err)
	}

	return nil
}

// ListDue returns PENDING_DELIVERY orders whose auto-release time has passed,
// oldest first.
func (r *ordersRepo) ListDue(ctx context.Context, q sqlx.QueryerContext, now time.Time, limit int) ([]string, error) {
	ids := []string{}

	err := sqlx.SelectContext(ctx, q, &ids, `
		SELECT id
		FROM marketplace_orders
		WHERE status = 'PENDING_DELIVERY'
		  AND auto_release_at <= $1
		ORDER BY auto_release_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due orders: %w", err)
	}

	return ids, nil
}
