package listings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/listings"
)

var _ listings.Listings = (*listingsRepo)(nil)

const listingColumns = `id, seller_id, title, price, status, created_at, updated_at`

type listingsRepo struct{}

func New() *listingsRepo {
	return &listingsRepo{}
}

func (r *listingsRepo) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (models.Listing, error) {
	var l models.Listing

	err := tx.GetContext(ctx, &l, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Listing{}, fmt.Errorf("listing %s: %w", id, models.ErrNotFound)
		}

		return models.Listing{}, fmt.Errorf("lock listing: %w", err)
	}

	return l, nil
}

func (r *listingsRepo) SetStatus(ctx context.Context, tx *sqlx.Tx, id string, status models.ListingStatus) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set listing status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("listing %s: %w", id, models.ErrNotFound)
	}

	return nil
}

func (r *listingsRepo) Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.Listing, error) {
	var l models.Listing

	err := sqlx.GetContext(ctx, q, &l, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Listing{}, fmt.Errorf("listing %s: %w", id, models.ErrNotFound)
		}

		return models.Listing{}, fmt.Errorf("get listing: %w", err)
	}

	return l, nil
}
