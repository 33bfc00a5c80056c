package listings

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// Listings is the engine's narrow view of the CRUD-owned listing table.
type Listings interface {
	LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (models.Listing, error)
	SetStatus(ctx context.Context, tx *sqlx.Tx, id string, status models.ListingStatus) error
	Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.Listing, error)
}
