package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// ErrOpenOrderExists is raised by the partial unique index when a listing
// already has a PENDING_DELIVERY or DISPUTED order.
var ErrOpenOrderExists = errors.New("listing already has an open order")

type Orders interface {
	Create(ctx context.Context, tx *sqlx.Tx, o *models.Order) error
	HasOpen(ctx context.Context, tx *sqlx.Tx, listingID string) (bool, error)
	LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (models.Order, error)
	Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.Order, error)
	// Transition moves the order from one status to another and stamps the
	// matching timestamp column with at.
	Transition(ctx context.Context, tx *sqlx.Tx, o *models.Order, to models.OrderStatus, at time.Time) error
	ListDue(ctx context.Context, q sqlx.QueryerContext, now time.Time, limit int) ([]string, error)
}
