package disputes

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

var ErrDisputeExists = errors.New("order already has a dispute")

type Disputes interface {
	Create(ctx context.Context, tx *sqlx.Tx, d *models.Dispute) error
	LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (models.Dispute, error)
	Resolve(ctx context.Context, tx *sqlx.Tx, d *models.Dispute) error
	Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.Dispute, error)
	GetByOrder(ctx context.Context, q sqlx.QueryerContext, orderID string) (models.Dispute, error)
}
