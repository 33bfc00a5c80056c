package deposits

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

type Deposits interface {
	Create(ctx context.Context, tx *sqlx.Tx, d *models.Deposit) error
	LockByMerchantOID(ctx context.Context, tx *sqlx.Tx, merchantOID string) (models.Deposit, error)
	Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.Deposit, error)
	MarkResult(ctx context.Context, tx *sqlx.Tx, d *models.Deposit) error
}
