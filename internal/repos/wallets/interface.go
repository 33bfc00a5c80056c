package wallets

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// ErrNegativeBalance is returned when an update would take a balance below
// zero. The ledger checks balances first, so seeing it means a bug or a race
// the row lock did not cover.
var ErrNegativeBalance = errors.New("wallet balance would become negative")

type Wallets interface {
	Ensure(ctx context.Context, tx *sqlx.Tx, userID string) error
	LockForUpdate(ctx context.Context, tx *sqlx.Tx, userID string) (models.Wallet, error)
	Apply(ctx context.Context, tx *sqlx.Tx, userID string, availableDelta, heldDelta int64) (models.Wallet, error)
	Get(ctx context.Context, q sqlx.QueryerContext, userID string) (models.Wallet, error)
}
