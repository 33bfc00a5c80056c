package transactions

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// ErrDuplicateTransaction means a row with the same (user, type, reference)
// key already exists.
var ErrDuplicateTransaction = errors.New("duplicate transaction")

// Effects are the summed deltas of a user's ledger rows.
type Effects struct {
	Available int64 `db:"available"`
	Held      int64 `db:"held"`
}

type Transactions interface {
	Insert(ctx context.Context, tx *sqlx.Tx, t *models.WalletTransaction) error
	FindByReference(
		ctx context.Context,
		q sqlx.QueryerContext,
		userID string,
		typ models.TxType,
		referenceID string,
	) (models.WalletTransaction, error)
	Finalize(ctx context.Context, tx *sqlx.Tx, t *models.WalletTransaction) error
	ResolvePending(ctx context.Context, tx *sqlx.Tx, userID, referenceID string, status models.TxStatus) (int64, error)
	ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string, limit int) ([]models.WalletTransaction, error)
	SumEffects(ctx context.Context, q sqlx.QueryerContext, userID string) (Effects, error)
}
