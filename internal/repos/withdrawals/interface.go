package withdrawals

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

type Withdrawals interface {
	Create(ctx context.Context, tx *sqlx.Tx, w *models.WithdrawalRequest) error
	LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (models.WithdrawalRequest, error)
	CountByStatus(ctx context.Context, tx *sqlx.Tx, userID string, status models.WithdrawalStatus) (int, error)
	// Update persists a status change. from is the status the row must still
	// have.
	Update(ctx context.Context, tx *sqlx.Tx, w *models.WithdrawalRequest, from models.WithdrawalStatus) error
	Get(ctx context.Context, q sqlx.QueryerContext, id string) (models.WithdrawalRequest, error)
	List(ctx context.Context, q sqlx.QueryerContext, status models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error)
}
