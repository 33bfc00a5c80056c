package wallet

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// RecordPendingTx writes zero-effect PENDING rows, e.g. the DEPOSIT and
// DEPOSIT_FEE rows of a deposit awaiting the gateway. Entries whose key
// already exists are left alone.
func (s *Service) RecordPendingTx(ctx context.Context, tx *sqlx.Tx, entries ...PendingEntry) ([]models.WalletTransaction, error) {
	out := make([]models.WalletTransaction, 0, len(entries))

	for _, e := range entries {
		err := validate(e.UserID, e.ReferenceID, e.Amount)
		if err != nil {
			return nil, fmt.Errorf("record pending: %w", err)
		}

		_, err = s.lockWallets(ctx, tx, e.UserID)
		if err != nil {
			return nil, fmt.Errorf("record pending: %w", err)
		}

		prior, found, err := s.findPrior(ctx, tx, e.UserID, e.Type, e.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("record pending: %w", err)
		}

		if found {
			out = append(out, prior)

			continue
		}

		row := newRow(e.UserID, e.Type, e.Amount, models.TxPending, e.ReferenceID, e.Meta)
		if e.Provider != "" {
			row.Provider = e.Provider
		}

		err = s.insert(ctx, tx, &row)
		if err != nil {
			return nil, fmt.Errorf("record pending: %w", err)
		}

		out = append(out, row)
	}

	return out, nil
}

// ResolvePendingTx moves every PENDING row of a reference to a terminal
// status. Recorded effects are kept; a cancelled hold is reversed by a
// separate refund row. Returns the number of rows moved.
func (s *Service) ResolvePendingTx(
	ctx context.Context,
	tx *sqlx.Tx,
	userID, referenceID string,
	status models.TxStatus,
) (int64, error) {
	if !status.Terminal() {
		return 0, fmt.Errorf("resolve pending to %s: %w", status, models.ErrInvalidRequest)
	}

	n, err := s.txns.ResolvePending(ctx, tx, userID, referenceID, status)
	if err != nil {
		return 0, fmt.Errorf("resolve pending: %w", err)
	}

	return n, nil
}
