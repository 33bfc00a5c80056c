// Package wallet implements the ledger primitives. It is the only code that
// changes wallet balances.
//
// Every primitive comes in two forms: XxxTx joins the caller's transaction
// so a business operation commits its entity update and its money movement
// together; Xxx opens its own serializable transaction.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/transactions"
	pgtransactions "github.com/ottkdev/standoff2com-sub001/internal/repos/transactions/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/wallets"
	pgwallets "github.com/ottkdev/standoff2com-sub001/internal/repos/wallets/postgres"
)

const maxHistoryLimit = 200

type Service struct {
	db      *sqlx.DB
	wallets wallets.Wallets
	txns    transactions.Transactions
	log     *zap.Logger
}

func New(db *sqlx.DB, log *zap.Logger) *Service {
	return &Service{
		db:      db,
		wallets: pgwallets.New(),
		txns:    pgtransactions.New(),
		log:     log.Named("wallet"),
	}
}

// DB exposes the handle the primitives run on so cooperating services open
// transactions on the same pool.
func (s *Service) DB() *sqlx.DB {
	return s.db
}

// Balance returns the user's wallet. A user without a wallet has zero
// balances.
func (s *Service) Balance(ctx context.Context, userID string) (models.Wallet, error) {
	w, err := s.wallets.Get(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Wallet{UserID: userID}, nil
		}

		return models.Wallet{}, fmt.Errorf("get balance: %w", err)
	}

	return w, nil
}

// History returns the user's most recent ledger rows.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.txns.ListByUser(ctx, s.db, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return rows, nil
}

// Reconcile checks that the wallet balances equal the summed effects of the
// user's ledger rows. A user without a wallet reconciles against zero. A
// mismatch is returned together with ErrLedgerDrift.
func (s *Service) Reconcile(ctx context.Context, userID string) (Reconciliation, error) {
	var rec Reconciliation

	err := pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		w, err := s.wallets.Get(ctx, tx, userID)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				return err
			}

			w = models.Wallet{UserID: userID}
		}

		sum, err := s.txns.SumEffects(ctx, tx, userID)
		if err != nil {
			return err
		}

		rec = Reconciliation{
			Wallet:          w,
			LedgerAvailable: sum.Available,
			LedgerHeld:      sum.Held,
			AvailableDrift:  w.BalanceAvailable - sum.Available,
			HeldDrift:       w.BalanceHeld - sum.Held,
		}

		return nil
	})
	if err != nil {
		return Reconciliation{}, fmt.Errorf("reconcile %s: %w", userID, err)
	}

	if !rec.Balanced() {
		s.log.Error("ledger drift",
			zap.String("user_id", userID),
			zap.Int64("available_drift", rec.AvailableDrift),
			zap.Int64("held_drift", rec.HeldDrift),
		)

		return rec, fmt.Errorf("reconcile %s: %w", userID, models.ErrLedgerDrift)
	}

	return rec, nil
}

// LockTx creates the user's wallet if needed and locks it for the rest of
// tx. Callers use it to serialise checks that must see a stable wallet.
func (s *Service) LockTx(ctx context.Context, tx *sqlx.Tx, userID string) (models.Wallet, error) {
	locked, err := s.lockWallets(ctx, tx, userID)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("lock wallet: %w", err)
	}

	w, ok := locked[userID]
	if !ok {
		return models.Wallet{}, fmt.Errorf("lock wallet: empty user id: %w", models.ErrInvalidRequest)
	}

	return w, nil
}

// lockWallets creates missing wallets and locks them FOR UPDATE in ascending
// user id order. Empty ids are skipped.
func (s *Service) lockWallets(ctx context.Context, tx *sqlx.Tx, userIDs ...string) (map[string]models.Wallet, error) {
	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))

	for _, id := range userIDs {
		if id == "" {
			continue
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	sort.Strings(ids)

	locked := make(map[string]models.Wallet, len(ids))

	for _, id := range ids {
		err := s.wallets.Ensure(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		w, err := s.wallets.LockForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		locked[id] = w
	}

	return locked, nil
}

// inTx runs a Tx-form primitive in its own transaction.
func (s *Service) inTx(ctx context.Context, fn func(*sqlx.Tx) (Result, error)) (Result, error) {
	var res Result

	err := pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error

		res, err = fn(tx)

		return err
	})
	if err != nil {
		return Result{}, err
	}

	return res, nil
}
