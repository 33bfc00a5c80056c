package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/metrics"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/transactions"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/wallets"
)

// Credit increases the user's available balance.
func (s *Service) Credit(ctx context.Context, p CreditParams) (Result, error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) (Result, error) { return s.CreditTx(ctx, tx, p) })
}

// CreditTx credits inside tx. A PENDING row under the same key, written when
// the deposit was initiated, is finalised instead of inserting a new row.
func (s *Service) CreditTx(ctx context.Context, tx *sqlx.Tx, p CreditParams) (Result, error) {
	if p.Type == "" {
		p.Type = models.TxDeposit
	}

	res, err := s.credit(ctx, tx, p)
	observe("credit", res, err)

	if err != nil {
		return Result{}, fmt.Errorf("credit: %w", err)
	}

	return res, nil
}

func (s *Service) credit(ctx context.Context, tx *sqlx.Tx, p CreditParams) (Result, error) {
	err := validate(p.UserID, p.ReferenceID, p.Amount)
	if err != nil {
		return Result{}, err
	}

	locked, err := s.lockWallets(ctx, tx, p.UserID)
	if err != nil {
		return Result{}, err
	}

	prior, found, err := s.findPrior(ctx, tx, p.UserID, p.Type, p.ReferenceID)
	if err != nil {
		return Result{}, err
	}

	if found {
		switch {
		case prior.Status == models.TxSuccess:
			return Result{Transaction: prior, Wallet: locked[p.UserID], Replayed: true}, nil
		case prior.Status.Terminal():
			return Result{}, fmt.Errorf("%s %s is %s: %w", p.Type, p.ReferenceID, prior.Status, models.ErrTransactionClosed)
		case prior.Amount != p.Amount:
			return Result{}, fmt.Errorf("pending %d, credit %d: %w", prior.Amount, p.Amount, models.ErrAmountMismatch)
		}

		w, err := s.apply(ctx, tx, p.UserID, p.Amount, 0)
		if err != nil {
			return Result{}, err
		}

		prior.Status = models.TxSuccess
		prior.AvailableDelta = p.Amount
		prior.HeldDelta = 0
		prior.Provider = p.Provider
		prior.Meta = merge(prior.Meta, p.Meta)

		err = s.txns.Finalize(ctx, tx, &prior)
		if err != nil {
			return Result{}, err
		}

		return Result{Transaction: prior, Wallet: w}, nil
	}

	w, err := s.apply(ctx, tx, p.UserID, p.Amount, 0)
	if err != nil {
		return Result{}, err
	}

	row := newRow(p.UserID, p.Type, p.Amount, models.TxSuccess, p.ReferenceID, p.Meta)
	row.Provider = p.Provider
	row.AvailableDelta = p.Amount

	err = s.insert(ctx, tx, &row)
	if err != nil {
		return Result{}, err
	}

	return Result{Transaction: row, Wallet: w}, nil
}

// Hold moves money from available to held on the same wallet.
func (s *Service) Hold(ctx context.Context, p HoldParams) (Result, error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) (Result, error) { return s.HoldTx(ctx, tx, p) })
}

func (s *Service) HoldTx(ctx context.Context, tx *sqlx.Tx, p HoldParams) (Result, error) {
	if p.Type == "" {
		p.Type = models.TxHold
	}

	if p.Status == "" {
		p.Status = models.TxSuccess
	}

	res, err := s.hold(ctx, tx, p)
	observe("hold", res, err)

	if err != nil {
		return Result{}, fmt.Errorf("hold: %w", err)
	}

	return res, nil
}

func (s *Service) hold(ctx context.Context, tx *sqlx.Tx, p HoldParams) (Result, error) {
	err := validate(p.UserID, p.ReferenceID, p.Amount)
	if err != nil {
		return Result{}, err
	}

	if p.Status != models.TxSuccess && p.Status != models.TxPending {
		return Result{}, fmt.Errorf("hold status %s: %w", p.Status, models.ErrInvalidRequest)
	}

	locked, err := s.lockWallets(ctx, tx, p.UserID)
	if err != nil {
		return Result{}, err
	}

	prior, found, err := s.findPrior(ctx, tx, p.UserID, p.Type, p.ReferenceID)
	if err != nil {
		return Result{}, err
	}

	if found {
		return Result{Transaction: prior, Wallet: locked[p.UserID], Replayed: true}, nil
	}

	if locked[p.UserID].BalanceAvailable < p.Amount {
		return Result{}, fmt.Errorf("available %d, need %d: %w",
			locked[p.UserID].BalanceAvailable, p.Amount, models.ErrInsufficientFunds)
	}

	w, err := s.apply(ctx, tx, p.UserID, -p.Amount, p.Amount)
	if err != nil {
		return Result{}, err
	}

	row := newRow(p.UserID, p.Type, p.Amount, p.Status, p.ReferenceID, p.Meta)
	row.AvailableDelta = -p.Amount
	row.HeldDelta = p.Amount

	err = s.insert(ctx, tx, &row)
	if err != nil {
		return Result{}, err
	}

	return Result{Transaction: row, Wallet: w}, nil
}

// Release takes held money off the holder and, when ToUserID is set, makes
// it available to the counterparty.
func (s *Service) Release(ctx context.Context, p ReleaseParams) (Result, error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) (Result, error) { return s.ReleaseTx(ctx, tx, p) })
}

func (s *Service) ReleaseTx(ctx context.Context, tx *sqlx.Tx, p ReleaseParams) (Result, error) {
	if p.Type == "" {
		p.Type = models.TxRelease
	}

	res, err := s.release(ctx, tx, p)
	observe("release", res, err)

	if err != nil {
		return Result{}, fmt.Errorf("release: %w", err)
	}

	return res, nil
}

func (s *Service) release(ctx context.Context, tx *sqlx.Tx, p ReleaseParams) (Result, error) {
	err := validate(p.FromUserID, p.ReferenceID, p.Amount)
	if err != nil {
		return Result{}, err
	}

	if p.FromUserID == p.ToUserID {
		return Result{}, fmt.Errorf("release to holder: %w", models.ErrInvalidRequest)
	}

	locked, err := s.lockWallets(ctx, tx, p.FromUserID, p.ToUserID)
	if err != nil {
		return Result{}, err
	}

	prior, found, err := s.findPrior(ctx, tx, p.FromUserID, p.Type, p.ReferenceID)
	if err != nil {
		return Result{}, err
	}

	if found {
		res := Result{Transaction: prior, Wallet: locked[p.FromUserID], Replayed: true}

		if p.ToUserID != "" {
			counter, ok, err := s.findPrior(ctx, tx, p.ToUserID, p.Type, p.ReferenceID)
			if err != nil {
				return Result{}, err
			}

			if ok {
				res.Counterpart = &counter
			}
		}

		return res, nil
	}

	if locked[p.FromUserID].BalanceHeld < p.Amount {
		return Result{}, fmt.Errorf("held %d, need %d: %w",
			locked[p.FromUserID].BalanceHeld, p.Amount, models.ErrInsufficientHeldFunds)
	}

	w, err := s.apply(ctx, tx, p.FromUserID, 0, -p.Amount)
	if err != nil {
		return Result{}, err
	}

	row := newRow(p.FromUserID, p.Type, p.Amount, models.TxSuccess, p.ReferenceID, p.Meta)
	row.HeldDelta = -p.Amount

	if p.ToUserID != "" {
		row.Meta = merge(row.Meta, models.Meta{"to_user_id": p.ToUserID})
	}

	err = s.insert(ctx, tx, &row)
	if err != nil {
		return Result{}, err
	}

	res := Result{Transaction: row, Wallet: w}

	if p.ToUserID == "" {
		return res, nil
	}

	_, err = s.apply(ctx, tx, p.ToUserID, p.Amount, 0)
	if err != nil {
		return Result{}, err
	}

	counter := newRow(p.ToUserID, p.Type, p.Amount, models.TxSuccess, p.ReferenceID,
		merge(p.Meta, models.Meta{"from_user_id": p.FromUserID}))
	counter.AvailableDelta = p.Amount

	err = s.insert(ctx, tx, &counter)
	if err != nil {
		return Result{}, err
	}

	res.Counterpart = &counter

	return res, nil
}

// Refund returns held money to the same user's available balance.
func (s *Service) Refund(ctx context.Context, p RefundParams) (Result, error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) (Result, error) { return s.RefundTx(ctx, tx, p) })
}

func (s *Service) RefundTx(ctx context.Context, tx *sqlx.Tx, p RefundParams) (Result, error) {
	if p.Type == "" {
		p.Type = models.TxRefund
	}

	res, err := s.refund(ctx, tx, p)
	observe("refund", res, err)

	if err != nil {
		return Result{}, fmt.Errorf("refund: %w", err)
	}

	return res, nil
}

func (s *Service) refund(ctx context.Context, tx *sqlx.Tx, p RefundParams) (Result, error) {
	err := validate(p.UserID, p.ReferenceID, p.Amount)
	if err != nil {
		return Result{}, err
	}

	locked, err := s.lockWallets(ctx, tx, p.UserID)
	if err != nil {
		return Result{}, err
	}

	prior, found, err := s.findPrior(ctx, tx, p.UserID, p.Type, p.ReferenceID)
	if err != nil {
		return Result{}, err
	}

	if found {
		return Result{Transaction: prior, Wallet: locked[p.UserID], Replayed: true}, nil
	}

	if locked[p.UserID].BalanceHeld < p.Amount {
		return Result{}, fmt.Errorf("held %d, need %d: %w",
			locked[p.UserID].BalanceHeld, p.Amount, models.ErrInsufficientHeldFunds)
	}

	w, err := s.apply(ctx, tx, p.UserID, p.Amount, -p.Amount)
	if err != nil {
		return Result{}, err
	}

	row := newRow(p.UserID, p.Type, p.Amount, models.TxSuccess, p.ReferenceID, p.Meta)
	row.AvailableDelta = p.Amount
	row.HeldDelta = -p.Amount

	err = s.insert(ctx, tx, &row)
	if err != nil {
		return Result{}, err
	}

	return Result{Transaction: row, Wallet: w}, nil
}

// NoteTx writes a SUCCESS row that records a step without moving money.
func (s *Service) NoteTx(ctx context.Context, tx *sqlx.Tx, p NoteParams) (Result, error) {
	err := validate(p.UserID, p.ReferenceID, p.Amount)
	if err != nil {
		return Result{}, fmt.Errorf("note: %w", err)
	}

	if p.Type == "" {
		return Result{}, fmt.Errorf("note: type required: %w", models.ErrInvalidRequest)
	}

	locked, err := s.lockWallets(ctx, tx, p.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("note: %w", err)
	}

	prior, found, err := s.findPrior(ctx, tx, p.UserID, p.Type, p.ReferenceID)
	if err != nil {
		return Result{}, fmt.Errorf("note: %w", err)
	}

	if found {
		return Result{Transaction: prior, Wallet: locked[p.UserID], Replayed: true}, nil
	}

	row := newRow(p.UserID, p.Type, p.Amount, models.TxSuccess, p.ReferenceID, p.Meta)

	err = s.insert(ctx, tx, &row)
	if err != nil {
		return Result{}, fmt.Errorf("note: %w", err)
	}

	return Result{Transaction: row, Wallet: locked[p.UserID]}, nil
}

func (s *Service) findPrior(
	ctx context.Context,
	tx *sqlx.Tx,
	userID string,
	typ models.TxType,
	referenceID string,
) (models.WalletTransaction, bool, error) {
	prior, err := s.txns.FindByReference(ctx, tx, userID, typ, referenceID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.WalletTransaction{}, false, nil
		}

		return models.WalletTransaction{}, false, err
	}

	s.log.Debug("idempotent replay",
		zap.String("user_id", userID),
		zap.String("type", string(typ)),
		zap.String("reference_id", referenceID),
	)

	return prior, true, nil
}

func (s *Service) apply(ctx context.Context, tx *sqlx.Tx, userID string, availableDelta, heldDelta int64) (models.Wallet, error) {
	w, err := s.wallets.Apply(ctx, tx, userID, availableDelta, heldDelta)
	if err != nil {
		if errors.Is(err, wallets.ErrNegativeBalance) {
			s.log.Error("balance guard tripped after pre-check",
				zap.String("user_id", userID),
				zap.Int64("available_delta", availableDelta),
				zap.Int64("held_delta", heldDelta),
			)

			if availableDelta < 0 {
				return models.Wallet{}, fmt.Errorf("%w: %w", models.ErrInsufficientFunds, err)
			}

			return models.Wallet{}, fmt.Errorf("%w: %w", models.ErrInsufficientHeldFunds, err)
		}

		return models.Wallet{}, err
	}

	return w, nil
}

// insert runs after findPrior under the wallet lock, so a duplicate key here
// means a writer bypassed the lock.
func (s *Service) insert(ctx context.Context, tx *sqlx.Tx, row *models.WalletTransaction) error {
	err := s.txns.Insert(ctx, tx, row)
	if err != nil {
		if errors.Is(err, transactions.ErrDuplicateTransaction) {
			return fmt.Errorf("%s %s for %s: %w", row.Type, row.ReferenceID, row.UserID, err)
		}

		return err
	}

	return nil
}

func newRow(
	userID string,
	typ models.TxType,
	amount int64,
	status models.TxStatus,
	referenceID string,
	meta models.Meta,
) models.WalletTransaction {
	return models.WalletTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        typ,
		Amount:      amount,
		Status:      status,
		Provider:    ProviderInternal,
		ReferenceID: referenceID,
		Meta:        merge(nil, meta),
	}
}

func validate(userID, referenceID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount %d: %w", amount, models.ErrInvalidAmount)
	}

	if userID == "" {
		return fmt.Errorf("user id required: %w", models.ErrInvalidRequest)
	}

	if referenceID == "" {
		return fmt.Errorf("reference id required: %w", models.ErrInvalidRequest)
	}

	return nil
}

func merge(base, extra models.Meta) models.Meta {
	out := make(models.Meta, len(base)+len(extra))

	for k, v := range base {
		out[k] = v
	}

	for k, v := range extra {
		out[k] = v
	}

	return out
}

func observe(op string, res Result, err error) {
	switch {
	case err != nil:
		metrics.LedgerOperations.WithLabelValues(op, metrics.ResultError).Inc()
	case res.Replayed:
		metrics.LedgerOperations.WithLabelValues(op, metrics.ResultReplayed).Inc()
	default:
		metrics.LedgerOperations.WithLabelValues(op, metrics.ResultOK).Inc()
	}
}
