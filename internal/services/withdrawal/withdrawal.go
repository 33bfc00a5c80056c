// Package withdrawal moves money off the platform through an admin-reviewed
// payout queue.
//
//	PENDING  --approve-->  APPROVED --paid--> PAID
//	PENDING | APPROVED --reject--> REJECTED
//	PENDING  --cancel-->   CANCELLED
//
// The amount is held when the request is made. Reject and cancel refund the
// hold, paid releases it off the platform.
package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/audit"
	pgaudit "github.com/ottkdev/standoff2com-sub001/internal/repos/audit/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/withdrawals"
	pgwithdrawals "github.com/ottkdev/standoff2com-sub001/internal/repos/withdrawals/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/services/wallet"
)

const (
	entityType = "withdrawal"

	defaultMaxPending = 2
	maxListLimit      = 200
)

type RequestParams struct {
	UserID      string
	Amount      int64
	IBAN        string
	AccountName string
}

type Service struct {
	db          *sqlx.DB
	ledger      *wallet.Service
	withdrawals withdrawals.Withdrawals
	audit       audit.Audit
	notifier    notify.Notifier
	minAmount   int64
	maxPending  int
	now         func() time.Time
	log         *zap.Logger
}

func New(ledger *wallet.Service, notifier notify.Notifier, cfg config.LedgerConfig, log *zap.Logger) *Service {
	s := &Service{
		db:          ledger.DB(),
		ledger:      ledger,
		withdrawals: pgwithdrawals.New(),
		audit:       pgaudit.New(),
		notifier:    notifier,
		minAmount:   cfg.WithdrawMinAmount,
		maxPending:  cfg.WithdrawMaxPending,
		now:         time.Now,
		log:         log.Named("withdrawal"),
	}

	if s.maxPending <= 0 {
		s.maxPending = defaultMaxPending
	}

	return s
}

// RequestWithdrawal holds the amount and queues the request for review.
func (s *Service) RequestWithdrawal(ctx context.Context, p RequestParams) (models.WithdrawalRequest, error) {
	if p.Amount <= 0 {
		return models.WithdrawalRequest{}, fmt.Errorf("request withdrawal: %w", models.ErrInvalidAmount)
	}

	if p.Amount < s.minAmount {
		return models.WithdrawalRequest{}, fmt.Errorf("request withdrawal: minimum is %s: %w",
			models.FormatAmount(s.minAmount), models.ErrBelowMinimum)
	}

	iban := NormalizeIBAN(p.IBAN)

	err := ValidateIBAN(iban)
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("request withdrawal: %w", err)
	}

	name := strings.TrimSpace(p.AccountName)
	if name == "" {
		return models.WithdrawalRequest{}, fmt.Errorf("request withdrawal: account name is required: %w", models.ErrInvalidRequest)
	}

	w := models.WithdrawalRequest{
		UserID:      p.UserID,
		Amount:      p.Amount,
		IBAN:        iban,
		AccountName: name,
		Status:      models.WithdrawalPending,
	}

	err = pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := s.ledger.LockTx(ctx, tx, p.UserID)
		if err != nil {
			return err
		}

		pending, err := s.withdrawals.CountByStatus(ctx, tx, p.UserID, models.WithdrawalPending)
		if err != nil {
			return err
		}

		// maxPending bounds the other PENDING requests, not counting this one
		if pending > s.maxPending {
			return fmt.Errorf("%d pending: %w", pending, models.ErrTooManyPendingRequests)
		}

		w.ID = uuid.NewString()

		err = s.withdrawals.Create(ctx, tx, &w)
		if err != nil {
			return err
		}

		_, err = s.ledger.HoldTx(ctx, tx, wallet.HoldParams{
			UserID:      p.UserID,
			Amount:      p.Amount,
			Type:        models.TxWithdrawRequest,
			Status:      models.TxPending,
			ReferenceID: w.ID,
			Meta:        models.Meta{"iban": maskIBAN(iban)},
		})
		if err != nil {
			return err
		}

		return s.audit.Insert(ctx, tx, models.AuditEntry{
			ActorID:    p.UserID,
			Action:     models.AuditWithdrawalRequested,
			EntityType: entityType,
			EntityID:   w.ID,
			Meta:       models.Meta{"amount": w.Amount},
		})
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("request withdrawal: %w", err)
	}

	s.log.Info("withdrawal requested",
		zap.String("withdrawal_id", w.ID),
		zap.String("user_id", w.UserID),
		zap.Int64("amount", w.Amount),
	)

	s.notifier.Notify(ctx, models.Notification{
		UserID:  w.UserID,
		Kind:    models.NotifyWithdrawalRequest,
		Title:   "Withdrawal requested",
		Content: fmt.Sprintf("Your withdrawal of %s is waiting for review.", models.FormatAmount(w.Amount)),
		URL:     withdrawalURL(w.ID),
	})

	return w, nil
}

// Approve marks a PENDING request as accepted for payout.
func (s *Service) Approve(ctx context.Context, requestID, adminID string) (models.WithdrawalRequest, error) {
	w, err := s.transition(ctx, requestID, func(tx *sqlx.Tx, w *models.WithdrawalRequest) error {
		if w.Status != models.WithdrawalPending {
			return fmt.Errorf("approve %s request: %w", w.Status, models.ErrInvalidWithdrawalState)
		}

		_, err := s.ledger.NoteTx(ctx, tx, wallet.NoteParams{
			UserID:      w.UserID,
			Amount:      w.Amount,
			Type:        models.TxWithdrawApproved,
			ReferenceID: w.ID,
			Meta:        models.Meta{"admin_id": adminID},
		})
		if err != nil {
			return err
		}

		s.review(w, models.WithdrawalApproved, adminID)

		return s.record(ctx, tx, w, adminID, models.AuditWithdrawalApproved, nil)
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("approve withdrawal: %w", err)
	}

	return w, nil
}

// Reject returns the held amount to the user.
func (s *Service) Reject(ctx context.Context, requestID, adminID, reason string) (models.WithdrawalRequest, error) {
	reason = strings.TrimSpace(reason)

	w, err := s.transition(ctx, requestID, func(tx *sqlx.Tx, w *models.WithdrawalRequest) error {
		if w.Status != models.WithdrawalPending && w.Status != models.WithdrawalApproved {
			return fmt.Errorf("reject %s request: %w", w.Status, models.ErrInvalidWithdrawalState)
		}

		err := s.returnHold(ctx, tx, w, models.TxWithdrawRejected, models.Meta{"reason": reason})
		if err != nil {
			return err
		}

		s.review(w, models.WithdrawalRejected, adminID)
		w.RejectReason = reason

		return s.record(ctx, tx, w, adminID, models.AuditWithdrawalRejected, models.Meta{"reason": reason})
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("reject withdrawal: %w", err)
	}

	content := fmt.Sprintf("Your withdrawal of %s was rejected and the amount is back in your wallet.", models.FormatAmount(w.Amount))
	if reason != "" {
		content += " Reason: " + reason
	}

	s.notifier.Notify(ctx, models.Notification{
		UserID:  w.UserID,
		Kind:    models.NotifyWithdrawalRejected,
		Title:   "Withdrawal rejected",
		Content: content,
		URL:     withdrawalURL(w.ID),
	})

	return w, nil
}

// MarkPaid records that the bank transfer went out.
func (s *Service) MarkPaid(ctx context.Context, requestID, adminID string) (models.WithdrawalRequest, error) {
	w, err := s.transition(ctx, requestID, func(tx *sqlx.Tx, w *models.WithdrawalRequest) error {
		if w.Status != models.WithdrawalPending && w.Status != models.WithdrawalApproved {
			return fmt.Errorf("pay %s request: %w", w.Status, models.ErrInvalidWithdrawalState)
		}

		_, err := s.ledger.ResolvePendingTx(ctx, tx, w.UserID, w.ID, models.TxSuccess)
		if err != nil {
			return err
		}

		_, err = s.ledger.ReleaseTx(ctx, tx, wallet.ReleaseParams{
			FromUserID:  w.UserID,
			Amount:      w.Amount,
			Type:        models.TxWithdrawPaid,
			ReferenceID: w.ID,
			Meta:        models.Meta{"admin_id": adminID, "iban": maskIBAN(w.IBAN)},
		})
		if err != nil {
			return err
		}

		from := w.Status
		s.review(w, models.WithdrawalPaid, adminID)

		paidAt := s.now().UTC()
		w.PaidAt = &paidAt

		return s.record(ctx, tx, w, adminID, models.AuditWithdrawalPaid, models.Meta{"from": string(from)})
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("mark withdrawal paid: %w", err)
	}

	s.notifier.Notify(ctx, models.Notification{
		UserID:  w.UserID,
		Kind:    models.NotifyWithdrawalPaid,
		Title:   "Withdrawal paid",
		Content: fmt.Sprintf("%s was sent to %s.", models.FormatAmount(w.Amount), maskIBAN(w.IBAN)),
		URL:     withdrawalURL(w.ID),
	})

	return w, nil
}

// Cancel lets the owner withdraw a request nobody has reviewed yet.
func (s *Service) Cancel(ctx context.Context, requestID, userID string) (models.WithdrawalRequest, error) {
	w, err := s.transition(ctx, requestID, func(tx *sqlx.Tx, w *models.WithdrawalRequest) error {
		if w.UserID != userID {
			return fmt.Errorf("cancel withdrawal of another user: %w", models.ErrForbidden)
		}

		if w.Status != models.WithdrawalPending {
			return fmt.Errorf("cancel %s request: %w", w.Status, models.ErrInvalidWithdrawalState)
		}

		err := s.returnHold(ctx, tx, w, models.TxRefund, models.Meta{"cancelled_by": userID})
		if err != nil {
			return err
		}

		w.Status = models.WithdrawalCancelled

		return s.record(ctx, tx, w, userID, models.AuditWithdrawalCancelled, nil)
	})
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("cancel withdrawal: %w", err)
	}

	return w, nil
}

// Get returns the request to its owner.
func (s *Service) Get(ctx context.Context, requestID, userID string) (models.WithdrawalRequest, error) {
	w, err := s.withdrawals.Get(ctx, s.db, requestID)
	if err != nil {
		return models.WithdrawalRequest{}, fmt.Errorf("get withdrawal: %w", err)
	}

	if w.UserID != userID {
		return models.WithdrawalRequest{}, fmt.Errorf("get withdrawal: %w", models.ErrNotFound)
	}

	return w, nil
}

// List is the admin review queue. An empty status lists everything.
func (s *Service) List(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	out, err := s.withdrawals.List(ctx, s.db, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}

	return out, nil
}

// transition locks the request, lets fn mutate it and persists the result
// guarded by the status read under the lock.
func (s *Service) transition(
	ctx context.Context,
	requestID string,
	fn func(tx *sqlx.Tx, w *models.WithdrawalRequest) error,
) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest

	err := pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error

		w, err = s.withdrawals.LockForUpdate(ctx, tx, requestID)
		if err != nil {
			return err
		}

		from := w.Status

		err = fn(tx, &w)
		if err != nil {
			return err
		}

		return s.withdrawals.Update(ctx, tx, &w, from)
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	s.log.Info("withdrawal updated",
		zap.String("withdrawal_id", w.ID),
		zap.String("status", string(w.Status)),
	)

	return w, nil
}

// returnHold closes the WITHDRAW_REQUEST row and refunds it with a row of
// type typ.
func (s *Service) returnHold(ctx context.Context, tx *sqlx.Tx, w *models.WithdrawalRequest, typ models.TxType, meta models.Meta) error {
	_, err := s.ledger.ResolvePendingTx(ctx, tx, w.UserID, w.ID, models.TxCancelled)
	if err != nil {
		return err
	}

	_, err = s.ledger.RefundTx(ctx, tx, wallet.RefundParams{
		UserID:      w.UserID,
		Amount:      w.Amount,
		Type:        typ,
		ReferenceID: w.ID,
		Meta:        meta,
	})

	return err
}

func (s *Service) review(w *models.WithdrawalRequest, to models.WithdrawalStatus, adminID string) {
	now := s.now().UTC()

	w.Status = to
	w.ReviewedBy = &adminID
	w.ReviewedAt = &now
}

func (s *Service) record(
	ctx context.Context,
	tx *sqlx.Tx,
	w *models.WithdrawalRequest,
	actorID string,
	action models.AuditAction,
	meta models.Meta,
) error {
	if meta == nil {
		meta = models.Meta{}
	}

	meta["amount"] = w.Amount

	return s.audit.Insert(ctx, tx, models.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   w.ID,
		Meta:       meta,
	})
}

// maskIBAN keeps the country code and the last four characters.
func maskIBAN(iban string) string {
	if len(iban) <= 6 {
		return iban
	}

	return iban[:2] + strings.Repeat("*", len(iban)-6) + iban[len(iban)-4:]
}

func withdrawalURL(id string) string {
	return "/withdrawals/" + id
}
