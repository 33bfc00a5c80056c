// Package deposit initiates PayTR top-ups and reconciles the gateway
// callback against the ledger.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/metrics"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/audit"
	pgaudit "github.com/ottkdev/standoff2com-sub001/internal/repos/audit/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/deposits"
	pgdeposits "github.com/ottkdev/standoff2com-sub001/internal/repos/deposits/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/services/paytr"
	"github.com/ottkdev/standoff2com-sub001/internal/services/wallet"
)

const (
	Provider = "paytr"

	merchantOIDPrefix = "DEP"

	ReasonAmountMismatch = "amount_mismatch"
	ReasonGatewayFailed  = "gateway_failed"
)

// Outcome is how a callback was handled.
type Outcome string

const (
	OutcomeCredited         Outcome = "credited"
	OutcomeFailed           Outcome = "failed"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// Publisher pushes deposit updates to live clients.
type Publisher interface {
	PublishDeposit(ctx context.Context, d models.Deposit) error
}

type InitParams struct {
	UserID    string
	NetAmount int64
	UserIP    string
	Email     string
}

type InitResult struct {
	Deposit  models.Deposit
	TokenURL string
	Form     url.Values
}

type Service struct {
	db       *sqlx.DB
	ledger   *wallet.Service
	gateway  *paytr.Service
	deposits deposits.Deposits
	audit    audit.Audit
	feed     Publisher
	notifier notify.Notifier
	cfg      config.LedgerConfig
	log      *zap.Logger
}

func New(
	ledger *wallet.Service,
	gateway *paytr.Service,
	feed Publisher,
	notifier notify.Notifier,
	cfg config.LedgerConfig,
	log *zap.Logger,
) *Service {
	return &Service{
		db:       ledger.DB(),
		ledger:   ledger,
		gateway:  gateway,
		deposits: pgdeposits.New(),
		audit:    pgaudit.New(),
		feed:     feed,
		notifier: notifier,
		cfg:      cfg,
		log:      log.Named("deposit"),
	}
}

// Fee is ceil(net * bps / 10000).
func Fee(net, bps int64) int64 {
	if bps <= 0 {
		return 0
	}

	return (net*bps + 9_999) / 10_000
}

// NewMerchantOID returns a gateway order id. PayTR accepts alphanumerics only.
func NewMerchantOID() string {
	return merchantOIDPrefix + ulid.Make().String()
}

// InitDeposit records a PENDING deposit with its pending ledger rows and
// returns the signed PayTR form for the client.
func (s *Service) InitDeposit(ctx context.Context, p InitParams) (InitResult, error) {
	if p.NetAmount <= 0 {
		return InitResult{}, fmt.Errorf("init deposit: %w", models.ErrInvalidAmount)
	}

	if p.NetAmount < s.cfg.DepositMinAmount {
		return InitResult{}, fmt.Errorf("init deposit: %d < %d: %w", p.NetAmount, s.cfg.DepositMinAmount, models.ErrBelowMinimum)
	}

	fee := Fee(p.NetAmount, s.cfg.DepositFeeBps)
	d := models.Deposit{
		ID:                 uuid.NewString(),
		UserID:             p.UserID,
		GrossAmount:        p.NetAmount + fee,
		NetCreditAmount:    p.NetAmount,
		FeeAmount:          fee,
		Status:             models.DepositPending,
		GatewayMerchantOID: NewMerchantOID(),
		GatewayResponse:    models.Meta{},
	}

	err := pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := s.deposits.Create(ctx, tx, &d)
		if err != nil {
			return err
		}

		meta := models.Meta{"merchant_oid": d.GatewayMerchantOID}
		entries := []wallet.PendingEntry{{
			UserID: d.UserID, Amount: d.NetCreditAmount, Type: models.TxDeposit,
			Provider: Provider, ReferenceID: d.ID, Meta: meta,
		}}

		if fee > 0 {
			entries = append(entries, wallet.PendingEntry{
				UserID: d.UserID, Amount: fee, Type: models.TxDepositFee,
				Provider: Provider, ReferenceID: d.ID, Meta: meta,
			})
		}

		_, err = s.ledger.RecordPendingTx(ctx, tx, entries...)
		if err != nil {
			return err
		}

		return s.audit.Insert(ctx, tx, models.AuditEntry{
			ActorID:    d.UserID,
			Action:     models.AuditDepositInitiated,
			EntityType: "deposit",
			EntityID:   d.ID,
			Meta:       models.Meta{"gross": d.GrossAmount, "net": d.NetCreditAmount, "fee": d.FeeAmount},
		})
	})
	if err != nil {
		return InitResult{}, fmt.Errorf("init deposit: %w", err)
	}

	form, err := s.gateway.PaymentForm(paytr.TokenRequest{
		MerchantOID:   d.GatewayMerchantOID,
		UserIP:        p.UserIP,
		Email:         p.Email,
		PaymentAmount: d.GrossAmount,
		Basket:        []paytr.BasketItem{{Name: "Wallet top-up", Price: d.GrossAmount, Quantity: 1}},
		NoInstallment: true,
	})
	if err != nil {
		return InitResult{}, fmt.Errorf("init deposit: %w", err)
	}

	s.log.Info("deposit initiated",
		zap.String("deposit_id", d.ID),
		zap.String("user_id", d.UserID),
		zap.String("merchant_oid", d.GatewayMerchantOID),
		zap.Int64("gross", d.GrossAmount),
	)

	return InitResult{Deposit: d, TokenURL: s.gateway.TokenURL(), Form: form}, nil
}

// HandleCallback authenticates and applies a gateway callback. Replays of a
// settled deposit are no-ops reported as OutcomeAlreadyProcessed.
func (s *Service) HandleCallback(ctx context.Context, cb paytr.Callback) (Outcome, error) {
	err := s.gateway.VerifyCallback(cb)
	if err != nil {
		metrics.WebhookOutcomes.WithLabelValues("bad_hash").Inc()
		return "", err
	}

	var (
		d       models.Deposit
		outcome Outcome
	)

	err = pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error

		d, err = s.deposits.LockByMerchantOID(ctx, tx, cb.MerchantOID)
		if err != nil {
			return err
		}

		if d.Status.Terminal() {
			outcome = OutcomeAlreadyProcessed
			return nil
		}

		outcome, err = s.settle(ctx, tx, &d, cb)

		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			metrics.WebhookOutcomes.WithLabelValues("not_found").Inc()
		} else {
			metrics.WebhookOutcomes.WithLabelValues("error").Inc()
		}

		return "", fmt.Errorf("handle callback %s: %w", cb.MerchantOID, err)
	}

	metrics.WebhookOutcomes.WithLabelValues(string(outcome)).Inc()

	if outcome == OutcomeAlreadyProcessed {
		s.log.Info("duplicate callback ignored",
			zap.String("merchant_oid", cb.MerchantOID),
			zap.String("status", string(d.Status)),
		)

		return outcome, nil
	}

	s.afterSettle(ctx, d, outcome)

	return outcome, nil
}

func (s *Service) settle(ctx context.Context, tx *sqlx.Tx, d *models.Deposit, cb paytr.Callback) (Outcome, error) {
	d.GatewayResponse = cb.Meta()

	var outcome Outcome

	switch {
	case cb.Succeeded() && cb.TotalAmount != d.GrossAmount:
		outcome = OutcomeAmountMismatch
		d.Status = models.DepositFailed
		d.FailureReason = ReasonAmountMismatch

		s.log.Warn("deposit amount mismatch",
			zap.String("deposit_id", d.ID),
			zap.Int64("expected", d.GrossAmount),
			zap.Int64("reported", cb.TotalAmount),
		)
	case cb.Succeeded():
		outcome = OutcomeCredited
		d.Status = models.DepositSuccess
	default:
		outcome = OutcomeFailed
		d.Status = models.DepositFailed
		d.FailureReason = ReasonGatewayFailed

		if cb.FailedReasonMsg != "" {
			d.FailureReason = cb.FailedReasonMsg
		}
	}

	err := s.deposits.MarkResult(ctx, tx, d)
	if err != nil {
		return "", err
	}

	action := models.AuditDepositFailed

	if d.Status == models.DepositSuccess {
		action = models.AuditDepositSucceeded

		_, err = s.ledger.CreditTx(ctx, tx, wallet.CreditParams{
			UserID:      d.UserID,
			Amount:      d.NetCreditAmount,
			Type:        models.TxDeposit,
			Provider:    Provider,
			ReferenceID: d.ID,
			Meta:        models.Meta{"merchant_oid": d.GatewayMerchantOID},
		})
		if err != nil {
			return "", err
		}

		_, err = s.ledger.ResolvePendingTx(ctx, tx, d.UserID, d.ID, models.TxSuccess)
		if err != nil {
			return "", err
		}
	} else {
		_, err = s.ledger.ResolvePendingTx(ctx, tx, d.UserID, d.ID, models.TxFailed)
		if err != nil {
			return "", err
		}
	}

	err = s.audit.Insert(ctx, tx, models.AuditEntry{
		ActorID:    models.SystemActor,
		Action:     action,
		EntityType: "deposit",
		EntityID:   d.ID,
		Meta:       models.Meta{"outcome": string(outcome), "total_amount": cb.TotalAmount},
	})
	if err != nil {
		return "", err
	}

	return outcome, nil
}

func (s *Service) afterSettle(ctx context.Context, d models.Deposit, outcome Outcome) {
	err := s.feed.PublishDeposit(ctx, d)
	if err != nil {
		s.log.Warn("publish deposit update", zap.String("deposit_id", d.ID), zap.Error(err))
	}

	s.log.Info("deposit settled",
		zap.String("deposit_id", d.ID),
		zap.String("user_id", d.UserID),
		zap.String("outcome", string(outcome)),
	)

	if d.Status != models.DepositSuccess {
		return
	}

	s.notifier.Notify(ctx, models.Notification{
		UserID:  d.UserID,
		Kind:    models.NotifyDepositSucceeded,
		Title:   "Deposit received",
		Content: fmt.Sprintf("%s was added to your wallet.", models.FormatAmount(d.NetCreditAmount)),
		URL:     "/wallet",
	})
}

// GetDeposit returns the user's own deposit.
func (s *Service) GetDeposit(ctx context.Context, depositID, userID string) (models.Deposit, error) {
	d, err := s.deposits.Get(ctx, s.db, depositID)
	if err != nil {
		return models.Deposit{}, fmt.Errorf("get deposit: %w", err)
	}

	if d.UserID != userID {
		return models.Deposit{}, fmt.Errorf("get deposit %s: %w", depositID, models.ErrNotFound)
	}

	return d, nil
}
