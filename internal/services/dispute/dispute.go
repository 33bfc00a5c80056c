// Package dispute adjudicates contested orders. Opening a dispute freezes
// the escrow; resolving it splits the held amount between buyer and seller.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/audit"
	pgaudit "github.com/ottkdev/standoff2com-sub001/internal/repos/audit/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/disputes"
	pgdisputes "github.com/ottkdev/standoff2com-sub001/internal/repos/disputes/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/services/order"
)

const entityType = "dispute"

type OpenParams struct {
	OrderID  string
	OpenerID string
	Reason   string
	Note     string
}

type ResolveParams struct {
	DisputeID     string
	AdjudicatorID string
	Resolution    models.Resolution
	// BuyerAmount and SellerAmount are only read for PARTIAL.
	BuyerAmount  int64
	SellerAmount int64
	Note         string
}

type Service struct {
	db       *sqlx.DB
	orders   *order.Service
	disputes disputes.Disputes
	audit    audit.Audit
	notifier notify.Notifier
	log      *zap.Logger
}

func New(db *sqlx.DB, orders *order.Service, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{
		db:       db,
		orders:   orders,
		disputes: pgdisputes.New(),
		audit:    pgaudit.New(),
		notifier: notifier,
		log:      log.Named("dispute"),
	}
}

func (s *Service) OpenDispute(ctx context.Context, p OpenParams) (models.Dispute, error) {
	p.Reason = strings.TrimSpace(p.Reason)
	if p.Reason == "" {
		return models.Dispute{}, fmt.Errorf("open dispute: reason is required: %w", models.ErrInvalidRequest)
	}

	var (
		d models.Dispute
		o models.Order
	)

	err := pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error

		o, err = s.orders.LockTx(ctx, tx, p.OrderID)
		if err != nil {
			return err
		}

		if !o.IsParty(p.OpenerID) {
			return fmt.Errorf("only buyer or seller may dispute: %w", models.ErrForbidden)
		}

		err = s.orders.DisputeTx(ctx, tx, &o)
		if err != nil {
			return err
		}

		d = models.Dispute{
			ID:       uuid.NewString(),
			OrderID:  o.ID,
			OpenedBy: p.OpenerID,
			Reason:   p.Reason,
			Note:     p.Note,
			Status:   models.DisputeOpen,
		}

		err = s.disputes.Create(ctx, tx, &d)
		if err != nil {
			if errors.Is(err, disputes.ErrDisputeExists) {
				return fmt.Errorf("order %s: %w", o.ID, models.ErrInvalidOrderState)
			}

			return err
		}

		return s.audit.Insert(ctx, tx, models.AuditEntry{
			ActorID:    p.OpenerID,
			Action:     models.AuditDisputeOpened,
			EntityType: entityType,
			EntityID:   d.ID,
			Meta:       models.Meta{"order_id": o.ID, "reason": d.Reason},
		})
	})
	if err != nil {
		return models.Dispute{}, fmt.Errorf("open dispute: %w", err)
	}

	s.log.Info("dispute opened",
		zap.String("dispute_id", d.ID),
		zap.String("order_id", d.OrderID),
		zap.String("opened_by", d.OpenedBy),
	)

	s.notifier.Notify(ctx, models.Notification{
		UserID:  o.Counterparty(p.OpenerID),
		Kind:    models.NotifyDisputeOpened,
		Title:   "Order disputed",
		Content: "A dispute was opened on your order. Payment is on hold until it is resolved.",
		URL:     disputeURL(d.ID),
	})

	return d, nil
}

// Split computes how the escrow of an order of the given amount is divided.
func Split(resolution models.Resolution, amount, buyerAmount, sellerAmount int64) (models.Split, error) {
	switch resolution {
	case models.ResolutionRefundBuyer:
		return models.Split{BuyerAmount: amount}, nil
	case models.ResolutionReleaseSeller:
		return models.Split{SellerAmount: amount}, nil
	case models.ResolutionPartial:
		if buyerAmount < 0 || sellerAmount < 0 || buyerAmount+sellerAmount != amount {
			return models.Split{}, fmt.Errorf("%d + %d != %d: %w", buyerAmount, sellerAmount, amount, models.ErrInvalidSplit)
		}

		return models.Split{BuyerAmount: buyerAmount, SellerAmount: sellerAmount}, nil
	default:
		return models.Split{}, fmt.Errorf("%q: %w", resolution, models.ErrInvalidResolution)
	}
}

func (s *Service) ResolveDispute(ctx context.Context, p ResolveParams) (models.Dispute, error) {
	if !p.Resolution.Valid() {
		return models.Dispute{}, fmt.Errorf("resolve dispute: %q: %w", p.Resolution, models.ErrInvalidResolution)
	}

	current, err := s.disputes.Get(ctx, s.db, p.DisputeID)
	if err != nil {
		return models.Dispute{}, fmt.Errorf("resolve dispute: %w", err)
	}

	var (
		d models.Dispute
		o models.Order
	)

	// order row first, same as OpenDispute
	err = pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error

		o, err = s.orders.LockTx(ctx, tx, current.OrderID)
		if err != nil {
			return err
		}

		d, err = s.disputes.LockForUpdate(ctx, tx, p.DisputeID)
		if err != nil {
			return err
		}

		if d.Status != models.DisputeOpen {
			return models.ErrDisputeAlreadyResolved
		}

		split, err := Split(p.Resolution, o.Amount, p.BuyerAmount, p.SellerAmount)
		if err != nil {
			return err
		}

		err = s.orders.SettleDisputeTx(ctx, tx, &o, split)
		if err != nil {
			return err
		}

		resolution := p.Resolution
		adjudicator := p.AdjudicatorID

		d.Resolution = &resolution
		d.BuyerAmount = split.BuyerAmount
		d.SellerAmount = split.SellerAmount
		d.ResolvedBy = &adjudicator
		d.ResolutionNote = p.Note

		err = s.disputes.Resolve(ctx, tx, &d)
		if err != nil {
			return err
		}

		return s.audit.Insert(ctx, tx, models.AuditEntry{
			ActorID:    p.AdjudicatorID,
			Action:     models.AuditDisputeResolved,
			EntityType: entityType,
			EntityID:   d.ID,
			Meta: models.Meta{
				"order_id":      o.ID,
				"resolution":    string(resolution),
				"buyer_amount":  split.BuyerAmount,
				"seller_amount": split.SellerAmount,
				"order_status":  string(o.Status),
			},
		})
	})
	if err != nil {
		return models.Dispute{}, fmt.Errorf("resolve dispute: %w", err)
	}

	s.log.Info("dispute resolved",
		zap.String("dispute_id", d.ID),
		zap.String("order_id", o.ID),
		zap.String("resolution", string(p.Resolution)),
		zap.Int64("buyer_amount", d.BuyerAmount),
		zap.Int64("seller_amount", d.SellerAmount),
	)

	for _, userID := range []string{o.BuyerID, o.SellerID} {
		s.notifier.Notify(ctx, models.Notification{
			UserID:  userID,
			Kind:    models.NotifyDisputeResolved,
			Title:   "Dispute resolved",
			Content: fmt.Sprintf("Buyer receives %s, seller receives %s.", models.FormatAmount(d.BuyerAmount), models.FormatAmount(d.SellerAmount)),
			URL:     disputeURL(d.ID),
		})
	}

	return d, nil
}

// GetDispute returns the dispute to a party of its order.
func (s *Service) GetDispute(ctx context.Context, disputeID, userID string) (models.Dispute, error) {
	d, err := s.disputes.Get(ctx, s.db, disputeID)
	if err != nil {
		return models.Dispute{}, fmt.Errorf("get dispute: %w", err)
	}

	_, err = s.orders.GetOrder(ctx, d.OrderID, userID)
	if err != nil {
		return models.Dispute{}, fmt.Errorf("get dispute: %w", err)
	}

	return d, nil
}

func disputeURL(id string) string {
	return "/disputes/" + id
}
