// Package order runs the escrow state machine of marketplace purchases:
//
//	PENDING_DELIVERY --(buyer confirms receipt)--> COMPLETED
//	PENDING_DELIVERY --(either party disputes)-->  DISPUTED
//	PENDING_DELIVERY --(auto-release timeout)-->   COMPLETED
//	DISPUTED         --(adjudicator resolves)-->   COMPLETED | REFUNDED
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgutils"
	"github.com/ottkdev/standoff2com-sub001/internal/metrics"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/audit"
	pgaudit "github.com/ottkdev/standoff2com-sub001/internal/repos/audit/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/listings"
	pglistings "github.com/ottkdev/standoff2com-sub001/internal/repos/listings/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/orders"
	pgorders "github.com/ottkdev/standoff2com-sub001/internal/repos/orders/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/services/wallet"
)

const (
	entityType = "order"

	defaultAutoReleaseAfter = 72 * time.Hour
)

type Service struct {
	db       *sqlx.DB
	ledger   *wallet.Service
	listings listings.Listings
	orders   orders.Orders
	audit    audit.Audit
	notifier notify.Notifier
	after    time.Duration
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(ledger *wallet.Service, notifier notify.Notifier, cfg config.LedgerConfig, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:       ledger.DB(),
		ledger:   ledger,
		listings: pglistings.New(),
		orders:   pgorders.New(),
		audit:    pgaudit.New(),
		notifier: notifier,
		after:    cfg.OrderAutoReleaseAfter,
		now:      time.Now,
		log:      log.Named("order"),
	}

	if s.after <= 0 {
		s.after = defaultAutoReleaseAfter
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateOrder escrows the listing price from the buyer. The listing lock and
// the partial unique index together allow one open order per listing.
func (s *Service) CreateOrder(ctx context.Context, listingID, buyerID string) (models.Order, error) {
	var o models.Order

	err := pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		l, err := s.listings.LockForUpdate(ctx, tx, listingID)
		if err != nil {
			return err
		}

		if l.Status != models.ListingActive {
			return fmt.Errorf("listing %s is %s: %w", l.ID, l.Status, models.ErrListingUnavailable)
		}

		if l.SellerID == buyerID {
			return models.ErrSelfPurchase
		}

		open, err := s.orders.HasOpen(ctx, tx, l.ID)
		if err != nil {
			return err
		}

		if open {
			return fmt.Errorf("listing %s has an open order: %w", l.ID, models.ErrListingUnavailable)
		}

		now := s.now().UTC()
		o = models.Order{
			ID:            uuid.NewString(),
			ListingID:     l.ID,
			BuyerID:       buyerID,
			SellerID:      l.SellerID,
			Amount:        l.Price,
			Status:        models.OrderPendingDelivery,
			AutoReleaseAt: now.Add(s.after),
		}

		err = s.orders.Create(ctx, tx, &o)
		if err != nil {
			if errors.Is(err, orders.ErrOpenOrderExists) {
				return fmt.Errorf("listing %s: %w", l.ID, models.ErrListingUnavailable)
			}

			return err
		}

		_, err = s.ledger.HoldTx(ctx, tx, wallet.HoldParams{
			UserID:      buyerID,
			Amount:      o.Amount,
			ReferenceID: o.ID,
			Meta:        models.Meta{"listing_id": l.ID},
		})
		if err != nil {
			return err
		}

		return s.audit.Insert(ctx, tx, models.AuditEntry{
			ActorID:    buyerID,
			Action:     models.AuditOrderCreated,
			EntityType: entityType,
			EntityID:   o.ID,
			Meta:       models.Meta{"listing_id": l.ID, "amount": o.Amount},
		})
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("listing_id", o.ListingID),
		zap.String("buyer_id", o.BuyerID),
		zap.Int64("amount", o.Amount),
	)

	s.notifier.Notify(ctx, models.Notification{
		UserID:  o.SellerID,
		Kind:    models.NotifyOrderCreated,
		Title:   "New order",
		Content: fmt.Sprintf("Your listing was purchased for %s. Deliver to get paid.", models.FormatAmount(o.Amount)),
		URL:     orderURL(o.ID),
	})

	return o, nil
}

// ConfirmDelivery is the buyer releasing the escrow to the seller.
func (s *Service) ConfirmDelivery(ctx context.Context, orderID, buyerID string) (models.Order, error) {
	var o models.Order

	err := pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error

		o, err = s.orders.LockForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if o.BuyerID != buyerID {
			return fmt.Errorf("only the buyer confirms delivery: %w", models.ErrForbidden)
		}

		if o.Status != models.OrderPendingDelivery {
			return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, models.ErrInvalidOrderState)
		}

		return s.completeTx(ctx, tx, &o, buyerID, models.AuditOrderCompleted)
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("confirm delivery: %w", err)
	}

	s.notifyCompleted(ctx, o)

	return o, nil
}

// AutoRelease completes an order whose auto-release deadline has passed.
func (s *Service) AutoRelease(ctx context.Context, orderID string) (models.Order, error) {
	var o models.Order

	err := pgutils.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error

		o, err = s.orders.LockForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if o.Status != models.OrderPendingDelivery {
			return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, models.ErrInvalidOrderState)
		}

		if s.now().Before(o.AutoReleaseAt) {
			return fmt.Errorf("order %s due at %s: %w", o.ID, o.AutoReleaseAt.Format(time.RFC3339), models.ErrNotDue)
		}

		return s.completeTx(ctx, tx, &o, models.SystemActor, models.AuditOrderAutoReleased)
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("auto release: %w", err)
	}

	metrics.OrdersAutoReleased.Inc()
	s.notifyCompleted(ctx, o)

	return o, nil
}

// ReleaseDue auto-releases up to limit overdue orders and returns how many
// were completed. Orders another instance completed first are skipped.
func (s *Service) ReleaseDue(ctx context.Context, limit int) (int, error) {
	ids, err := s.orders.ListDue(ctx, s.db, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("release due: %w", err)
	}

	released := 0

	for _, id := range ids {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}

		_, err := s.AutoRelease(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrInvalidOrderState) || errors.Is(err, models.ErrNotDue) {
				continue
			}

			metrics.AutoReleaseErrors.Inc()
			s.log.Error("auto release failed", zap.String("order_id", id), zap.Error(err))

			continue
		}

		released++
	}

	return released, nil
}

// GetOrder returns the order to one of its parties. An overdue
// PENDING_DELIVERY order is completed first.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (models.Order, error) {
	o, err := s.orders.Get(ctx, s.db, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}

	if !o.IsParty(userID) {
		return models.Order{}, fmt.Errorf("get order: %w", models.ErrForbidden)
	}

	if o.Status != models.OrderPendingDelivery || s.now().Before(o.AutoReleaseAt) {
		return o, nil
	}

	released, err := s.AutoRelease(ctx, o.ID)
	if err == nil {
		return released, nil
	}

	if !errors.Is(err, models.ErrInvalidOrderState) && !errors.Is(err, models.ErrNotDue) {
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}

	o, err = s.orders.Get(ctx, s.db, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

// LockTx locks the order row for a cooperating service.
func (s *Service) LockTx(ctx context.Context, tx *sqlx.Tx, orderID string) (models.Order, error) {
	o, err := s.orders.LockForUpdate(ctx, tx, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("lock order: %w", err)
	}

	return o, nil
}

// DisputeTx moves a locked PENDING_DELIVERY order to DISPUTED, which takes
// it out of the auto-release scan.
func (s *Service) DisputeTx(ctx context.Context, tx *sqlx.Tx, o *models.Order) error {
	if o.Status != models.OrderPendingDelivery {
		return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, models.ErrInvalidOrderState)
	}

	err := s.orders.Transition(ctx, tx, o, models.OrderDisputed, s.now().UTC())
	if err != nil {
		return fmt.Errorf("dispute order: %w", err)
	}

	return nil
}

// SettleDisputeTx divides the escrow of a locked DISPUTED order. The split
// must already be validated against the order amount. The order ends
// COMPLETED when the seller receives anything, REFUNDED otherwise.
func (s *Service) SettleDisputeTx(ctx context.Context, tx *sqlx.Tx, o *models.Order, split models.Split) error {
	if o.Status != models.OrderDisputed {
		return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, models.ErrInvalidOrderState)
	}

	if split.BuyerAmount < 0 || split.SellerAmount < 0 || split.BuyerAmount+split.SellerAmount != o.Amount {
		return fmt.Errorf("split %d+%d of %d: %w", split.BuyerAmount, split.SellerAmount, o.Amount, models.ErrInvalidSplit)
	}

	if split.SellerAmount > 0 {
		_, err := s.ledger.ReleaseTx(ctx, tx, wallet.ReleaseParams{
			FromUserID:  o.BuyerID,
			ToUserID:    o.SellerID,
			Amount:      split.SellerAmount,
			ReferenceID: o.ID,
			Meta:        models.Meta{"dispute": true},
		})
		if err != nil {
			return err
		}
	}

	if split.BuyerAmount > 0 {
		_, err := s.ledger.RefundTx(ctx, tx, wallet.RefundParams{
			UserID:      o.BuyerID,
			Amount:      split.BuyerAmount,
			ReferenceID: o.ID,
			Meta:        models.Meta{"dispute": true},
		})
		if err != nil {
			return err
		}
	}

	now := s.now().UTC()

	if split.SellerAmount > 0 {
		err := s.orders.Transition(ctx, tx, o, models.OrderCompleted, now)
		if err != nil {
			return err
		}

		return s.listings.SetStatus(ctx, tx, o.ListingID, models.ListingSold)
	}

	return s.orders.Transition(ctx, tx, o, models.OrderRefunded, now)
}

func (s *Service) completeTx(ctx context.Context, tx *sqlx.Tx, o *models.Order, actor string, action models.AuditAction) error {
	_, err := s.ledger.ReleaseTx(ctx, tx, wallet.ReleaseParams{
		FromUserID:  o.BuyerID,
		ToUserID:    o.SellerID,
		Amount:      o.Amount,
		ReferenceID: o.ID,
	})
	if err != nil {
		return err
	}

	err = s.orders.Transition(ctx, tx, o, models.OrderCompleted, s.now().UTC())
	if err != nil {
		return err
	}

	err = s.listings.SetStatus(ctx, tx, o.ListingID, models.ListingSold)
	if err != nil {
		return err
	}

	return s.audit.Insert(ctx, tx, models.AuditEntry{
		ActorID:    actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   o.ID,
		Meta:       models.Meta{"amount": o.Amount, "seller_id": o.SellerID},
	})
}

func (s *Service) notifyCompleted(ctx context.Context, o models.Order) {
	s.log.Info("order completed", zap.String("order_id", o.ID), zap.Int64("amount", o.Amount))

	s.notifier.Notify(ctx, models.Notification{
		UserID:  o.SellerID,
		Kind:    models.NotifyOrderCompleted,
		Title:   "Payment released",
		Content: fmt.Sprintf("%s is now available in your wallet.", models.FormatAmount(o.Amount)),
		URL:     orderURL(o.ID),
	})
}

func orderURL(id string) string {
	return "/orders/" + id
}
