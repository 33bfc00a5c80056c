package dispute

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgtestutil"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	"github.com/ottkdev/standoff2com-sub001/internal/services/order"
	"github.com/ottkdev/standoff2com-sub001/internal/services/wallet"
)

type fixture struct {
	svc      *Service
	orders   *order.Service
	ledger   *wallet.Service
	db       *sqlx.DB
	notifier *notify.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	ledger := wallet.New(db, zap.NewNop())
	rec := notify.NewRecorder(32)
	orders := order.New(ledger, notify.Nop{}, config.LedgerConfig{}, zap.NewNop())

	return fixture{
		svc:      New(db, orders, rec, zap.NewNop()),
		orders:   orders,
		ledger:   ledger,
		db:       db,
		notifier: rec,
	}
}

// openOrder funds buyer with 10000 and buys a 4000 listing from seller.
func (f fixture) openOrder(t *testing.T, listingID string) models.Order {
	t.Helper()

	ctx := context.Background()

	pgtestutil.SeedListing(t, f.db, models.Listing{ID: listingID, SellerID: "seller", Price: 4000})

	_, err := f.ledger.Credit(ctx, wallet.CreditParams{
		UserID: "buyer", Amount: 10000, Provider: "test", ReferenceID: "seed-" + listingID,
	})
	require.NoError(t, err)

	o, err := f.orders.CreateOrder(ctx, listingID, "buyer")
	require.NoError(t, err)

	return o
}

func (f fixture) requireBalance(t *testing.T, userID string, available, held int64) {
	t.Helper()

	w, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, available, w.BalanceAvailable, "available of %s", userID)
	assert.Equal(t, held, w.BalanceHeld, "held of %s", userID)

	_, err = f.ledger.Reconcile(context.Background(), userID)
	require.NoError(t, err)
}

func (f fixture) open(t *testing.T, o models.Order) models.Dispute {
	t.Helper()

	d, err := f.svc.OpenDispute(context.Background(), OpenParams{
		OrderID: o.ID, OpenerID: "buyer", Reason: "item not delivered",
	})
	require.NoError(t, err)

	return d
}

func TestSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		resolution models.Resolution
		buyer      int64
		seller     int64
		want       models.Split
		wantErr    error
	}{
		{name: "refund ignores amounts", resolution: models.ResolutionRefundBuyer, buyer: 1, seller: 2, want: models.Split{BuyerAmount: 4000}},
		{name: "release", resolution: models.ResolutionReleaseSeller, want: models.Split{SellerAmount: 4000}},
		{name: "partial", resolution: models.ResolutionPartial, buyer: 1500, seller: 2500, want: models.Split{BuyerAmount: 1500, SellerAmount: 2500}},
		{name: "partial all to buyer", resolution: models.ResolutionPartial, buyer: 4000, want: models.Split{BuyerAmount: 4000}},
		{name: "partial short", resolution: models.ResolutionPartial, buyer: 1000, seller: 1000, wantErr: models.ErrInvalidSplit},
		{name: "partial over", resolution: models.ResolutionPartial, buyer: 3000, seller: 3000, wantErr: models.ErrInvalidSplit},
		{name: "partial negative", resolution: models.ResolutionPartial, buyer: -1000, seller: 5000, wantErr: models.ErrInvalidSplit},
		{name: "unknown", resolution: "SPLIT_EVENLY", wantErr: models.ErrInvalidResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.resolution, 4000, tt.buyer, tt.seller)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenDispute(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	o := f.openOrder(t, "l1")

	_, err := f.svc.OpenDispute(ctx, OpenParams{OrderID: o.ID, OpenerID: "stranger", Reason: "x"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.OpenDispute(ctx, OpenParams{OrderID: o.ID, OpenerID: "buyer", Reason: "  "})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	d := f.open(t, o)
	assert.Equal(t, models.DisputeOpen, d.Status)
	assert.Equal(t, o.ID, d.OrderID)

	got, err := f.orders.GetOrder(ctx, o.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, models.OrderDisputed, got.Status)
	require.NotNil(t, got.DisputedAt)

	_, err = f.svc.OpenDispute(ctx, OpenParams{OrderID: o.ID, OpenerID: "seller", Reason: "again"})
	assert.ErrorIs(t, err, models.ErrInvalidOrderState)

	_, err = f.orders.ConfirmDelivery(ctx, o.ID, "buyer")
	assert.ErrorIs(t, err, models.ErrInvalidOrderState)

	sent := f.notifier.Drain()
	require.Len(t, sent, 1)
	assert.Equal(t, "seller", sent[0].UserID)
	assert.Equal(t, models.NotifyDisputeOpened, sent[0].Kind)

	f.requireBalance(t, "buyer", 6000, 4000)
}

func TestResolveDispute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		resolution      models.Resolution
		buyerAmount     int64
		sellerAmount    int64
		wantOrder       models.OrderStatus
		wantBuyer       int64
		wantSeller      int64
		wantListingSold bool
	}{
		{
			name:       "refund buyer",
			resolution: models.ResolutionRefundBuyer,
			wantOrder:  models.OrderRefunded,
			wantBuyer:  10000,
		},
		{
			name:            "release seller",
			resolution:      models.ResolutionReleaseSeller,
			wantOrder:       models.OrderCompleted,
			wantBuyer:       6000,
			wantSeller:      4000,
			wantListingSold: true,
		},
		{
			name:            "partial",
			resolution:      models.ResolutionPartial,
			buyerAmount:     1500,
			sellerAmount:    2500,
			wantOrder:       models.OrderCompleted,
			wantBuyer:       7500,
			wantSeller:      2500,
			wantListingSold: true,
		},
		{
			name:        "partial nothing to seller",
			resolution:  models.ResolutionPartial,
			buyerAmount: 4000,
			wantOrder:   models.OrderRefunded,
			wantBuyer:   10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := context.Background()

			o := f.openOrder(t, "l1")
			d := f.open(t, o)
			f.notifier.Drain()

			resolved, err := f.svc.ResolveDispute(ctx, ResolveParams{
				DisputeID:     d.ID,
				AdjudicatorID: "admin",
				Resolution:    tt.resolution,
				BuyerAmount:   tt.buyerAmount,
				SellerAmount:  tt.sellerAmount,
				Note:          "reviewed chat logs",
			})
			require.NoError(t, err)
			assert.Equal(t, models.DisputeResolved, resolved.Status)
			require.NotNil(t, resolved.Resolution)
			assert.Equal(t, tt.resolution, *resolved.Resolution)
			assert.Equal(t, o.Amount, resolved.BuyerAmount+resolved.SellerAmount)

			got, err := f.orders.GetOrder(ctx, o.ID, "buyer")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrder, got.Status)

			f.requireBalance(t, "buyer", tt.wantBuyer, 0)
			f.requireBalance(t, "seller", tt.wantSeller, 0)

			var status models.ListingStatus
			require.NoError(t, f.db.Get(&status, `SELECT status FROM listings WHERE id = 'l1'`))
			assert.Equal(t, tt.wantListingSold, status == models.ListingSold)

			assert.Len(t, f.notifier.Drain(), 2)

			_, err = f.svc.ResolveDispute(ctx, ResolveParams{
				DisputeID: d.ID, AdjudicatorID: "admin", Resolution: models.ResolutionRefundBuyer,
			})
			assert.ErrorIs(t, err, models.ErrDisputeAlreadyResolved)

			f.requireBalance(t, "buyer", tt.wantBuyer, 0)
		})
	}
}

func TestResolveDispute_RejectsBeforeMutation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	o := f.openOrder(t, "l1")
	d := f.open(t, o)

	tests := []struct {
		name    string
		params  ResolveParams
		wantErr error
	}{
		{
			name:    "bad split",
			params:  ResolveParams{DisputeID: d.ID, Resolution: models.ResolutionPartial, BuyerAmount: 1000, SellerAmount: 1000},
			wantErr: models.ErrInvalidSplit,
		},
		{
			name:    "bad resolution",
			params:  ResolveParams{DisputeID: d.ID, Resolution: "COIN_FLIP"},
			wantErr: models.ErrInvalidResolution,
		},
		{
			name:    "unknown dispute",
			params:  ResolveParams{DisputeID: "00000000-0000-0000-0000-000000000000", Resolution: models.ResolutionRefundBuyer},
			wantErr: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.params.AdjudicatorID = "admin"

			_, err := f.svc.ResolveDispute(ctx, tt.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	f.requireBalance(t, "buyer", 6000, 4000)
	f.requireBalance(t, "seller", 0, 0)

	got, err := f.svc.GetDispute(ctx, d.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeOpen, got.Status)

	_, err = f.svc.GetDispute(ctx, d.ID, "stranger")
	assert.ErrorIs(t, err, models.ErrForbidden)
}
