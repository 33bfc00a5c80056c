package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgtestutil"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	pgaudit "github.com/ottkdev/standoff2com-sub001/internal/repos/audit/postgres"
	"github.com/ottkdev/standoff2com-sub001/internal/services/wallet"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	ledger   *wallet.Service
	db       *sqlx.DB
	clock    *clock
	notifier *notify.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	c := &clock{now: time.Now().UTC()}
	ledger := wallet.New(db, zap.NewNop())
	rec := notify.NewRecorder(16)

	svc := New(ledger, rec, config.LedgerConfig{OrderAutoReleaseAfter: 72 * time.Hour}, zap.NewNop(), WithClock(c.Now))

	return fixture{svc: svc, ledger: ledger, db: db, clock: c, notifier: rec}
}

func (f fixture) listing(t *testing.T, id, sellerID string, price int64) {
	t.Helper()

	pgtestutil.SeedListing(t, f.db, models.Listing{ID: id, SellerID: sellerID, Price: price})
}

func (f fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()

	_, err := f.ledger.Credit(context.Background(), wallet.CreditParams{
		UserID: userID, Amount: amount, Provider: "test", ReferenceID: "seed-" + userID,
	})
	require.NoError(t, err)
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

func (f fixture) listingStatus(t *testing.T, id string) models.ListingStatus {
	t.Helper()

	var status models.ListingStatus
	require.NoError(t, f.db.Get(&status, `SELECT status FROM listings WHERE id = $1`, id))

	return status
}

func TestCreateOrder_HoldsBuyerFunds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.listing(t, "l1", "seller", 4000)
	f.fund(t, "buyer", 10000)

	o, err := f.svc.CreateOrder(ctx, "l1", "buyer")
	require.NoError(t, err)

	assert.Equal(t, models.OrderPendingDelivery, o.Status)
	assert.Equal(t, int64(4000), o.Amount)
	assert.Equal(t, "seller", o.SellerID)
	assert.WithinDuration(t, f.clock.Now().Add(72*time.Hour), o.AutoReleaseAt, time.Second)

	f.requireBalance(t, "buyer", 6000, 4000)
	assert.Equal(t, models.ListingActive, f.listingStatus(t, "l1"))

	sent := f.notifier.Drain()
	require.Len(t, sent, 1)
	assert.Equal(t, "seller", sent[0].UserID)
	assert.Equal(t, models.NotifyOrderCreated, sent[0].Kind)
}

func TestCreateOrder_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.listing(t, "l-cheap", "seller", 1000)
	f.listing(t, "l-dear", "seller", 50000)
	f.fund(t, "buyer", 5000)

	pgtestutil.SeedListing(t, f.db, models.Listing{ID: "l-off", SellerID: "seller", Price: 100, Status: models.ListingInactive})

	tests := []struct {
		name      string
		listingID string
		buyerID   string
		wantErr   error
	}{
		{name: "self purchase", listingID: "l-cheap", buyerID: "seller", wantErr: models.ErrSelfPurchase},
		{name: "insufficient funds", listingID: "l-dear", buyerID: "buyer", wantErr: models.ErrInsufficientFunds},
		{name: "inactive listing", listingID: "l-off", buyerID: "buyer", wantErr: models.ErrListingUnavailable},
		{name: "unknown listing", listingID: "missing", buyerID: "buyer", wantErr: models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tt.listingID, tt.buyerID)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	f.requireBalance(t, "buyer", 5000, 0)

	var n int
	require.NoError(t, f.db.Get(&n, `SELECT COUNT(*) FROM marketplace_orders`))
	assert.Zero(t, n)
}

func TestCreateOrder_OneOpenOrderPerListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.listing(t, "l1", "seller", 4000)

	buyers := []string{"b1", "b2", "b3"}
	for _, b := range buyers {
		f.fund(t, b, 4000)
	}

	var (
		wg                   sync.WaitGroup
		mu                   sync.Mutex
		created, unavailable int
	)

	for _, b := range buyers {
		wg.Add(1)

		go func(buyer string) {
			defer wg.Done()

			_, err := f.svc.CreateOrder(context.Background(), "l1", buyer)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				created++
			case errors.Is(err, models.ErrListingUnavailable):
				unavailable++
			default:
				t.Errorf("[%s] unexpected error: %v", buyer, err)
			}
		}(b)
	}

	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 2, unavailable)

	var held int64
	require.NoError(t, f.db.Get(&held, `SELECT COALESCE(SUM(balance_held), 0) FROM wallets`))
	assert.Equal(t, int64(4000), held)
}

func TestConfirmDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.listing(t, "l1", "seller", 4000)
	f.fund(t, "buyer", 10000)

	o, err := f.svc.CreateOrder(ctx, "l1", "buyer")
	require.NoError(t, err)
	f.notifier.Drain()

	_, err = f.svc.ConfirmDelivery(ctx, o.ID, "seller")
	assert.ErrorIs(t, err, models.ErrForbidden)

	done, err := f.svc.ConfirmDelivery(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	f.requireBalance(t, "buyer", 6000, 0)
	f.requireBalance(t, "seller", 4000, 0)
	assert.Equal(t, models.ListingSold, f.listingStatus(t, "l1"))

	_, err = f.svc.ConfirmDelivery(ctx, o.ID, "buyer")
	assert.ErrorIs(t, err, models.ErrInvalidOrderState)

	f.requireBalance(t, "seller", 4000, 0)

	entries, err := pgaudit.New().ListByEntity(ctx, f.db, "order", o.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditOrderCreated, entries[0].Action)
	assert.Equal(t, models.AuditOrderCompleted, entries[1].Action)
	assert.Equal(t, "buyer", entries[1].ActorID)

	sent := f.notifier.Drain()
	require.Len(t, sent, 1)
	assert.Equal(t, models.NotifyOrderCompleted, sent[0].Kind)
}

func TestAutoRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.listing(t, "l1", "seller", 4000)
	f.listing(t, "l2", "seller", 1000)
	f.fund(t, "buyer", 10000)

	o1, err := f.svc.CreateOrder(ctx, "l1", "buyer")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)

	o2, err := f.svc.CreateOrder(ctx, "l2", "buyer")
	require.NoError(t, err)

	_, err = f.svc.AutoRelease(ctx, o1.ID)
	assert.ErrorIs(t, err, models.ErrNotDue)

	n, err := f.svc.ReleaseDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	// o1 is due, o2 is one hour short
	f.clock.Advance(71*time.Hour + time.Minute)

	n, err = f.svc.ReleaseDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.requireBalance(t, "buyer", 5000, 1000)
	f.requireBalance(t, "seller", 4000, 0)

	n, err = f.svc.ReleaseDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := pgaudit.New().ListByEntity(ctx, f.db, "order", o1.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditOrderAutoReleased, entries[1].Action)
	assert.Equal(t, models.SystemActor, entries[1].ActorID)

	got, err := f.svc.GetOrder(ctx, o2.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPendingDelivery, got.Status)
}

func TestGetOrder_LazyRelease(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.listing(t, "l1", "seller", 4000)
	f.fund(t, "buyer", 4000)

	o, err := f.svc.CreateOrder(ctx, "l1", "buyer")
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, o.ID, "stranger")
	assert.ErrorIs(t, err, models.ErrForbidden)

	f.clock.Advance(73 * time.Hour)

	got, err := f.svc.GetOrder(ctx, o.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, got.Status)

	f.requireBalance(t, "buyer", 0, 0)
	f.requireBalance(t, "seller", 4000, 0)

	again, err := f.svc.GetOrder(ctx, o.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, again.Status)
}

func TestAutoReleaser_InvalidSchedule(t *testing.T) {
	t.Parallel()

	_, err := NewAutoReleaser(&Service{}, "not a schedule", 10, zap.NewNop())
	assert.Error(t, err)
}
