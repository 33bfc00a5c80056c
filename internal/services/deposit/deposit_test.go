package deposit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/infra/pgtestutil"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/notify"
	"github.com/ottkdev/standoff2com-sub001/internal/services/paytr"
	"github.com/ottkdev/standoff2com-sub001/internal/services/wallet"
)

type fakeFeed struct {
	mu     sync.Mutex
	events []models.Deposit
}

func (f *fakeFeed) PublishDeposit(_ context.Context, d models.Deposit) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, d)

	return nil
}

type fixture struct {
	svc      *Service
	ledger   *wallet.Service
	gateway  *paytr.Service
	feed     *fakeFeed
	notifier *notify.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	gateway := paytr.New(config.PayTRConfig{
		MerchantID: "m1", MerchantKey: "k1", MerchantSalt: "s1", Currency: "TL", Timeout: 30 * time.Minute,
	})
	ledger := wallet.New(db, zap.NewNop())
	feed := &fakeFeed{}
	rec := notify.NewRecorder(16)

	svc := New(ledger, gateway, feed, rec, config.LedgerConfig{
		DepositFeeBps:    1000,
		DepositMinAmount: 100,
	}, zap.NewNop())

	return fixture{svc: svc, ledger: ledger, gateway: gateway, feed: feed, notifier: rec}
}

func (f fixture) callback(oid, status string, total int64) paytr.Callback {
	return paytr.Callback{
		MerchantOID: oid,
		Status:      status,
		TotalAmount: total,
		Hash:        f.gateway.CallbackHash(oid, status, total),
	}
}

func TestFee(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(100), Fee(1000, 1000))
	assert.Equal(t, int64(0), Fee(1000, 0))
	assert.Equal(t, int64(1), Fee(1, 250))
	assert.Equal(t, int64(25), Fee(999, 250))
	assert.Equal(t, int64(25), Fee(1000, 250))
}

func TestNewMerchantOID_Alphanumeric(t *testing.T) {
	t.Parallel()

	oid := NewMerchantOID()
	assert.Len(t, oid, 3+26)
	assert.Regexp(t, `^DEP[0-9A-Z]+$`, oid)
	assert.NotEqual(t, oid, NewMerchantOID())
}

func TestInitDeposit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.InitDeposit(ctx, InitParams{UserID: "u1", NetAmount: 99})
	require.ErrorIs(t, err, models.ErrBelowMinimum)

	res, err := f.svc.InitDeposit(ctx, InitParams{UserID: "u1", NetAmount: 1000, UserIP: "1.1.1.1", Email: "u1@example.test"})
	require.NoError(t, err)

	assert.Equal(t, int64(1100), res.Deposit.GrossAmount)
	assert.Equal(t, int64(100), res.Deposit.FeeAmount)
	assert.Equal(t, models.DepositPending, res.Deposit.Status)
	assert.Equal(t, "1100", res.Form.Get("payment_amount"))
	assert.Equal(t, res.Deposit.GatewayMerchantOID, res.Form.Get("merchant_oid"))
	assert.NotEmpty(t, res.Form.Get("paytr_token"))

	history, err := f.ledger.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	for _, row := range history {
		assert.Equal(t, models.TxPending, row.Status)
		assert.Zero(t, row.AvailableDelta)
	}

	w, err := f.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, w.Total())
}

// Net 1000 with a 100 fee: the gateway reports 1100 and the wallet gains
// exactly 1000. Replays change nothing.
func TestHandleCallback_SuccessIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.InitDeposit(ctx, InitParams{UserID: "u1", NetAmount: 1000})
	require.NoError(t, err)

	cb := f.callback(res.Deposit.GatewayMerchantOID, paytr.StatusSuccess, 1100)

	outcome, err := f.svc.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, outcome)

	for range 3 {
		outcome, err = f.svc.HandleCallback(ctx, cb)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyProcessed, outcome)
	}

	w, err := f.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.BalanceAvailable)
	assert.Zero(t, w.BalanceHeld)

	history, err := f.ledger.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	for _, row := range history {
		assert.Equal(t, models.TxSuccess, row.Status)
	}

	_, err = f.ledger.Reconcile(ctx, "u1")
	require.NoError(t, err)

	d, err := f.svc.GetDeposit(ctx, res.Deposit.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.DepositSuccess, d.Status)
	assert.NotNil(t, d.CompletedAt)

	notes := f.notifier.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotifyDepositSucceeded, notes[0].Kind)

	f.feed.mu.Lock()
	assert.Len(t, f.feed.events, 1)
	f.feed.mu.Unlock()
}

func TestHandleCallback_AmountMismatchFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.InitDeposit(ctx, InitParams{UserID: "u1", NetAmount: 1000})
	require.NoError(t, err)

	outcome, err := f.svc.HandleCallback(ctx, f.callback(res.Deposit.GatewayMerchantOID, paytr.StatusSuccess, 1000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmountMismatch, outcome)

	d, err := f.svc.GetDeposit(ctx, res.Deposit.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.DepositFailed, d.Status)
	assert.Equal(t, ReasonAmountMismatch, d.FailureReason)

	w, err := f.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, w.Total())

	history, err := f.ledger.History(ctx, "u1", 10)
	require.NoError(t, err)

	for _, row := range history {
		assert.Equal(t, models.TxFailed, row.Status)
	}

	assert.Empty(t, f.notifier.Drain())
}

func TestHandleCallback_GatewayFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.InitDeposit(ctx, InitParams{UserID: "u1", NetAmount: 1000})
	require.NoError(t, err)

	cb := f.callback(res.Deposit.GatewayMerchantOID, paytr.StatusFailed, 1100)
	cb.FailedReasonMsg = "card declined"

	outcome, err := f.svc.HandleCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	d, err := f.svc.GetDeposit(ctx, res.Deposit.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "card declined", d.FailureReason)

	// a late success for a failed deposit is ignored
	outcome, err = f.svc.HandleCallback(ctx, f.callback(res.Deposit.GatewayMerchantOID, paytr.StatusSuccess, 1100))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)

	w, err := f.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, w.Total())
}

func TestHandleCallback_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.InitDeposit(ctx, InitParams{UserID: "u1", NetAmount: 1000})
	require.NoError(t, err)

	forged := f.callback(res.Deposit.GatewayMerchantOID, paytr.StatusSuccess, 1100)
	forged.Hash = "forged"

	_, err = f.svc.HandleCallback(ctx, forged)
	require.ErrorIs(t, err, models.ErrSignatureMismatch)

	_, err = f.svc.HandleCallback(ctx, f.callback("DEPUNKNOWN", paytr.StatusSuccess, 1100))
	require.ErrorIs(t, err, models.ErrNotFound)

	d, err := f.svc.GetDeposit(ctx, res.Deposit.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.DepositPending, d.Status)

	_, err = f.svc.GetDeposit(ctx, res.Deposit.ID, "someone-else")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestHandleCallback_ConcurrentDeliveryCreditsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.InitDeposit(ctx, InitParams{UserID: "u1", NetAmount: 1000})
	require.NoError(t, err)

	cb := f.callback(res.Deposit.GatewayMerchantOID, paytr.StatusSuccess, 1100)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			outcome, err := f.svc.HandleCallback(ctx, cb)
			if err != nil {
				t.Errorf("callback: %v", err)
				return
			}

			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, outcomes[OutcomeCredited])
	assert.Equal(t, 3, outcomes[OutcomeAlreadyProcessed])

	w, err := f.ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.BalanceAvailable)
}
