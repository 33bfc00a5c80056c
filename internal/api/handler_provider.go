package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/feed"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/services/deposit"
	"github.com/ottkdev/standoff2com-sub001/internal/services/dispute"
	"github.com/ottkdev/standoff2com-sub001/internal/services/paytr"
	"github.com/ottkdev/standoff2com-sub001/internal/services/wallet"
	"github.com/ottkdev/standoff2com-sub001/internal/services/withdrawal"
)

const maxBodyBytes = 1 << 20

type WalletService interface {
	Balance(ctx context.Context, userID string) (models.Wallet, error)
	History(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error)
	Reconcile(ctx context.Context, userID string) (wallet.Reconciliation, error)
}

type DepositService interface {
	InitDeposit(ctx context.Context, p deposit.InitParams) (deposit.InitResult, error)
	HandleCallback(ctx context.Context, cb paytr.Callback) (deposit.Outcome, error)
	GetDeposit(ctx context.Context, depositID, userID string) (models.Deposit, error)
}

type DepositStream interface {
	SubscribeDeposit(ctx context.Context, depositID string) (*feed.Subscription, error)
}

type OrderService interface {
	CreateOrder(ctx context.Context, listingID, buyerID string) (models.Order, error)
	GetOrder(ctx context.Context, orderID, userID string) (models.Order, error)
	ConfirmDelivery(ctx context.Context, orderID, buyerID string) (models.Order, error)
}

type DisputeService interface {
	OpenDispute(ctx context.Context, p dispute.OpenParams) (models.Dispute, error)
	ResolveDispute(ctx context.Context, p dispute.ResolveParams) (models.Dispute, error)
	GetDispute(ctx context.Context, disputeID, userID string) (models.Dispute, error)
}

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, p withdrawal.RequestParams) (models.WithdrawalRequest, error)
	Get(ctx context.Context, requestID, userID string) (models.WithdrawalRequest, error)
	Cancel(ctx context.Context, requestID, userID string) (models.WithdrawalRequest, error)
	Approve(ctx context.Context, requestID, adminID string) (models.WithdrawalRequest, error)
	Reject(ctx context.Context, requestID, adminID, reason string) (models.WithdrawalRequest, error)
	MarkPaid(ctx context.Context, requestID, adminID string) (models.WithdrawalRequest, error)
	List(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.WithdrawalRequest, error)
}

// Services is everything the HTTP layer calls into. A nil Stream disables
// the deposit WebSocket.
type Services struct {
	Wallet      WalletService
	Deposits    DepositService
	Stream      DepositStream
	Orders      OrderService
	Disputes    DisputeService
	Withdrawals WithdrawalService
}

// HandlerProvider exposes the services as HTTP handlers.
type HandlerProvider struct {
	svc      Services
	validate *validator.Validate
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler builds the handlers. allowedOrigins limits which browser
// origins may open the deposit WebSocket.
func NewHandler(svc Services, allowedOrigins []string, log *zap.Logger) *HandlerProvider {
	return &HandlerProvider{
		svc:      svc,
		validate: newValidator(),
		upgrader: newUpgrader(allowedOrigins),
		log:      log,
	}
}

func (h *HandlerProvider) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.log.Error("encode JSON response", zap.Error(err))
	}
}

func (h *HandlerProvider) writeError(w http.ResponseWriter, status int, code, msg string) {
	h.writeJSON(w, status, errorBody{Code: code, Error: msg})
}

// decode reads a JSON body into dst and validates it. Unknown fields are
// rejected.
func (h *HandlerProvider) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body: %w", models.ErrInvalidRequest)
		}

		return fmt.Errorf("invalid JSON: %w", models.ErrInvalidRequest)
	}

	err = h.validate.Struct(dst)
	if err != nil {
		return validationError(err)
	}

	return nil
}
