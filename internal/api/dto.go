package api

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/services/withdrawal"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	// validator has no IBAN rule of its own
	_ = v.RegisterValidation("iban", func(fl validator.FieldLevel) bool {
		return withdrawal.ValidateIBAN(withdrawal.NormalizeIBAN(fl.Field().String())) == nil
	})

	return v
}

// --- Requests ---

type depositRequest struct {
	Amount string `json:"amount" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

type createOrderRequest struct {
	ListingID string `json:"listingId" validate:"required,max=64"`
}

type openDisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
	Note   string `json:"note" validate:"max=2000"`
}

type resolveDisputeRequest struct {
	Resolution   string `json:"resolution" validate:"required"`
	BuyerAmount  string `json:"buyerAmount"`
	SellerAmount string `json:"sellerAmount"`
	Note         string `json:"note" validate:"max=2000"`
}

type withdrawalRequest struct {
	Amount      string `json:"amount" validate:"required"`
	IBAN        string `json:"iban" validate:"required,iban"`
	AccountName string `json:"accountName" validate:"required,max=140"`
}

type rejectWithdrawalRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// --- Responses ---

// Amounts are returned both in minor units and as formatted major units.

type walletResponse struct {
	UserID           string `json:"userId"`
	BalanceAvailable int64  `json:"balanceAvailable"`
	BalanceHeld      int64  `json:"balanceHeld"`
	Available        string `json:"available"`
	Held             string `json:"held"`
	Total            string `json:"total"`
}

func newWalletResponse(w models.Wallet) walletResponse {
	return walletResponse{
		UserID:           w.UserID,
		BalanceAvailable: w.BalanceAvailable,
		BalanceHeld:      w.BalanceHeld,
		Available:        models.FormatAmount(w.BalanceAvailable),
		Held:             models.FormatAmount(w.BalanceHeld),
		Total:            models.FormatAmount(w.Total()),
	}
}

type transactionResponse struct {
	models.WalletTransaction
	AmountFormatted string `json:"amountFormatted"`
}

type depositResponse struct {
	models.Deposit
	NetFormatted   string `json:"netFormatted"`
	FeeFormatted   string `json:"feeFormatted"`
	GrossFormatted string `json:"grossFormatted"`
}

func newDepositResponse(d models.Deposit) depositResponse {
	return depositResponse{
		Deposit:        d,
		NetFormatted:   models.FormatAmount(d.NetCreditAmount),
		FeeFormatted:   models.FormatAmount(d.FeeAmount),
		GrossFormatted: models.FormatAmount(d.GrossAmount),
	}
}

type initDepositResponse struct {
	Deposit  depositResponse   `json:"deposit"`
	TokenURL string            `json:"tokenUrl"`
	Form     map[string]string `json:"form"`
}

type orderResponse struct {
	models.Order
	AmountFormatted string `json:"amountFormatted"`
}

func newOrderResponse(o models.Order) orderResponse {
	return orderResponse{Order: o, AmountFormatted: models.FormatAmount(o.Amount)}
}

type disputeResponse struct {
	models.Dispute
	BuyerAmountFormatted  string `json:"buyerAmountFormatted"`
	SellerAmountFormatted string `json:"sellerAmountFormatted"`
}

func newDisputeResponse(d models.Dispute) disputeResponse {
	return disputeResponse{
		Dispute:               d,
		BuyerAmountFormatted:  models.FormatAmount(d.BuyerAmount),
		SellerAmountFormatted: models.FormatAmount(d.SellerAmount),
	}
}

type withdrawalResponse struct {
	models.WithdrawalRequest
	AmountFormatted string `json:"amountFormatted"`
}

func newWithdrawalResponse(w models.WithdrawalRequest) withdrawalResponse {
	return withdrawalResponse{WithdrawalRequest: w, AmountFormatted: models.FormatAmount(w.Amount)}
}
