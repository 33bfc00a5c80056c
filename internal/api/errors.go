package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// first match wins
var errorMappings = []errorMapping{
	{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{models.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{models.ErrInsufficientFunds, http.StatusConflict, "INSUFFICIENT_FUNDS"},
	{models.ErrInsufficientHeldFunds, http.StatusConflict, "INSUFFICIENT_HELD_FUNDS"},
	{models.ErrInvalidOrderState, http.StatusConflict, "INVALID_ORDER_STATE"},
	{models.ErrInvalidWithdrawalState, http.StatusConflict, "INVALID_WITHDRAWAL_STATE"},
	{models.ErrDisputeAlreadyResolved, http.StatusConflict, "DISPUTE_ALREADY_RESOLVED"},
	{models.ErrListingUnavailable, http.StatusConflict, "LISTING_UNAVAILABLE"},
	{models.ErrTransactionClosed, http.StatusConflict, "TRANSACTION_CLOSED"},
	{models.ErrNotDue, http.StatusConflict, "NOT_DUE"},
	{models.ErrLedgerDrift, http.StatusConflict, "LEDGER_DRIFT"},
	{models.ErrTooManyPendingRequests, http.StatusTooManyRequests, "TOO_MANY_PENDING_REQUESTS"},
	{models.ErrInvalidSplit, http.StatusUnprocessableEntity, "INVALID_SPLIT"},
	{models.ErrInvalidResolution, http.StatusUnprocessableEntity, "INVALID_RESOLUTION"},
	{models.ErrSelfPurchase, http.StatusUnprocessableEntity, "SELF_PURCHASE"},
	{models.ErrBelowMinimum, http.StatusUnprocessableEntity, "BELOW_MINIMUM"},
	{models.ErrAmountMismatch, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH"},
	{models.ErrInvalidIBAN, http.StatusBadRequest, "INVALID_IBAN"},
	{models.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
	{models.ErrSignatureMismatch, http.StatusBadRequest, "BAD_HASH"},
	{models.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
}

// classify returns the HTTP status and code for err. ok is false for
// errors that are not domain errors.
func classify(err error) (status int, code string, ok bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, true
		}
	}

	return http.StatusInternalServerError, "INTERNAL", false
}

// fail writes the mapped response for err. Unmapped errors are logged and
// reported as internal errors without detail.
func (h *HandlerProvider) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, ok := classify(err)
	if !ok {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
			zap.Error(err),
		)
		h.writeError(w, status, code, "internal error")

		return
	}

	h.writeError(w, status, code, err.Error())
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%v: %w", err, models.ErrInvalidRequest)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}

	if len(verrs) == 1 && verrs[0].Tag() == "iban" {
		return fmt.Errorf("%s: %w", fields[0], models.ErrInvalidIBAN)
	}

	return fmt.Errorf("%s: %w", strings.Join(fields, "; "), models.ErrInvalidRequest)
}

func errInvalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, models.ErrInvalidRequest)
}
