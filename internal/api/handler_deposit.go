package api

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/services/deposit"
	"github.com/ottkdev/standoff2com-sub001/internal/services/paytr"
)

// InitDepositHandler handles POST /deposits
func (h *HandlerProvider) InitDepositHandler(w http.ResponseWriter, r *http.Request) {
	var req depositRequest

	err := h.decode(w, r, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	amount, err := models.ParseAmount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.svc.Deposits.InitDeposit(r.Context(), deposit.InitParams{
		UserID:    userID(r),
		NetAmount: amount,
		UserIP:    clientIP(r),
		Email:     req.Email,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	form := make(map[string]string, len(res.Form))
	for k := range res.Form {
		form[k] = res.Form.Get(k)
	}

	h.writeJSON(w, http.StatusCreated, initDepositResponse{
		Deposit:  newDepositResponse(res.Deposit),
		TokenURL: res.TokenURL,
		Form:     form,
	})
}

// GetDepositHandler handles GET /deposits/{id}. Pending deposits carry a
// Retry-After hint that grows with the deposit's age.
func (h *HandlerProvider) GetDepositHandler(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Deposits.GetDeposit(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if !d.Status.Terminal() {
		w.Header().Set("Retry-After", retryAfter(time.Since(d.CreatedAt)))
	}

	h.writeJSON(w, http.StatusOK, newDepositResponse(d))
}

// retryAfter backs polling off from 2s to at most 30s.
func retryAfter(age time.Duration) string {
	switch {
	case age < 30*time.Second:
		return "2"
	case age < 2*time.Minute:
		return "5"
	case age < 10*time.Minute:
		return "15"
	default:
		return "30"
	}
}

// PayTRCallbackHandler handles POST /payments/paytr/callback. PayTR retries
// until it reads "OK", so everything except a bad signature or an unknown
// merchant oid is acknowledged.
func (h *HandlerProvider) PayTRCallbackHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := r.ParseForm()
	if err != nil {
		writePlain(w, http.StatusBadRequest, "BAD_HASH")
		return
	}

	cb, err := paytr.ParseCallback(r.PostForm)
	if err != nil {
		writePlain(w, http.StatusBadRequest, "BAD_HASH")
		return
	}

	outcome, err := h.svc.Deposits.HandleCallback(r.Context(), cb)

	switch {
	case err == nil:
		h.log.Info("paytr callback",
			zap.String("merchant_oid", cb.MerchantOID),
			zap.String("outcome", string(outcome)),
		)
		writePlain(w, http.StatusOK, "OK")
	case errors.Is(err, models.ErrSignatureMismatch):
		h.log.Warn("paytr callback signature mismatch",
			zap.String("merchant_oid", cb.MerchantOID),
			zap.String("remote_addr", r.RemoteAddr),
		)
		writePlain(w, http.StatusBadRequest, "BAD_HASH")
	case errors.Is(err, models.ErrNotFound):
		writePlain(w, http.StatusNotFound, "NOT_FOUND")
	default:
		h.log.Error("paytr callback needs manual reconciliation",
			zap.String("merchant_oid", cb.MerchantOID),
			zap.String("status", cb.Status),
			zap.Int64("total_amount", cb.TotalAmount),
			zap.Error(err),
		)
		writePlain(w, http.StatusOK, "OK")
	}
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
