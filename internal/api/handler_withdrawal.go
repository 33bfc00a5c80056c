package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/services/withdrawal"
)

// RequestWithdrawalHandler handles POST /withdrawals
func (h *HandlerProvider) RequestWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest

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

	wr, err := h.svc.Withdrawals.RequestWithdrawal(r.Context(), withdrawal.RequestParams{
		UserID:      userID(r),
		Amount:      amount,
		IBAN:        req.IBAN,
		AccountName: req.AccountName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newWithdrawalResponse(wr))
}

// GetWithdrawalHandler handles GET /withdrawals/{id}
func (h *HandlerProvider) GetWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	wr, err := h.svc.Withdrawals.Get(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wr))
}

// CancelWithdrawalHandler handles POST /withdrawals/{id}/cancel
func (h *HandlerProvider) CancelWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	wr, err := h.svc.Withdrawals.Cancel(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wr))
}

// ListWithdrawalsHandler handles GET /admin/withdrawals?status=PENDING&limit=N
func (h *HandlerProvider) ListWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := models.WithdrawalStatus(strings.ToUpper(r.URL.Query().Get("status")))

	switch status {
	case "", models.WithdrawalPending, models.WithdrawalApproved, models.WithdrawalRejected,
		models.WithdrawalPaid, models.WithdrawalCancelled:
	default:
		h.fail(w, r, errInvalid("unknown status "+string(status)))
		return
	}

	list, err := h.svc.Withdrawals.List(r.Context(), status, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]withdrawalResponse, 0, len(list))
	for _, wr := range list {
		out = append(out, newWithdrawalResponse(wr))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"withdrawals": out})
}

// ApproveWithdrawalHandler handles POST /admin/withdrawals/{id}/approve
func (h *HandlerProvider) ApproveWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	wr, err := h.svc.Withdrawals.Approve(r.Context(), chi.URLParam(r, "id"), adminID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wr))
}

// RejectWithdrawalHandler handles POST /admin/withdrawals/{id}/reject
func (h *HandlerProvider) RejectWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	var req rejectWithdrawalRequest

	err := h.decode(w, r, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	wr, err := h.svc.Withdrawals.Reject(r.Context(), chi.URLParam(r, "id"), adminID(r), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wr))
}

// MarkWithdrawalPaidHandler handles POST /admin/withdrawals/{id}/paid
func (h *HandlerProvider) MarkWithdrawalPaidHandler(w http.ResponseWriter, r *http.Request) {
	wr, err := h.svc.Withdrawals.MarkPaid(r.Context(), chi.URLParam(r, "id"), adminID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newWithdrawalResponse(wr))
}
