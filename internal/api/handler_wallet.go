package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

const defaultPageLimit = 50

// GetWalletHandler handles GET /wallet
func (h *HandlerProvider) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	wal, err := h.svc.Wallet.Balance(r.Context(), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newWalletResponse(wal))
}

// ListTransactionsHandler handles GET /wallet/transactions?limit=N
func (h *HandlerProvider) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rows, err := h.svc.Wallet.History(r.Context(), userID(r), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, transactionResponse{WalletTransaction: row, AmountFormatted: models.FormatAmount(row.Amount)})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

// ReconcileHandler handles GET /admin/wallets/{userId}/reconcile
func (h *HandlerProvider) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Wallet.Reconcile(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultPageLimit, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errInvalid("limit must be a positive integer")
	}

	return n, nil
}
