package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/services/dispute"
)

// CreateOrderHandler handles POST /orders
func (h *HandlerProvider) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest

	err := h.decode(w, r, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	o, err := h.svc.Orders.CreateOrder(r.Context(), req.ListingID, userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

// GetOrderHandler handles GET /orders/{id}
func (h *HandlerProvider) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.GetOrder(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// ConfirmDeliveryHandler handles POST /orders/{id}/confirm
func (h *HandlerProvider) ConfirmDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.ConfirmDelivery(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// OpenDisputeHandler handles POST /orders/{id}/disputes
func (h *HandlerProvider) OpenDisputeHandler(w http.ResponseWriter, r *http.Request) {
	var req openDisputeRequest

	err := h.decode(w, r, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	d, err := h.svc.Disputes.OpenDispute(r.Context(), dispute.OpenParams{
		OrderID:  chi.URLParam(r, "id"),
		OpenerID: userID(r),
		Reason:   req.Reason,
		Note:     req.Note,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newDisputeResponse(d))
}

// GetDisputeHandler handles GET /disputes/{id}
func (h *HandlerProvider) GetDisputeHandler(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Disputes.GetDispute(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newDisputeResponse(d))
}

// ResolveDisputeHandler handles POST /admin/disputes/{id}/resolve. Split
// amounts are only read for PARTIAL; an empty amount there means zero.
func (h *HandlerProvider) ResolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest

	err := h.decode(w, r, &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	p := dispute.ResolveParams{
		DisputeID:     chi.URLParam(r, "id"),
		AdjudicatorID: adminID(r),
		Resolution:    models.Resolution(req.Resolution),
		Note:          req.Note,
	}

	if p.Resolution == models.ResolutionPartial {
		p.BuyerAmount, err = optionalAmount(req.BuyerAmount)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		p.SellerAmount, err = optionalAmount(req.SellerAmount)
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}

	d, err := h.svc.Disputes.ResolveDispute(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newDisputeResponse(d))
}

// optionalAmount parses an amount where "" and any spelling of zero mean
// zero. Negative values still fail.
func optionalAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := decimal.NewFromString(s)
	if err == nil && d.IsZero() {
		return 0, nil
	}

	return models.ParseAmount(s)
}
