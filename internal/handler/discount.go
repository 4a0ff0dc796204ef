package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/internal/domain/order"
)

type applyDiscountRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type applyDiscountResponse struct {
	Applied  bool              `json:"applied"`
	Discount *discountResponse `json:"discount,omitempty"`
	Order    *orderResponse    `json:"order,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Code     string            `json:"code,omitempty"`
}

type previewResponse struct {
	Eligible bool   `json:"eligible"`
	Amount   string `json:"amount"`
	Reason   string `json:"reason,omitempty"`
	Code     string `json:"code,omitempty"`
}

// rejectionStatus is 404 when the order or coupon does not exist and 400 for
// every other rejected application.
func rejectionStatus(err error) int {
	if errors.Is(err, order.ErrNotFound) || errors.Is(err, coupon.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// ApplyDiscount handles POST /orders/{id}/discount.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	orderID := chi.URLParam(r, "id")

	res, err := h.discounts.Apply(r.Context(), req.Code, orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.Applied {
		writeJSON(w, r, rejectionStatus(res.Err), applyDiscountResponse{
			Reason: res.Reason,
			Code:   order.ReasonCode(res.Err),
		})
		return
	}

	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d := toDiscountResponse(*res.Discount)
	body := toOrderResponse(*o)
	writeJSON(w, r, http.StatusCreated, applyDiscountResponse{
		Applied:  true,
		Discount: &d,
		Order:    &body,
	})
}

// PreviewDiscount handles GET /orders/{id}/discount/preview?code=.
func (h *Handler) PreviewDiscount(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		h.fail(w, r, &ValidationError{Fields: map[string]string{"code": "is required"}})
		return
	}

	p, err := h.discounts.Preview(r.Context(), code, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := previewResponse{
		Eligible: p.Eligible,
		Amount:   money(p.Amount),
		Reason:   p.Reason,
	}
	if !p.Eligible {
		resp.Code = order.ReasonCode(p.Err)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// RemoveDiscount handles DELETE /orders/{id}/discount/{couponID}.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	couponID, err := pathID(r, "couponID")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.discounts.Remove(r.Context(), chi.URLParam(r, "id"), couponID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
