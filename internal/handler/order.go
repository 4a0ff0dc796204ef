package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/internal/domain/order"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

type orderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
	// Price defaults to the current product price when omitted.
	Price *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
}

type orderRequest struct {
	UserID int64              `json:"user_id" validate:"required,gt=0"`
	Status string             `json:"status" validate:"omitempty,oneof=pending cancelled shipped paid finished"`
	Items  []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type orderPatchRequest struct {
	Status *string             `json:"status" validate:"omitempty,oneof=pending cancelled shipped paid finished"`
	Items  *[]orderItemRequest `json:"items" validate:"omitempty,min=1,dive"`
}

func toItemInputs(items []orderItemRequest) []order.ItemInput {
	return lo.Map(items, func(it orderItemRequest, _ int) order.ItemInput {
		return order.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
	})
}

type orderItemResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
}

type discountResponse struct {
	ID         int64     `json:"id"`
	CouponID   int64     `json:"coupon_id"`
	CouponCode string    `json:"coupon_code"`
	Recursive  bool      `json:"recursive"`
	Amount     string    `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	UserID    int64               `json:"user_id"`
	Status    string              `json:"status"`
	Subtotal  string              `json:"subtotal"`
	Discount  string              `json:"discount"`
	Total     string              `json:"total"`
	Items     []orderItemResponse `json:"items"`
	Discounts []discountResponse  `json:"discounts"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toDiscountResponse(d order.Discount) discountResponse {
	return discountResponse{
		ID:         d.ID,
		CouponID:   d.CouponID,
		CouponCode: d.CouponCode,
		Recursive:  d.Recursive,
		Amount:     money(d.Amount),
		CreatedAt:  d.CreatedAt,
	}
}

func toOrderResponse(o order.Order) orderResponse {
	return orderResponse{
		ID:       o.ID,
		UserID:   o.UserID,
		Status:   string(o.Status),
		Subtotal: money(o.Subtotal()),
		Discount: money(o.DiscountTotal()),
		Total:    money(o.Total()),
		Items: lo.Map(o.Items, func(it order.Item, _ int) orderItemResponse {
			return orderItemResponse{
				ID:        it.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     money(it.Price),
				Subtotal:  money(it.Subtotal()),
			}
		}),
		Discounts: lo.Map(o.Discounts, func(d order.Discount, _ int) discountResponse {
			return toDiscountResponse(d)
		}),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// ListOrders handles GET /orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.Filter{Status: order.Status(q.Get("status")), ID: q.Get("id")}
	page, err := h.orders.List(r.Context(), f, pagination.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pagination.Map(page, toOrderResponse))
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		UserID: req.UserID,
		Status: order.Status(req.Status),
		Items:  toItemInputs(req.Items),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toOrderResponse(*o))
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(*o))
}

// UpdateOrder handles PUT /orders/{id}. Applied discounts are kept as they
// are when items change.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderPatchRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var upd order.UpdateRequest
	if req.Status != nil {
		s := order.Status(*req.Status)
		upd.Status = &s
	}
	if req.Items != nil {
		upd.Items = toItemInputs(*req.Items)
		upd.SetItems = true
	}

	o, err := h.orders.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(*o))
}

// DeleteOrder handles DELETE /orders/{id}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
