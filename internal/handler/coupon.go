package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

type couponRequest struct {
	Code       string          `json:"code" validate:"required,max=64"`
	Discount   decimal.Decimal `json:"discount" validate:"gte=0"`
	Type       string          `json:"type" validate:"required,oneof=percent currency full"`
	ValidFrom  time.Time       `json:"valid_from" validate:"required"`
	ValidUntil *time.Time      `json:"valid_until"`
	Quantity   int             `json:"quantity" validate:"gte=0"`
	Recursive  bool            `json:"recursive"`
	Products   []int64         `json:"products" validate:"dive,gt=0"`
	Customers  []int64         `json:"customers" validate:"dive,gt=0"`
}

// couponPatchRequest updates only the fields present in the body. Products
// and customers replace the restriction sets; an empty list clears them.
type couponPatchRequest struct {
	Code       *string             `json:"code" validate:"omitempty,min=1,max=64"`
	Discount   *decimal.Decimal    `json:"discount" validate:"omitempty,gte=0"`
	Type       *string             `json:"type" validate:"omitempty,oneof=percent currency full"`
	ValidFrom  *time.Time          `json:"valid_from"`
	ValidUntil Nullable[time.Time] `json:"valid_until"`
	Quantity   *int                `json:"quantity" validate:"omitempty,gte=0"`
	Recursive  *bool               `json:"recursive"`
	Products   *[]int64            `json:"products" validate:"omitempty,dive,gt=0"`
	Customers  *[]int64            `json:"customers" validate:"omitempty,dive,gt=0"`
}

func (p couponPatchRequest) patch() coupon.Patch {
	out := coupon.Patch{
		Code:          p.Code,
		Discount:      p.Discount,
		ValidFrom:     p.ValidFrom,
		ValidUntil:    p.ValidUntil.Value,
		SetValidUntil: p.ValidUntil.Set,
		Quantity:      p.Quantity,
		Recursive:     p.Recursive,
	}
	if p.Type != nil {
		t := coupon.Type(*p.Type)
		out.Type = &t
	}
	if p.Products != nil {
		out.ProductIDs = *p.Products
		out.SetProducts = true
	}
	if p.Customers != nil {
		out.CustomerIDs = *p.Customers
		out.SetCustomers = true
	}
	return out
}

type couponResponse struct {
	ID         int64      `json:"id"`
	Code       string     `json:"code"`
	Discount   string     `json:"discount"`
	Type       string     `json:"type"`
	CanUseFor  string     `json:"can_use_for"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until"`
	Quantity   int        `json:"quantity"`
	Recursive  bool       `json:"recursive"`
	Products   []int64    `json:"products"`
	Customers  []int64    `json:"customers"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toCouponResponse(c coupon.Coupon) couponResponse {
	return couponResponse{
		ID:         c.ID,
		Code:       c.Code,
		Discount:   money(c.Discount),
		Type:       string(c.Type),
		CanUseFor:  string(c.Scope()),
		ValidFrom:  c.ValidFrom,
		ValidUntil: c.ValidUntil,
		Quantity:   c.Quantity,
		Recursive:  c.Recursive,
		Products:   nonNil(c.ProductIDs),
		Customers:  nonNil(c.CustomerIDs),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// ListCoupons handles GET /coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	f := coupon.Filter{Code: r.URL.Query().Get("code")}
	page, err := h.coupons.List(r.Context(), f, pagination.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pagination.Map(page, toCouponResponse))
}

// CreateCoupon handles POST /coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	c := &coupon.Coupon{
		Code:        req.Code,
		Discount:    req.Discount,
		Type:        coupon.Type(req.Type),
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		Quantity:    req.Quantity,
		Recursive:   req.Recursive,
		ProductIDs:  req.Products,
		CustomerIDs: req.Customers,
	}
	if err := h.coupons.Create(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toCouponResponse(*c))
}

// GetCoupon handles GET /coupons/{id}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.coupons.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCouponResponse(*c))
}

// UpdateCoupon handles PUT /coupons/{id}.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req couponPatchRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.coupons.Update(r.Context(), id, req.patch())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCouponResponse(*c))
}

// DeleteCoupon handles DELETE /coupons/{id}.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.coupons.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
