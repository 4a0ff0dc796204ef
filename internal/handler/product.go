package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fabianovilela/buymore/internal/domain/product"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

type productRequest struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	ImageID     *int64          `json:"image_id" validate:"omitempty,gt=0"`
}

type productPatchRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	ImageID     Nullable[int64]  `json:"image_id"`
}

type productResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	ImageID     *int64    `json:"image_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       money(p.Price),
		ImageID:     p.ImageID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	f := product.Filter{Name: r.URL.Query().Get("name")}
	page, err := h.products.List(r.Context(), f, pagination.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pagination.Map(page, toProductResponse))
}

// CreateProduct handles POST /products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p := &product.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageID:     req.ImageID,
	}
	if err := h.products.Create(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toProductResponse(*p))
}

// GetProduct handles GET /products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toProductResponse(*p))
}

// UpdateProduct handles PUT /products/{id}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req productPatchRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), id, product.Patch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageID:     req.ImageID.Value,
		SetImage:    req.ImageID.Set,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toProductResponse(*p))
}

// DeleteProduct handles DELETE /products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
