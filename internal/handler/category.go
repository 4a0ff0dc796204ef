package handler

import (
	"net/http"
	"time"

	"github.com/fabianovilela/buymore/internal/domain/category"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

type categoryRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	ImageID     *int64 `json:"image_id" validate:"omitempty,gt=0"`
}

type categoryPatchRequest struct {
	Title       *string         `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string         `json:"description"`
	ImageID     Nullable[int64] `json:"image_id"`
}

type categoryResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageID     *int64    `json:"image_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCategoryResponse(c category.Category) categoryResponse {
	return categoryResponse{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		ImageID:     c.ImageID,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// ListCategories handles GET /categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	f := category.Filter{Title: r.URL.Query().Get("title")}
	page, err := h.categories.List(r.Context(), f, pagination.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pagination.Map(page, toCategoryResponse))
}

// CreateCategory handles POST /categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := &category.Category{
		Title:       req.Title,
		Description: req.Description,
		ImageID:     req.ImageID,
	}
	if err := h.categories.Create(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toCategoryResponse(*c))
}

// GetCategory handles GET /categories/{id}.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.categories.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCategoryResponse(*c))
}

// UpdateCategory handles PUT /categories/{id}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req categoryPatchRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.categories.Update(r.Context(), id, category.Patch{
		Title:       req.Title,
		Description: req.Description,
		ImageID:     req.ImageID.Value,
		SetImage:    req.ImageID.Set,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCategoryResponse(*c))
}

// DeleteCategory handles DELETE /categories/{id}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.categories.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
