package handler

import (
	"net/http"
	"time"

	"github.com/fabianovilela/buymore/internal/domain/user"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

type userRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Surname  string `json:"surname" validate:"max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	ImageID  *int64 `json:"image_id" validate:"omitempty,gt=0"`
}

type userPatchRequest struct {
	Name     *string         `json:"name" validate:"omitempty,min=1,max=255"`
	Surname  *string         `json:"surname" validate:"omitempty,max=255"`
	Email    *string         `json:"email" validate:"omitempty,email"`
	Password *string         `json:"password" validate:"omitempty,min=8"`
	ImageID  Nullable[int64] `json:"image_id"`
}

// userResponse never carries the password hash.
type userResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	ImageID   *int64    `json:"image_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserResponse(u user.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Surname:   u.Surname,
		FullName:  u.FullName(),
		Email:     u.Email,
		ImageID:   u.ImageID,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	f := user.Filter{Name: r.URL.Query().Get("name")}
	page, err := h.users.List(r.Context(), f, pagination.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pagination.Map(page, toUserResponse))
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.Create(r.Context(), user.CreateRequest{
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Password: req.Password,
		ImageID:  req.ImageID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toUserResponse(*u))
}

// GetUser handles GET /users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toUserResponse(*u))
}

// UpdateUser handles PUT /users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req userPatchRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.Update(r.Context(), id, user.Patch{
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Password: req.Password,
		ImageID:  req.ImageID.Value,
		SetImage: req.ImageID.Set,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toUserResponse(*u))
}

// DeleteUser handles DELETE /users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
