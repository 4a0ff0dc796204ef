package handler

import (
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/samber/lo"

	"github.com/fabianovilela/buymore/internal/domain/image"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

const (
	uploadField = "images"
	// maxUploadBody bounds a whole multipart request; single files are
	// bounded by image.MaxSize.
	maxUploadBody = 32 << 20
)

type imageResponse struct {
	ID           int64     `json:"id"`
	URL          string    `json:"url"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	OriginalName string    `json:"original_name"`
	Extension    string    `json:"extension"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type uploadResponse struct {
	Successes []imageResponse     `json:"successes"`
	Errors    []image.UploadError `json:"errors"`
}

func (h *Handler) toImageResponse(img image.Image) imageResponse {
	return imageResponse{
		ID:           img.ID,
		URL:          h.imageURL(img.Path),
		Path:         img.Path,
		Size:         img.Size,
		OriginalName: img.OriginalName,
		Extension:    img.Extension,
		CreatedAt:    img.CreatedAt,
		UpdatedAt:    img.UpdatedAt,
	}
}

func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// ListImages handles GET /images.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	page, err := h.images.List(r.Context(), pagination.FromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pagination.Map(page, h.toImageResponse))
}

// UploadImages handles POST /images with one or more files in the "images"
// multipart field.
func (h *Handler) UploadImages(w http.ResponseWriter, r *http.Request) {
	files, err := multipartFiles(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	uploads := make([]image.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			h.fail(w, r, errors.Wrapf(err, "open %q", fh.Filename))
			return
		}
		defer func() { _ = f.Close() }()
		uploads = append(uploads, image.Upload{Name: fh.Filename, Size: fh.Size, Content: f})
	}

	res, err := h.images.Upload(r.Context(), uploads)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if len(res.Successes) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, r, status, uploadResponse{
		Successes: lo.Map(res.Successes, func(img image.Image, _ int) imageResponse {
			return h.toImageResponse(img)
		}),
		Errors: nonNil(res.Errors),
	})
}

// GetImage handles GET /images/{id}.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	img, err := h.images.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toImageResponse(*img))
}

// ReplaceImage handles PUT /images/{id}. Only the first file of the
// "images" field is used.
func (h *Handler) ReplaceImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	files, err := multipartFiles(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		h.fail(w, r, errors.Wrapf(err, "open %q", fh.Filename))
		return
	}
	defer func() { _ = f.Close() }()

	img, err := h.images.Replace(r.Context(), id, image.Upload{Name: fh.Filename, Size: fh.Size, Content: f})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toImageResponse(*img))
}

// DeleteImage handles DELETE /images/{id}.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.images.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func multipartFiles(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, image.ErrTooLarge
		}
		return nil, &ValidationError{Fields: map[string]string{uploadField: "must be a multipart form"}}
	}
	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		return nil, &ValidationError{Fields: map[string]string{uploadField: "is required"}}
	}
	return files, nil
}
