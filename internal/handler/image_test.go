package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianovilela/buymore/internal/domain/image"
)

type stubImages struct {
	ImageService
	uploads  []string
	contents []string
	replaced image.Upload
}

func (s *stubImages) Upload(_ context.Context, uploads []image.Upload) (*image.UploadResult, error) {
	res := &image.UploadResult{Successes: []image.Image{}, Errors: []image.UploadError{}}
	for i, up := range uploads {
		data, err := io.ReadAll(up.Content)
		if err != nil {
			return nil, err
		}
		s.uploads = append(s.uploads, up.Name)
		s.contents = append(s.contents, string(data))
		if up.Name == "notes.txt" {
			res.Errors = append(res.Errors, image.UploadError{Name: up.Name, Reason: image.ErrUnsupportedType.Error()})
			continue
		}
		res.Successes = append(res.Successes, image.Image{
			ID:           int64(i + 1),
			Path:         "1700000000000-abc.png",
			Size:         up.Size,
			OriginalName: up.Name,
			Extension:    "png",
		})
	}
	return res, nil
}

func (s *stubImages) Replace(_ context.Context, id int64, up image.Upload) (*image.Image, error) {
	s.replaced = up
	return &image.Image{ID: id, Path: "new.png", OriginalName: up.Name, Extension: "png"}, nil
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImages(t *testing.T) {
	svc := &stubImages{}
	h := newTestHandler(Services{Images: svc})

	body, contentType := multipartBody(t, uploadField, map[string]string{
		"cat.png":   "PNG-DATA",
		"notes.txt": "hello",
	})
	req := httptest.NewRequest(http.MethodPost, "/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.ElementsMatch(t, []string{"cat.png", "notes.txt"}, svc.uploads)
	assert.ElementsMatch(t, []string{"PNG-DATA", "hello"}, svc.contents)

	got := decode[uploadResponse](t, rec)
	require.Len(t, got.Successes, 1)
	assert.Equal(t, "cat.png", got.Successes[0].OriginalName)
	assert.Equal(t, "http://cdn.test/uploads/1700000000000-abc.png", got.Successes[0].URL)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "notes.txt", got.Errors[0].Name)
}

func TestUploadImages_AllRejected(t *testing.T) {
	h := newTestHandler(Services{Images: &stubImages{}})

	body, contentType := multipartBody(t, uploadField, map[string]string{"notes.txt": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	got := decode[uploadResponse](t, rec)
	assert.Empty(t, got.Successes)
	assert.Len(t, got.Errors, 1)
}

func TestUploadImages_MissingField(t *testing.T) {
	h := newTestHandler(Services{Images: &stubImages{}})

	body, contentType := multipartBody(t, "file", map[string]string{"cat.png": "PNG"})
	req := httptest.NewRequest(http.MethodPost, "/images", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Details, uploadField)

	rec = do(t, h, http.MethodPost, "/images", `{"not":"multipart"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReplaceImage(t *testing.T) {
	svc := &stubImages{}
	h := newTestHandler(Services{Images: svc})

	body, contentType := multipartBody(t, uploadField, map[string]string{"dog.png": "PNG"})
	req := httptest.NewRequest(http.MethodPut, "/images/4", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "dog.png", svc.replaced.Name)
	got := decode[imageResponse](t, rec)
	assert.Equal(t, int64(4), got.ID)
	assert.Equal(t, "http://cdn.test/uploads/new.png", got.URL)
}
