package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabianovilela/buymore/pkg/health"
)

func TestNewRouter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1700000000000-abc.png"), []byte("png-bytes"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	probes := health.New()
	probes.SetReady(true)

	var apiPath string
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiPath = r.URL.Path
		w.WriteHeader(http.StatusTeapot)
	})
	router := newRouter(probes, api, dir)

	serve := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, serve("/livez").Code)
	assert.Equal(t, http.StatusOK, serve("/readyz").Code)

	w := serve("/v1/admin/coupons")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "/v1/admin/coupons", apiPath)

	w = serve("/uploads/1700000000000-abc.png")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve("/uploads/missing.png").Code)
	assert.Equal(t, http.StatusNotFound, serve("/uploads/nested/").Code)
	assert.Equal(t, http.StatusNotFound, serve("/unknown").Code)
}

func TestNewRouter_NotReady(t *testing.T) {
	router := newRouter(health.New(), http.NotFoundHandler(), t.TempDir())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
