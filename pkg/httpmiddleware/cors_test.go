package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(method, origin string, preflight bool) *http.Request {
	req := httptest.NewRequest(method, "/v1/admin/coupons", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	return req
}

func TestCORS_AnyOrigin(t *testing.T) {
	handler := CORS(CORSConfig{})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodGet, "https://admin.buymore.com", false))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), RequestIDHeader)
	assert.Empty(t, w.Header().Values("Vary"))
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS(CORSConfig{
		AllowOrigins: []string{"https://Admin.BuyMore.com"},
		MaxAge:       600,
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodOptions, "https://admin.buymore.com", true))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://Admin.BuyMore.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "api_key")
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	assert.ElementsMatch(t,
		[]string{"Origin", "Access-Control-Request-Method", "Access-Control-Request-Headers"},
		w.Header().Values("Vary"),
	)
}

func TestCORS_RejectedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowOrigins: []string{"https://admin.buymore.com"}})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodOptions, "https://evil.example", true))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodGet, "https://evil.example", false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"Origin"}, w.Header().Values("Vary"))
}

func TestCORS_Credentials(t *testing.T) {
	handler := CORS(CORSConfig{AllowOrigins: []string{"*"}, AllowCredentials: true})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodGet, "https://admin.buymore.com", false))

	assert.Equal(t, "https://admin.buymore.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, []string{"Origin"}, w.Header().Values("Vary"))
}

func TestCORS_NoOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowOrigins: []string{"https://admin.buymore.com"}})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodGet, "", false))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"Origin"}, w.Header().Values("Vary"))
}
