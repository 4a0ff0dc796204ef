package handler

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, httptest.NewRequest(http.MethodGet, "/v1/admin/coupons", nil), http.StatusCreated, map[string]int{"id": 7})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":7}`, w.Body.String())
}

func TestWriteJSON_EncodeErrorLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := httptest.NewRequest(http.MethodGet, "/v1/admin/orders", nil)
	r = r.WithContext(zctx.Base(r.Context(), zap.New(core)))

	w := httptest.NewRecorder()
	writeJSON(w, r, http.StatusOK, map[string]float64{"amount": math.NaN()})

	assert.Equal(t, http.StatusOK, w.Code)

	entries := logs.FilterMessage("Write response").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/v1/admin/orders", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Contains(t, fields["error"], "NaN")
}
