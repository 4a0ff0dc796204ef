package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/fabianovilela/buymore/internal/domain/auth"
)

// APIKeyHeader carries the raw API key. An "Authorization: Bearer <key>"
// header is accepted as well.
const APIKeyHeader = "api_key"

// Authenticator validates raw API keys against a scope.
type Authenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

type keyInfoCtx struct{}

// KeyInfoFrom returns the API key that authenticated the request, if any.
func KeyInfoFrom(ctx context.Context) (*auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(keyInfoCtx{}).(*auth.APIKeyInfo)
	return info, ok
}

// SecurityHandler authenticates admin API requests by API key.
type SecurityHandler struct {
	auth  Authenticator
	scope string
}

// NewSecurityHandler creates a SecurityHandler requiring keys with scope.
func NewSecurityHandler(a Authenticator, scope string) *SecurityHandler {
	return &SecurityHandler{auth: a, scope: scope}
}

// Middleware rejects requests without a valid key: 401 for missing or
// unknown keys, 403 for keys lacking the scope.
func (s *SecurityHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := s.auth.Authenticate(ctx, requestKey(r), s.scope)
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		case errors.Is(err, auth.ErrForbidden):
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		default:
			zctx.From(ctx).Error("Authenticate request", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}

		ctx = context.WithValue(ctx, keyInfoCtx{}, info)
		ctx = zctx.With(ctx, zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
