// Package pagination parses page/limit query parameters and shapes paged
// list responses.
package pagination

import (
	"context"
	"net/http"
	"strconv"
)

const (
	// DefaultLimit is used when the request carries no limit.
	DefaultLimit = 20
	// DefaultMaxLimit caps the limit when no explicit maximum is configured.
	DefaultMaxLimit = 100
)

// Request is the page a client asked for. Page is 1-based.
type Request struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip.
func (r Request) Offset() int {
	if r.Page < 1 {
		return 0
	}
	return (r.Page - 1) * r.Limit
}

// Page is the JSON envelope for paged lists.
type Page[T any] struct {
	Total    int64 `json:"total"`
	PerPage  int   `json:"perPage"`
	Page     int   `json:"page"`
	LastPage int   `json:"lastPage"`
	Data     []T   `json:"data"`
}

// NewPage builds a Page from one slice of results and the total row count.
func NewPage[T any](items []T, total int64, r Request) Page[T] {
	if items == nil {
		items = []T{}
	}
	last := 0
	if r.Limit > 0 {
		last = int((total + int64(r.Limit) - 1) / int64(r.Limit))
	}
	return Page[T]{
		Total:    total,
		PerPage:  r.Limit,
		Page:     r.Page,
		LastPage: last,
		Data:     items,
	}
}

// Map converts the items of p, keeping the paging metadata.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Data))
	for i, v := range p.Data {
		out[i] = fn(v)
	}
	return Page[U]{
		Total:    p.Total,
		PerPage:  p.PerPage,
		Page:     p.Page,
		LastPage: p.LastPage,
		Data:     out,
	}
}

type requestKey struct{}

// WithRequest stores r in ctx.
func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// FromContext returns the pagination request stored in ctx, or the first
// page with DefaultLimit.
func FromContext(ctx context.Context) Request {
	if r, ok := ctx.Value(requestKey{}).(Request); ok {
		return r
	}
	return Request{Page: 1, Limit: DefaultLimit}
}

// Parse reads page, limit and perPage from the query string. perPage
// overrides limit. Invalid or missing values fall back to defaults and the
// limit is capped at maxLimit.
func Parse(r *http.Request, defaultLimit, maxLimit int) Request {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}

	q := r.URL.Query()
	req := Request{
		Page:  positiveInt(q.Get("page"), 1),
		Limit: positiveInt(q.Get("limit"), defaultLimit),
	}
	if perPage := positiveInt(q.Get("perPage"), 0); perPage > 0 {
		req.Limit = perPage
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	return req
}

// Middleware parses pagination parameters of GET requests into the request
// context.
func Middleware(defaultLimit, maxLimit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				ctx := WithRequest(r.Context(), Parse(r, defaultLimit, maxLimit))
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func positiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
