package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

var (
	defaultCORSMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", "api_key", RequestIDHeader}
	defaultCORSExpose  = []string{RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
)

// CORSConfig configures Cross-Origin Resource Sharing.
type CORSConfig struct {
	// AllowOrigins lists the permitted origins, matched case-insensitively.
	// Empty or "*" permits every origin.
	AllowOrigins []string `yaml:"allow_origins"`
	// AllowMethods defaults to GET, POST, PUT, DELETE and OPTIONS.
	AllowMethods []string `yaml:"allow_methods"`
	// AllowHeaders defaults to the headers the admin API reads.
	AllowHeaders []string `yaml:"allow_headers"`
	// ExposeHeaders defaults to the request id and rate limit headers.
	ExposeHeaders []string `yaml:"expose_headers"`
	// AllowCredentials makes the middleware echo the concrete origin instead
	// of "*".
	AllowCredentials bool `yaml:"allow_credentials"`
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header.
	MaxAge int `yaml:"max_age"`
}

type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]string // lowercase -> configured
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(orDefault(cfg.AllowMethods, defaultCORSMethods), ", "),
		headers:     strings.Join(orDefault(cfg.AllowHeaders, defaultCORSHeaders), ", "),
		expose:      strings.Join(orDefault(cfg.ExposeHeaders, defaultCORSExpose), ", "),
		credentials: cfg.AllowCredentials,
	}
	p.anyOrigin = len(cfg.AllowOrigins) == 0
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[strings.ToLower(o)] = o
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return p
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is rejected.
func (p *corsPolicy) allowOrigin(origin string) string {
	if p.anyOrigin {
		if p.credentials {
			return origin
		}
		return "*"
	}
	return p.origins[strings.ToLower(origin)]
}

// varies reports whether the response depends on the Origin header.
func (p *corsPolicy) varies() bool {
	return !p.anyOrigin || p.credentials
}

func (p *corsPolicy) preflight(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	if allowed := p.allowOrigin(origin); allowed != "" {
		h.Set("Access-Control-Allow-Origin", allowed)
		h.Set("Access-Control-Allow-Methods", p.methods)
		h.Set("Access-Control-Allow-Headers", p.headers)
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if p.maxAge != "" {
			h.Set("Access-Control-Max-Age", p.maxAge)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *corsPolicy) actual(w http.ResponseWriter, origin string) {
	h := w.Header()
	if p.varies() {
		h.Add("Vary", "Origin")
	}
	allowed := p.allowOrigin(origin)
	if allowed == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allowed)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.expose != "" {
		h.Set("Access-Control-Expose-Headers", p.expose)
	}
}

// CORS answers preflight requests itself and decorates every other
// cross-origin response with the allow headers. Requests from rejected
// origins are still served, without CORS headers.
func CORS(cfg CORSConfig) Middleware {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
				if p.varies() {
					w.Header().Add("Vary", "Origin")
				}
			case r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "":
				p.preflight(w, origin)
				return
			default:
				p.actual(w, origin)
			}
			next.ServeHTTP(w, r)
		})
	}
}
