// Package health serves liveness and readiness probes.
//
// Registered checks run in the background and flip state only after a
// number of consecutive failures or successes, so a single slow database
// ping does not take the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type probe int

const (
	liveness probe = iota
	readiness
)

func (p probe) String() string {
	if p == liveness {
		return "liveness"
	}
	return "readiness"
}

// CheckOption tunes a single check.
type CheckOption func(*check)

// WithTimeout bounds each run of the check. Defaults to one second.
func WithTimeout(d time.Duration) CheckOption {
	return func(c *check) { c.timeout = d }
}

// WithThresholds sets how many consecutive failures mark the check unhealthy
// and how many consecutive successes mark it healthy again. Defaults to 3
// and 1.
func WithThresholds(failure, success int) CheckOption {
	return func(c *check) {
		if failure > 0 {
			c.failureThreshold = failure
		}
		if success > 0 {
			c.successThreshold = success
		}
	}
}

// check is run by exactly one goroutine; only healthy and lastErr are read
// concurrently.
type check struct {
	name             string
	probe            probe
	fn               CheckFunc
	timeout          time.Duration
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func (c *check) err() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and reports whether its state flipped.
func (c *check) run(ctx context.Context) (flipped bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	was := c.healthy.Load()
	if err != nil {
		c.successes = 0
		c.fails++
		if c.fails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.fails = 0
		c.successes++
		if c.successes >= c.successThreshold {
			c.healthy.Store(true)
		}
	}
	return was != c.healthy.Load()
}

// Health tracks probe checks and the manual readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New creates a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

func (h *Health) add(p probe, name string, fn CheckFunc, opts []CheckOption) {
	c := &check{
		name:             name,
		probe:            p,
		fn:               fn,
		timeout:          time.Second,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(c)
	}
	c.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, fn CheckFunc, opts ...CheckOption) {
	h.add(liveness, name, fn, opts)
}

// AddReadinessCheck registers a check that decides whether the process
// should receive traffic, such as database connectivity.
func (h *Health) AddReadinessCheck(name string, fn CheckFunc, opts ...CheckOption) {
	h.add(readiness, name, fn, opts)
}

// Start runs every registered check immediately and then once per interval,
// each in its own goroutine, until Stop or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	for _, c := range checks {
		go loop(ctx, c, interval)
	}
}

func loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if c.run(ctx) {
			lg := zctx.From(ctx).With(
				zap.String("check", c.name),
				zap.Stringer("probe", c.probe),
			)
			if c.healthy.Load() {
				lg.Info("Health check recovered")
			} else {
				lg.Warn("Health check failing", zap.Error(c.err()))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the background checks. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag: true once initialization is done,
// false when shutdown begins.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, c := range h.snapshot(readiness) {
		if !c.healthy.Load() {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(p probe) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*check, 0, len(h.checks))
	for _, c := range h.checks {
		if c.probe == p {
			out = append(out, c)
		}
	}
	return out
}

// Report is the JSON body of the probe endpoints. Checks maps every check to
// "ok" or its last error.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func report(checks []*check, extra map[string]string) (Report, bool) {
	r := Report{Status: "ok", Checks: make(map[string]string, len(checks)+len(extra))}
	healthy := true
	for _, c := range checks {
		if c.healthy.Load() {
			r.Checks[c.name] = "ok"
			continue
		}
		healthy = false
		if err := c.err(); err != nil {
			r.Checks[c.name] = err.Error()
		} else {
			r.Checks[c.name] = "unhealthy"
		}
	}
	for k, v := range extra {
		healthy = false
		r.Checks[k] = v
	}
	if !healthy {
		r.Status = "unhealthy"
	}
	if len(r.Checks) == 0 {
		r.Checks = nil
	}
	return r, healthy
}

// LiveEndpoint serves /livez: 200 when all liveness checks pass, 503
// otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	r, ok := report(h.snapshot(liveness), nil)
	write(w, r, ok)
}

// ReadyEndpoint serves /readyz: 200 when the service is marked ready and all
// readiness checks pass, 503 otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	var extra map[string]string
	if !h.ready.Load() {
		extra = map[string]string{"ready": "service is not ready"}
	}
	r, ok := report(h.snapshot(readiness), extra)
	write(w, r, ok)
}

func write(w http.ResponseWriter, r Report, ok bool) {
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(r)
}
