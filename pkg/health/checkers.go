package health

import (
	"context"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running,
// which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("%d goroutines running, limit %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when one of the recent stop-the-world GC pauses took
// longer than threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, p := range stats.Pause {
			if p > threshold {
				return errors.Errorf("gc pause %s over %s", p, threshold)
			}
		}
		return nil
	}
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// DirWritableCheck fails when no file can be created in dir. It guards the
// image upload directory.
func DirWritableCheck(dir string) CheckFunc {
	return func(context.Context) error {
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return errors.Wrap(err, "create probe file")
		}
		name := f.Name()
		if err := f.Close(); err != nil {
			return errors.Wrap(err, "close probe file")
		}
		return os.Remove(name)
	}
}
