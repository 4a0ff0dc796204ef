package app

import (
	"context"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fabianovilela/buymore/internal/domain/auth"
	"github.com/fabianovilela/buymore/internal/domain/category"
	"github.com/fabianovilela/buymore/internal/domain/coupon"
	"github.com/fabianovilela/buymore/internal/domain/image"
	"github.com/fabianovilela/buymore/internal/domain/order"
	"github.com/fabianovilela/buymore/internal/domain/product"
	"github.com/fabianovilela/buymore/internal/domain/user"
	"github.com/fabianovilela/buymore/internal/handler"
	"github.com/fabianovilela/buymore/internal/repository"
	"github.com/fabianovilela/buymore/internal/storage/upload"
	"github.com/fabianovilela/buymore/pkg/health"
	"github.com/fabianovilela/buymore/pkg/httpmiddleware"
)

const (
	apiPrefix    = "/v1/admin"
	uploadsRoute = "/uploads"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	if err := repository.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	api, healthSvc, err := newServer(ctx, cfg, pool, m)
	if err != nil {
		return err
	}
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           api,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	healthSvc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newServer builds the services on top of pool and returns the wrapped HTTP
// handler with the health probes it serves. The probes are not started.
func newServer(ctx context.Context, cfg *Config, pool *pgxpool.Pool, m httpmiddleware.Telemetry) (http.Handler, *health.Health, error) {
	files, err := upload.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create upload store")
	}

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", health.GoroutineCountCheck(10000))
	healthSvc.AddReadinessCheck("postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))
	healthSvc.AddReadinessCheck("uploads", health.DirWritableCheck(files.Root()))

	// Repositories.
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	imageRepo := repository.NewImageRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	discounts, err := order.NewDiscountService(
		repository.NewDiscountStore(pool), couponRepo, orderRepo,
		order.WithMeterProvider(m.MeterProvider()),
		order.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create discount service")
	}

	h := handler.NewHandler(
		handler.HandlerConfig{
			ImageBaseURL: cfg.ImageBaseURL,
			DefaultLimit: cfg.Pagination.DefaultLimit,
			MaxLimit:     cfg.Pagination.MaxLimit,
		},
		handler.Services{
			Coupons:    coupon.NewService(couponRepo),
			Orders:     order.NewService(orderRepo, productRepo),
			Discounts:  discounts,
			Products:   product.NewService(productRepo),
			Categories: category.NewService(repository.NewCategoryRepository(pool)),
			Users:      user.NewService(userRepo),
			Images:     image.NewService(imageRepo, files),
		},
	)
	security := handler.NewSecurityHandler(
		auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
		auth.ScopeAdmin,
	)

	mux := newRouter(healthSvc, h.Routes(security.Middleware), files.Root())
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(cfg.CORS.middleware()),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("buymore-admin", routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	), healthSvc, nil
}

// newRouter mounts the probes, the uploaded files and the admin API on one
// router.
func newRouter(probes *health.Health, api http.Handler, uploadDir string) chi.Router {
	r := chi.NewRouter()
	r.Get("/livez", probes.LiveEndpoint)
	r.Get("/readyz", probes.ReadyEndpoint)
	r.Handle(uploadsRoute+"/*", http.StripPrefix(uploadsRoute, http.FileServer(uploadFS{http.Dir(uploadDir)})))
	r.Mount(apiPrefix, api)
	return r
}

// uploadFS serves files only; directory listings answer 404.
type uploadFS struct {
	fs http.FileSystem
}

func (u uploadFS) Open(name string) (http.File, error) {
	f, err := u.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return f, nil
}
