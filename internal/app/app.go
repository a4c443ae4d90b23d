package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/metrics"
	"github.com/xenking/storefront/internal/service/couponing"
	"github.com/xenking/storefront/internal/service/fulfillment"
	"github.com/xenking/storefront/internal/service/profile"
	"github.com/xenking/storefront/internal/storage/fixture"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/secret"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Health check service.
	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "store", 5*time.Second, health.PingCheck(st))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mtr, err := metrics.New(m.MeterProvider(), m.TracerProvider())
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	// Domain services.
	orders := fulfillment.NewService(st, mtr)
	coupons := couponing.NewEngine(st, mtr)
	profiles := profile.NewService(st, secret.NewHasher(0))

	h := handler.NewHandler(orders, coupons, profiles,
		handler.NewAuthenticator(st, []byte(cfg.APIKeyPepper)),
	)

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:     cfg.RateLimit.Max,
		Window:  cfg.RateLimit.Window,
		KeyFunc: httpmiddleware.CredentialOrIP,
	})
	go limiter.Run(ctx)

	// Mux: health endpoints + API routes on one server.
	routeFinder := httpmiddleware.MakeRouteFinder(h.Mux())
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			limiter.Middleware(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
		),
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
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// openStore builds the configured data store. The memory store is preloaded
// from the seed fixture when one is set.
func openStore(ctx context.Context, cfg *Config) (store.Store, func(), error) {
	lg := zctx.From(ctx)

	switch cfg.Storage.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		return postgres.New(pool), pool.Close, nil

	case DriverMemory:
		st := memory.New()
		if cfg.Storage.SeedFile == "" {
			lg.Warn("Memory store started empty, no seed file configured")
			return st, func() {}, nil
		}
		fx, err := fixture.Load(cfg.Storage.SeedFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load seed")
		}
		if err := fixture.Apply(ctx, st, fx, fixture.Options{Pepper: []byte(cfg.APIKeyPepper)}); err != nil {
			return nil, nil, errors.Wrap(err, "apply seed")
		}
		return st, func() {}, nil

	default:
		return nil, nil, errors.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
