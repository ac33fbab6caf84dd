// Package app wires configuration, the selected store backend, the optional
// Redis cache and event stream, and the services into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/coremodel/coremodel/internal/cache"
	"github.com/coremodel/coremodel/internal/config"
	"github.com/coremodel/coremodel/internal/events"
	"github.com/coremodel/coremodel/internal/handler"
	"github.com/coremodel/coremodel/internal/metrics"
	"github.com/coremodel/coremodel/internal/middleware"
	"github.com/coremodel/coremodel/internal/server"
	"github.com/coremodel/coremodel/internal/service"
	"github.com/coremodel/coremodel/internal/store"
)

// App holds the long-lived dependencies of the process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    store.Store
	Cache    *cache.Cache // nil when REDIS_URL is empty
	Events   *events.Publisher
	Metrics  *metrics.InMemoryRecorder
	Users    *service.UserService
	Entities *service.EntityService

	closeOnce sync.Once
	closeErr  error
}

// New connects every dependency described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	policy, err := cfg.DeletePolicy()
	if err != nil {
		return nil, err
	}

	st, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %s", cfg.StoreBackend, SanitizeError(err, cfg.DatabaseURL))
	}
	logger.Info("store connected",
		"backend", cfg.StoreBackend,
		"database_url", RedactURL(cfg.DatabaseURL),
	)

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Store:   st,
		Metrics: metrics.NewInMemory(),
	}

	if cfg.MigrateOnStart {
		n, err := MigrateStore(ctx, cfg, st)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate on start: %w", err)
		}
		logger.Info("migrations applied", "count", n)
	}

	opts := service.Options{
		Metrics:      a.Metrics,
		Logger:       logger,
		DeletePolicy: policy,
	}

	if cfg.CacheEnabled() {
		c, err := cache.New(ctx, cfg.RedisURL,
			cache.WithTTL(cfg.CacheTTL),
			cache.WithNegativeTTL(cfg.NegativeCacheTTL),
		)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connect redis: %s", SanitizeError(err, cfg.RedisURL))
		}
		logger.Info("redis connected", "redis_url", RedactURL(cfg.RedisURL))

		a.Cache = c
		a.Events = events.NewPublisher(c.Client(), logger, a.Metrics)
		opts.Cache = c
		opts.Events = a.Events
	} else {
		logger.Info("redis not configured; cache and events disabled")
	}

	a.Users = service.NewUserService(st, opts)
	a.Entities = service.NewEntityService(st, opts)

	return a, nil
}

// eventFlushTimeout bounds how long Close waits for queued events.
const eventFlushTimeout = 5 * time.Second

// Close flushes queued events, then releases the cache and the store. It is
// safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.Events != nil {
			ctx, cancel := context.WithTimeout(context.Background(), eventFlushTimeout)
			errs = append(errs, a.Events.Close(ctx))
			cancel()
		}
		if a.Cache != nil {
			errs = append(errs, a.Cache.Close())
		}
		if a.Store != nil {
			errs = append(errs, a.Store.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// probePaths are logged at debug level when they succeed.
var probePaths = []string{"/healthz", "/readyz", "/metrics"}

// Router builds the operational HTTP surface.
func (a *App) Router(version string) http.Handler {
	h := handler.New(version, a.Config.StoreBackend)

	var cacheCheck handler.HealthChecker
	if a.Cache != nil {
		cacheCheck = a.Cache
	}
	health := handler.NewHealthHandler(a.Store, cacheCheck)
	metricsHandler := handler.NewMetricsHandler(a.Metrics)

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(a.Logger, probePaths...))
	r.Use(middleware.Recoverer(a.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: a.Config.IsDevelopment()}))
	r.Use(middleware.MaxBodySize(a.Config.MaxRequestBodySize))

	r.Get("/", h.Info)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)
	r.Get("/schema", h.Schema)

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then closes the app.
func (a *App) Serve(ctx context.Context, version string) error {
	srv := server.New(a.Router(version), server.Options{
		Port:            a.Config.AppPort,
		ReadTimeout:     a.Config.ReadTimeout,
		WriteTimeout:    a.Config.WriteTimeout,
		ShutdownTimeout: a.Config.ShutdownTimeout,
	}, a.Logger)

	srv.OnShutdown("dependencies", func(context.Context) error { return a.Close() })

	a.Logger.Info("starting server",
		"port", a.Config.AppPort,
		"env", a.Config.AppEnv,
		"store", a.Config.StoreBackend,
		"delete_policy", string(a.Users.DeletePolicy()),
	)

	return srv.Run(ctx)
}
