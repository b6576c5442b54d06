package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/gate"
	"hradmin/internal/domain/resource"
	"hradmin/internal/domain/store"
	"hradmin/internal/domain/store/memory"
	"hradmin/internal/domain/store/postgres"
	"hradmin/internal/platform/config"
	"hradmin/internal/platform/db"
	"hradmin/internal/platform/jobs"
	"hradmin/internal/platform/metrics"
	"hradmin/internal/platform/redisbus"
	audithandler "hradmin/internal/transport/http/handlers/audit"
	authhandler "hradmin/internal/transport/http/handlers/auth"
	pageshandler "hradmin/internal/transport/http/handlers/pages"
	resourcehandler "hradmin/internal/transport/http/handlers/resources"
	"hradmin/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

// Backend is the store backend the server runs on.
type Backend interface {
	store.Backend
	store.Provisioner
	store.Revoker
	Hub() *store.Hub
	PurgeExpired(ctx context.Context) (int, error)
}

type App struct {
	Config     config.Config
	Backend    Backend
	Workspaces *resource.Workspaces
	Jobs       *jobs.Service
	Router     http.Handler

	closers []func()
}

// New wires the application for cfg. Background work is bound to ctx; call
// Close to release what New opened.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	hub := store.NewHub()
	var relay store.Relay
	var locker resource.Locker
	if cfg.Redis.Addr != "" {
		client, err := redisbus.Connect(ctx, redisbus.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, Timeout: cfg.Redis.Timeout})
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		bus := redisbus.NewBus(client, cfg.Redis.Channel)
		if err := bus.Run(ctx, hub); err != nil {
			return nil, err
		}
		relay = bus
		locker = redisbus.NewLocker(client, "hradmin:inflight:")
		slog.Info("session events relayed through redis", "channel", cfg.Redis.Channel)
	}

	var pool *pgxpool.Pool
	var auditLog audit.Log
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		var err error
		pool, err = db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if cfg.RunMigrations {
			if err := db.Migrate(pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		app.Backend = postgres.New(pool, cfg.JWTSecret, cfg.SessionTTL, postgres.WithHub(hub), postgres.WithRelay(relay))
		auditLog = audit.New(pool)
	default:
		app.Backend = memory.New(cfg.JWTSecret, cfg.SessionTTL, memory.WithHub(hub), memory.WithRelay(relay))
		auditLog = audit.NewMemory(1000)
		slog.Warn("running on the in-memory store; data is lost on restart")
	}
	app.closers = append(app.closers, app.Backend.Close)

	if cfg.RunSeed {
		if err := db.Seed(ctx, app.Backend, cfg); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	app.Workspaces = resource.NewWorkspaces(cfg.WorkspaceIdleTTL)
	evict := app.Workspaces.EvictOnSignOut(app.Backend.Subscribe)
	app.closers = append(app.closers, evict.Unsubscribe, app.Workspaces.Close)

	app.Jobs = jobs.New(pool)
	app.Jobs.Every(jobs.JobWorkspaceSweep, cfg.SweepInterval, func(context.Context) (any, error) {
		evicted := app.Workspaces.Sweep()
		metrics.WorkspacesActive.Set(float64(app.Workspaces.Len()))
		return map[string]int{"evicted": evicted}, nil
	})
	app.Jobs.Every(jobs.JobSessionPurge, cfg.SweepInterval, func(ctx context.Context) (any, error) {
		purged, err := app.Backend.PurgeExpired(ctx)
		return map[string]int{"purged": purged}, err
	})
	app.Jobs.Start(ctx)

	app.Router = app.routes(auditLog, locker)
	ok = true
	return app, nil
}

func (a *App) routes(auditLog audit.Log, locker resource.Locker) http.Handler {
	cfg := a.Config
	pages := pageshandler.NewHandler(gate.DefaultRoutes, cfg.FrontendDir)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Backend.Ping(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.Session(a.Backend, cfg.SessionWait))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

			authhandler.NewHandler(a.Backend).RegisterRoutes(r)
			pages.RegisterAPI(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireCapability(gate.Admin))
				resourcehandler.Mount(r, resourcehandler.Deps{
					Workspaces: a.Workspaces,
					Recorder:   auditLog,
					Locker:     locker,
					Revoker:    a.Backend,
					NoticeTTL:  cfg.NoticeTTL,
				})
				audithandler.NewHandler(auditLog).RegisterRoutes(r)
			})
		})

		r.Handle("/*", pages)
	})

	return router
}

// Close releases everything New opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Run serves cfg.Addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config) error {
	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("hradmin server listening", "addr", cfg.Addr, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
