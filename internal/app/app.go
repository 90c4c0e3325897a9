// Package app assembles the agora services from configuration. The server
// and the operator CLI share it so both talk to the data service through
// the same retry policy, caches and invalidation.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"agora/internal/cache"
	"agora/internal/catalog"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/health"
	"agora/internal/postgrest"
	"agora/internal/reconcile"
	"agora/internal/resilience"
	"agora/internal/router"
	"agora/internal/store"
)

// Backend is everything the services need from a data backend.
// store.Backend and postgrest.Client both implement it.
type Backend interface {
	catalog.Backend
	reconcile.Backend
	health.TableProber
	router.Pinger
}

var (
	_ Backend = (*store.Backend)(nil)
	_ Backend = (*postgrest.Client)(nil)
)

// Options controls start-up work done by Open.
type Options struct {
	// Migrate applies pending migrations (postgres backend only).
	Migrate bool
	// Seed inserts development fixtures (postgres backend only).
	Seed bool
	// Valkey connects the sidebar cache. A failed connection is logged
	// and the sidebar is then served uncached.
	Valkey bool
}

// App holds the wired services.
type App struct {
	Config   *config.Config
	Registry *prometheus.Registry

	DB      *sql.DB // nil for the rest backend
	Valkey  *redis.Client
	Backend Backend

	Executor   *resilience.Executor
	Results    *cache.Results
	Sidebar    *cache.SidebarCache
	Catalog    *catalog.Service
	Reconciler *reconcile.Reconciler
	Monitor    *health.Monitor
}

// Open connects to the configured backend and builds the services.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var audit cache.AuditLog
	switch cfg.Backend {
	case config.BackendREST:
		a.Backend = postgrest.New(cfg.RESTURL, cfg.RESTAPIKey, nil)
		slog.Info("using rest backend", "url", cfg.RESTURL)
	default:
		db, err := database.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		a.DB = db
		if opts.Migrate {
			if err := database.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		if opts.Seed {
			if err := database.Seed(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		a.Backend = store.New(db)
		audit = store.NewCacheLogStore(db)
	}

	if opts.Valkey {
		client, err := cache.ConnectValkey(ctx, cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			slog.Warn("valkey unavailable, sidebar cache disabled", "error", err)
		} else {
			a.Valkey = client
			a.Sidebar = cache.NewSidebarCache(client, cfg.SidebarCacheTTL)
		}
	}

	a.Executor = resilience.New(cfg.RetryOptions(), resilience.NewMetrics(a.Registry))
	a.Results = cache.NewResults(cfg.CacheTTL)
	invalidator := cache.NewCategoryInvalidator(a.Results, a.Sidebar, audit)

	a.Catalog = catalog.New(a.Backend, a.Executor, a.Results, invalidator)
	a.Reconciler = reconcile.New(a.Backend, a.Executor, invalidator)
	a.Monitor = health.NewMonitor(health.Config{
		Probes:     health.TableProbes(a.Backend),
		Executor:   a.Executor,
		Registerer: a.Registry,
	})

	return a, nil
}

// Close stops the monitor and releases connections.
func (a *App) Close() error {
	a.Monitor.Close()
	var err error
	if a.Valkey != nil {
		if cerr := a.Valkey.Close(); cerr != nil {
			err = fmt.Errorf("close valkey: %w", cerr)
		}
	}
	if a.DB != nil {
		if cerr := a.DB.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close database: %w", cerr)
		}
	}
	return err
}
