// Package main is the entry point for the agora API server.
// It loads configuration, connects to the data backend, starts the
// connection keep-alive and serves HTTP with graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agora/internal/app"
	"agora/internal/config"
	"agora/internal/handlers"
	"agora/internal/middleware"
	"agora/internal/router"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: text in development, JSON elsewhere.
	var handler slog.Handler
	if cfg.IsDev() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"backend", cfg.Backend,
	)

	// Connect to the backend, run migrations, and seed development data
	// (no-op if data already exists).
	a, err := app.Open(context.Background(), cfg, app.Options{
		Migrate: true,
		Seed:    cfg.IsDev(),
		Valkey:  true,
	})
	if err != nil {
		slog.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Probe once up front, then keep the state fresh in the background.
	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 10*time.Second)
	if !a.Monitor.CheckAvailability(probeCtx) {
		slog.Warn("data service not reachable at startup", "state", a.Monitor.State().State)
	}
	cancelProbe()
	keepAlive := a.Monitor.StartKeepAlive(cfg.KeepAliveInterval)

	if cfg.AdminTokenHash == "" {
		slog.Warn("ADMIN_TOKEN_HASH not set, admin API disabled")
	}
	newLimiter := func(name string, limit int) *middleware.RateLimiter {
		opts := []middleware.LimiterOption{middleware.WithRejectMetric(a.Registry, name)}
		if cfg.TrustProxy {
			opts = append(opts, middleware.TrustProxyHeaders())
		}
		return middleware.NewRateLimiter(limit, time.Minute, opts...)
	}
	limiter := newLimiter("admin", cfg.AdminRateLimit)
	defer limiter.Stop()
	connLimiter := newLimiter("connection", cfg.ConnectionRateLimit)
	defer connLimiter.Stop()

	r := router.New(router.Deps{
		Categories:        handlers.NewCategories(a.Catalog, a.Sidebar),
		Reconcile:         handlers.NewReconcile(a.Reconciler),
		Connection:        handlers.NewConnection(a.Monitor),
		AdminTokenHash:    cfg.AdminTokenHash,
		AdminLimiter:      limiter,
		ConnectionLimiter: connLimiter,
		Metrics:           a.Registry,
		Backend:           a.Backend,
	})

	// WriteTimeout covers a full retry budget plus a repair pass; the
	// websocket stream sets its own deadlines after the upgrade.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	keepAlive.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Ending subscriptions closes open websocket streams, which Shutdown
	// does not wait for.
	a.Monitor.Close()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
