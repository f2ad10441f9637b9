// Package main is the entry point for the RainWatch API server.
//
// It loads configuration, connects the database pool, wires the weather,
// forecast, and webhook clients into the evaluation engine, builds the HTTP
// server with the core chassis, and starts both the server and the hourly
// evaluation loop.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM):
// the engine loop drains first, then in-flight HTTP requests, then the
// database pool closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"rainwatch/internal/api/handlers"
	"rainwatch/internal/config"
	"rainwatch/internal/core"
	"rainwatch/internal/db"
	"rainwatch/internal/engine"
	"rainwatch/internal/external"
	"rainwatch/internal/notify"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("rainwatch API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database pool.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	repo := db.NewMonitorRepository(pool)

	// External clients.
	weather := external.NewAccuWeatherClient(cfg.Weather, logger)
	forecast := external.NewGeminiClient(cfg.Forecast, logger)
	notifier := notify.NewWebhookNotifier(cfg.Webhook, logger)

	// Metrics registry shared by the engine and the /metrics endpoint.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Evaluation engine.
	eng := engine.New(engine.Config{
		Repo:     repo,
		Source:   weather,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  engine.NewMetricsWith(registry),
		Window:   time.Duration(cfg.Engine.WindowHours) * time.Hour,
		Interval: cfg.Engine.CycleInterval,
	})

	// HTTP server.
	srv, err := core.NewServer(cfg, repo, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Gatherer = registry
	srv.HealthProbes = []core.HealthProbe{
		core.ProbeFunc{ProbeName: "database", CheckFunc: pool.Ping},
	}

	monitorHandler := handlers.NewMonitorHandler(repo, weather, forecast, srv.Validator, logger)
	opsHandler := handlers.NewOpsHandler(eng, logger)
	srv.V1RouteRegistrars = []func(chi.Router){
		monitorHandler.RegisterRoutes,
		opsHandler.RegisterRoutes,
	}
	srv.MountRoutes()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	eng.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		eng.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger builds the process-wide structured JSON logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
