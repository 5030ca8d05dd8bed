package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ghhttp "github.com/gatehouse-io/gatehouse/internal/adapter/http"
	"github.com/gatehouse-io/gatehouse/internal/adapter/localexec"
	"github.com/gatehouse-io/gatehouse/internal/adapter/mcp"
	ghnats "github.com/gatehouse-io/gatehouse/internal/adapter/nats"
	"github.com/gatehouse-io/gatehouse/internal/adapter/otel"
	"github.com/gatehouse-io/gatehouse/internal/adapter/planner"
	"github.com/gatehouse-io/gatehouse/internal/adapter/postgres"
	"github.com/gatehouse-io/gatehouse/internal/adapter/ristretto"
	stackadapter "github.com/gatehouse-io/gatehouse/internal/adapter/stack"
	"github.com/gatehouse-io/gatehouse/internal/adapter/ws"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/logger"
	"github.com/gatehouse-io/gatehouse/internal/resilience"
	"github.com/gatehouse-io/gatehouse/internal/service"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"repair_enabled", cfg.Repair.Enabled,
	)

	ctx := context.Background()

	// --- Telemetry ---
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := ghnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	resultCache, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer resultCache.Close()

	// --- Adapters ---
	store := postgres.NewStore(pool)
	events := postgres.NewEventStore(pool)
	hub := ws.NewHub()
	exec := localexec.New(cfg.Checks.MaxOutputBytes)
	resolver := stackadapter.NewResolver(cfg.Checks, resultCache, cfg.Cache.StackTTL)

	// --- Services ---
	sandbox := service.NewSandboxManager(store, cfg.Sandbox)
	checker := service.NewCheckRunner(store, resolver, exec, sandbox, cfg.Checks)
	checker.SetMetrics(metrics)

	var repairer *service.RepairService
	if cfg.Planner.URL != "" {
		plannerClient := planner.NewClient(cfg.Planner.URL, cfg.Planner.APIKey, cfg.Planner.Timeout)
		plannerClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		repairer = service.NewRepairService(store, plannerClient)
	} else {
		slog.Warn("no planner configured, automatic repair disabled")
	}

	streamer := service.NewStreamer(service.StreamerDeps{
		Store:       store,
		Events:      events,
		Hub:         hub,
		Queue:       queue,
		Cache:       resultCache,
		Metrics:     metrics,
		Pool:        service.NewRunPool(cfg.Pool.MaxPerActorProject),
		Integrity:   service.NewIntegrityService(),
		Sandbox:     sandbox,
		Applier:     service.NewApplier(store),
		Checker:     checker,
		Gate:        service.NewGate(),
		Repairer:    repairer,
		Invalidator: resolver,
	}, cfg.Repair, cfg.Cache)

	// --- MCP ---
	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(mcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "gatehouse",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, mcp.ServerDeps{
			Projects: store,
			Runs:     store,
			Executor: streamer,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(stopCtx)
		}()
	}

	// --- HTTP ---
	handlers := &ghhttp.Handlers{
		Store:    store,
		Replay:   service.NewReplayService(store, events),
		Streamer: streamer,
		Pingers: map[string]ghhttp.Pinger{
			"postgres": pool,
			"nats":     queue,
		},
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(ghhttp.SecurityHeaders)
	r.Use(ghhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(ghhttp.Logger)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	ghhttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Plan executions run checks inline, so writes can be slow.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
