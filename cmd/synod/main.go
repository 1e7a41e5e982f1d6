package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	synhttp "github.com/synod-labs/synod/internal/adapter/http"
	synmcp "github.com/synod-labs/synod/internal/adapter/mcp"
	synnats "github.com/synod-labs/synod/internal/adapter/nats"
	"github.com/synod-labs/synod/internal/adapter/natskv"
	synotel "github.com/synod-labs/synod/internal/adapter/otel"
	"github.com/synod-labs/synod/internal/adapter/postgres"
	"github.com/synod-labs/synod/internal/adapter/ristretto"
	"github.com/synod-labs/synod/internal/adapter/tiered"
	"github.com/synod-labs/synod/internal/adapter/ws"
	"github.com/synod-labs/synod/internal/advisor"
	"github.com/synod-labs/synod/internal/config"
	"github.com/synod-labs/synod/internal/logger"
	"github.com/synod-labs/synod/internal/middleware"
	"github.com/synod-labs/synod/internal/resilience"
	"github.com/synod-labs/synod/internal/service"
)

const version = "0.1.0"

func main() {
	// Bootstrap logger; replaced once config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "admin" {
		if err := runAdmin(args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, yamlPath)

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"advisor_timeout", cfg.Engine.AdvisorTimeout,
		"max_concurrent", cfg.Engine.MaxConcurrent,
	)

	ctx := context.Background()

	// --- Telemetry ---

	shutdownOtel, err := synotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := synotel.NewMetrics()
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

	queue, err := synnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}()

	// --- Decision cache: L1 in-process, L2 shared KV ---

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	decisionKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("decision kv bucket: %w", err)
	}
	decisionCache := tiered.New(l1, natskv.New(decisionKV), cfg.Engine.DecisionTTL)

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	registry := advisor.Default()
	synthesisSvc := service.NewSynthesisService(registry, store, queue, decisionCache, hub, breaker, &cfg.Engine)
	synthesisSvc.SetMetrics(metrics)

	funnelSvc := service.NewFunnelService(store, queue, hub)
	funnelSvc.SetMetrics(metrics)

	// --- MCP server ---

	if cfg.MCP.Enabled {
		mcpSrv := synmcp.NewServer(synmcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    cfg.Logging.Service,
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, synmcp.ServerDeps{
			Adviser:  synthesisSvc,
			Sessions: synthesisSvc,
			Funnel:   funnelSvc,
			Advisors: synthesisSvc,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mcpSrv.Stop(sctx); err != nil {
				slog.Warn("mcp shutdown", "error", err)
			}
		}()
		slog.Info("mcp server started", "addr", cfg.MCP.Addr)
	}

	// --- HTTP ---

	idemKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency kv bucket: %w", err)
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	handlers := &synhttp.Handlers{
		Synthesis: synthesisSvc,
		Funnel:    funnelSvc,
	}

	r := chi.NewRouter()

	r.Use(synhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(synhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(synhttp.Logger)
	r.Use(synotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.TenantID)
	r.Use(limiter.Handler)
	r.Use(middleware.Idempotency(idemKV))

	r.Get("/health", healthHandler(pool.Ping, queue.IsConnected))
	r.Get("/ws", hub.HandleWS)

	synhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SIGHUP reloads the YAML config; only fields read per-request (log
	// level stays fixed, weights are frozen in the service) pick it up.
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "path", holder.Path(), "error", err)
				continue
			}
			slog.Info("config reloaded", "path", holder.Path())
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr, "advisors", len(registry.Kinds()))
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

// healthHandler reports overall service health plus per-dependency status.
// A failing dependency turns the status to degraded but keeps 200: the
// advisory core still answers with lower-confidence decisions when sinks
// are down.
func healthHandler(pingDB func(context.Context) error, natsUp func() bool) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Version  string `json:"version"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Version: version, Postgres: "ok", NATS: "ok"}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pingDB(ctx); err != nil {
			status.Postgres = "unreachable"
			status.Status = "degraded"
		}
		if !natsUp() {
			status.NATS = "disconnected"
			status.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
