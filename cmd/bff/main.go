// Package main is the entry point for the proposal-console BFF server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fiscalis/proposta-bff/internal/config"
	"github.com/fiscalis/proposta-bff/internal/navigator"
	"github.com/fiscalis/proposta-bff/internal/notification"
	"github.com/fiscalis/proposta-bff/internal/observability"
	"github.com/fiscalis/proposta-bff/internal/transport"
	"github.com/fiscalis/proposta-bff/internal/upstream"
	"github.com/fiscalis/proposta-bff/internal/wizard"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "proposta-bff", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Initialize the draft store.
	draftStore, draftStoreCloser, err := buildDraftStore(ctx, cfg.DraftStore, logger)
	if err != nil {
		logger.Error("draft store initialization failed", zap.Error(err))
		return 1
	}

	// Step 5: Build the upstream accounting client.
	backend := upstream.NewClient(cfg.Upstream, metrics)

	// Step 6: Build the wizard engine and navigation layer. The reset guard
	// subscribes to page changes so leaving the proposals page discards any
	// in-progress draft.
	engine := wizard.NewEngine(draftStore, backend, cfg.Wizard, metrics, logger)

	nav := navigator.New(cfg.Navigator.IntentTTL, metrics, logger)
	nav.Subscribe(wizard.NewResetGuard(draftStore, cfg.Wizard.HostPage, metrics, logger))

	notifications := notification.NewRouter(backend, nav, metrics, logger)

	// Step 7: Build the HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readinessChecks := observability.ReadinessChecks{
		UpstreamConfigured: func() bool { return cfg.Upstream.BaseURL != "" },
		DraftStore:         draftStore,
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:        cfg,
		Authenticate:  transport.JWTAuthenticator(cfg.Identity, jwks),
		Engine:        engine,
		Navigator:     nav,
		Notifications: notifications,
		Upstream:      backend,
		Metrics:       metrics,
		Checks:        readinessChecks,
	})

	handler := observability.TracingMiddleware(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("draft_store", cfg.DraftStore.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if draftStoreCloser != nil {
		draftStoreCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildDraftStore creates the draft store based on config. The returned
// closer is nil for stores with nothing to release.
func buildDraftStore(ctx context.Context, cfg config.DraftStoreConfig, logger *zap.Logger) (wizard.DraftStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory draft store")
		return wizard.NewMemoryDraftStore(), nil, nil

	case "redis":
		addr := os.Getenv(cfg.Redis.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("draft store: %s environment variable not set", cfg.Redis.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("draft store: redis ping: %w", err)
		}
		store := wizard.NewRedisDraftStore(client, cfg.KeyPrefix, cfg.TTL)
		return store, func() { client.Close() }, nil

	case "postgres":
		dsn := os.Getenv(cfg.Postgres.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("draft store: %s environment variable not set", cfg.Postgres.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("draft store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.Postgres.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("draft store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("draft store: ping: %w", err)
		}

		store := wizard.NewPgDraftStore(pool)
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported draft store driver: %q", cfg.Driver)
	}
}
