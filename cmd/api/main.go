// Package main is the entry point for the molrank API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/molrank/internal/config"
	"github.com/onnwee/molrank/internal/health"
	"github.com/onnwee/molrank/internal/middleware"
	"github.com/onnwee/molrank/internal/snapshot"
	"github.com/onnwee/molrank/internal/store"
	"github.com/onnwee/molrank/internal/tracing"
)

const (
	serviceName     = "molrank-api"
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Minute
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("molrank API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			slog.Error("invalid configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplingRate:   cfg.TracingSampleRate,
		InsecureMode:   cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracer provider", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, closeBackends, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer closeBackends()

	srv, err := newServer(cfg, logger, b)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	if interval := cfg.SnapshotRefreshInterval(); interval > 0 && len(cfg.SnapshotDatasets) > 0 {
		if err := srv.refresh.Start(ctx); err != nil {
			logger.Error("failed to start snapshot refresh job", "error", err)
			os.Exit(1)
		}
		defer srv.refresh.Stop()
		logger.Info("snapshot refresh job started", "interval", interval, "datasets", cfg.SnapshotDatasets)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		logger.Error("failed to listen", "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if err := serve(ctx, httpServer, ln, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openBackends connects the configured store and Redis. Without a
// DATABASE_URL candidates live in memory; without a REDIS_URL snapshots and
// rate limit counters do too.
func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backends, func(), error) {
	var b backends
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return b, closeAll, fmt.Errorf("open database: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		b.repo = store.NewPostgresRepository(db)
		b.dbChecker = health.NewDBChecker(db)
		logger.Info("using postgres candidate store")
	} else {
		b.repo = store.NewMemoryRepository()
		logger.Info("using in-memory candidate store")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			closeAll()
			return b, func() {}, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		closers = append(closers, func() { _ = client.Close() })
		b.cache = snapshot.NewRedisCache(client, cfg.SnapshotTTL())
		b.limiter = middleware.NewRedisRateLimitStore(client)
		b.redisChecker = health.NewRedisChecker(client)
		logger.Info("using redis snapshot cache and rate limit store")
	} else {
		b.cache = snapshot.NewMemoryCache(cfg.SnapshotTTL(), nil)
		limiter := middleware.NewInMemoryRateLimitStore()
		go limiter.RunCleanup(ctx, cleanupInterval)
		b.limiter = limiter
	}
	return b, closeAll, nil
}

// serve runs srv on ln until ctx is done, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return <-errCh
}
