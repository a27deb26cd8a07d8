// realtimed holds the ChirpSyncer realtime connection, journals every event
// to PostgreSQL and serves /health.
// Usage: go run ./cmd/realtimed --config configs/realtimed.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chirpsyncer/chirpsync-realtime/internal/config"
	"github.com/chirpsyncer/chirpsync-realtime/internal/connection"
	"github.com/chirpsyncer/chirpsync-realtime/internal/database"
	"github.com/chirpsyncer/chirpsync-realtime/internal/router"
	"github.com/chirpsyncer/chirpsync-realtime/internal/version"
	"github.com/chirpsyncer/chirpsync-realtime/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/realtimed.example.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	// Set up structured logging
	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting realtimed",
		version.Attr(),
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"realtime_url", cfg.Realtime.URL,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("realtimed failed", "error", err)
		os.Exit(1)
	}

	logger.Info("realtimed stopped")
}

func run(cfg *config.ServiceConfig, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	registry := router.NewRegistry(logger.With("component", "registry"))
	subscribeProgressLog(registry, logger.With("component", "events"))

	deps := healthDeps{registry: registry}

	// Event journal
	var journal *writer.JournalWriter
	if cfg.Journal.Enabled {
		pgCfg := cfg.Database.Postgres
		logger.Info("connecting to database",
			"host", pgCfg.Host,
			"port", pgCfg.Port,
			"database", pgCfg.Name,
		)

		pool, err := database.Connect(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("database connected")

		journal = writer.NewJournalWriter(writer.WriterConfig{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger.With("component", "journal"))
		journal.Attach(registry)

		if err := journal.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		deps.journal = journal.Stats
		deps.db = pool
	}

	// Connection Manager
	mgr := connection.NewManager(managerConfig(cfg.Realtime), registry, logger.With("component", "connection"))
	mgr.OnStatusChange(func(old, new connection.Status) {
		logger.Info("connection status changed", "from", old, "to", new)
	})
	deps.conn = mgr

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start connection manager: %w", err)
	}

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           createHealthHandler(deps, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logStats(gctx, mgr, registry, journal, logger)
		return nil
	})

	logger.Info("realtimed running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	runErr := g.Wait()

	// Graceful shutdown
	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn("connection manager stop", "error", err)
	}
	if journal != nil {
		if err := journal.Stop(shutdownCtx); err != nil {
			logger.Warn("journal stop", "error", err)
		}
	}

	return runErr
}

// managerConfig maps the realtime config section onto the Connection Manager.
func managerConfig(rc config.RealtimeConfig) connection.ManagerConfig {
	cfg := connection.DefaultManagerConfig()
	cfg.MaxRetries = rc.Retries()
	cfg.RetryDelay = rc.RetryDelay
	cfg.Client.URL = rc.URL
	cfg.Client.APIKey = rc.APIKey
	cfg.Client.PingInterval = rc.PingInterval
	cfg.Client.PingTimeout = rc.PingTimeout
	cfg.Client.WriteTimeout = rc.WriteTimeout
	cfg.Client.ReadLimit = rc.ReadLimit
	cfg.Client.BufferSize = rc.BufferSize
	return cfg
}

// subscribeProgressLog logs operation progress. Completions are logged at
// info, progress at debug.
func subscribeProgressLog(registry *router.Registry, logger *slog.Logger) {
	router.On(registry, func(e router.SyncProgress) {
		logger.Debug("sync progress",
			"operation_id", e.OperationID,
			"current", e.Current,
			"total", e.Total,
			"percent", e.Percent(),
			"message", e.Message,
		)
	})
	router.On(registry, func(e router.SyncComplete) {
		logger.Info("sync complete", "operation_id", e.OperationID, "synced", e.Synced)
	})
	router.On(registry, func(e router.CleanupProgress) {
		logger.Debug("cleanup progress",
			"rule_id", e.RuleID,
			"deleted", e.Deleted,
			"total", e.Total,
			"percent", e.Percent(),
			"current_tweet", e.CurrentTweet,
		)
	})
	router.On(registry, func(e router.CleanupComplete) {
		logger.Info("cleanup complete", "rule_id", e.RuleID, "deleted", e.Deleted)
	})
}

// logStats logs component statistics every minute until ctx is done.
func logStats(ctx context.Context, mgr connection.Manager, registry *router.Registry, journal *writer.JournalWriter, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs := mgr.Stats()
			rs := registry.Stats()
			attrs := []any{
				"status", cs.Status,
				"retry_count", cs.RetryCount,
				"frames", cs.Frames,
				"parse_errors", cs.ParseErrors,
				"dispatched", rs.Dispatched,
				"unhandled", rs.Unhandled,
				"handler_panics", rs.HandlerPanics,
			}
			if journal != nil {
				js := journal.Stats()
				attrs = append(attrs, "journal_inserts", js.Inserts, "journal_errors", js.Errors, "journal_dropped", js.Dropped)
			}
			logger.Info("stats", attrs...)
		}
	}
}
