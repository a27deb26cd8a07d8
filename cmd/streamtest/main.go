// streamtest connects to the ChirpSyncer realtime endpoint and streams typed
// events to the console.
// Usage: go run ./cmd/streamtest --url ws://localhost:5000/ws
//
// With --config the realtime section of a service config is used instead;
// --url still overrides it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chirpsyncer/chirpsync-realtime/internal/config"
	"github.com/chirpsyncer/chirpsync-realtime/internal/connection"
	"github.com/chirpsyncer/chirpsync-realtime/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	url := flag.String("url", "", "realtime WebSocket URL (overrides config)")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if *url != "" {
		cfg.Realtime.URL = *url
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	registry := router.NewRegistry(logger)

	// Hand events to the printer without blocking dispatch
	events := router.NewGrowableBuffer[router.Event](64, 10000)
	registry.SubscribeAll(func(ev router.Event) { events.Send(ev) })

	connCfg := connection.DefaultManagerConfig()
	connCfg.MaxRetries = cfg.Realtime.Retries()
	connCfg.RetryDelay = cfg.Realtime.RetryDelay
	connCfg.Client.URL = cfg.Realtime.URL
	connCfg.Client.APIKey = cfg.Realtime.APIKey

	connMgr := connection.NewManager(connCfg, registry, logger)
	connMgr.OnStatusChange(func(old, new connection.Status) {
		fmt.Printf("[STATUS] %s -> %s (retry %d)\n", old, new, connMgr.RetryCount())
	})

	logger.Info("starting connection manager", "url", cfg.Realtime.URL)
	if err := connMgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(ctx, events, *verbose)
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				connStats := connMgr.Stats()
				regStats := registry.Stats()
				bufStats := events.Stats()
				logger.Info("stats",
					"status", connStats.Status,
					"retry_count", connStats.RetryCount,
					"frames", connStats.Frames,
					"parse_errors", connStats.ParseErrors,
					"dispatched", regStats.Dispatched,
					"buffered", bufStats.Count,
					"dropped", bufStats.Dropped,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	connMgr.Stop(shutdownCtx)
	events.Close()
	<-printerDone

	logger.Info("shutdown complete")
}

func printEvents(ctx context.Context, buf *router.GrowableBuffer[router.Event], verbose bool) {
	for {
		// Ends on shutdown or once the buffer is closed and drained
		ev, err := buf.Receive(ctx)
		if err != nil {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(ev, "", "  ")
			fmt.Printf("[%s] %s\n", ev.Type(), data)
			continue
		}

		switch e := ev.(type) {
		case router.SyncProgress:
			fmt.Printf("[SYNC PROGRESS] op=%s %d/%d (%d%%) %s\n",
				e.OperationID, e.Current, e.Total, e.Percent(), e.Message)
		case router.SyncComplete:
			fmt.Printf("[SYNC COMPLETE] op=%s synced=%d\n", e.OperationID, e.Synced)
		case router.CleanupProgress:
			fmt.Printf("[CLEANUP PROGRESS] rule=%d %d/%d (%d%%) tweet=%s\n",
				e.RuleID, e.Deleted, e.Total, e.Percent(), e.CurrentTweet)
		case router.CleanupComplete:
			fmt.Printf("[CLEANUP COMPLETE] rule=%d deleted=%d\n", e.RuleID, e.Deleted)
		case router.Unknown:
			fmt.Printf("[UNKNOWN] type=%s payload=%s\n", e.MsgType, e.Payload)
		}
	}
}
