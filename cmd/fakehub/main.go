// fakehub serves a local realtime endpoint that replays sync and cleanup
// progress, for exercising realtimed and streamtest without a backend.
// Usage: go run ./cmd/fakehub --addr :5000 --drop-after 15
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
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

type hubConfig struct {
	Interval  time.Duration // Delay between frames
	Total     int           // Progress steps per operation
	DropAfter int           // Close each connection after this many frames (0 = never)
	APIKey    string        // Required bearer token (empty = no auth)
}

type hub struct {
	cfg      hubConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
	nextRule atomic.Int64
}

func main() {
	addr := flag.String("addr", ":5000", "listen address")
	path := flag.String("path", "/ws", "WebSocket path")
	interval := flag.Duration("interval", 250*time.Millisecond, "delay between frames")
	total := flag.Int("total", 20, "progress steps per operation")
	dropAfter := flag.Int("drop-after", 0, "close each connection after N frames (0 = never)")
	apiKey := flag.String("api-key", "", "require this bearer token")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	h := &hub{
		cfg: hubConfig{
			Interval:  *interval,
			Total:     *total,
			DropAfter: *dropAfter,
			APIKey:    *apiKey,
		},
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.Handle(*path, h)

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("fakehub listening", "addr", *addr, "path", *path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("fakehub failed", "error", err)
		os.Exit(1)
	}
	logger.Info("fakehub stopped")
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+h.cfg.APIKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	session := uuid.NewString()
	logger := h.logger.With("session", session, "remote", r.RemoteAddr, "user_agent", r.UserAgent())
	logger.Info("client connected")

	err = h.serve(r.Context(), conn, session)
	logger.Info("client disconnected", "error", err)
}

// serve streams scenarios to conn until the client leaves or DropAfter frames
// have been sent.
func (h *hub) serve(ctx context.Context, conn *websocket.Conn, session string) error {
	g, gctx := errgroup.WithContext(ctx)

	// Reader: processes pings and close frames from the client.
	g.Go(func() error {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		defer conn.Close()

		sent := 0
		for run := 1; ; run++ {
			opID := fmt.Sprintf("sync-%s-%d", session[:8], run)
			for _, data := range scenario(opID, h.nextRule.Add(1), h.cfg.Total) {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-time.After(h.cfg.Interval):
				}

				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return err
				}
				sent++

				if h.cfg.DropAfter > 0 && sent >= h.cfg.DropAfter {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "drop"),
						time.Now().Add(time.Second))
					return errDropped
				}
			}
		}
	})

	return g.Wait()
}

var errDropped = errors.New("dropped after configured frame count")
