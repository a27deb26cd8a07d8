package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/chirpsyncer/chirpsync-realtime/internal/connection"
	"github.com/chirpsyncer/chirpsync-realtime/internal/router"
	"github.com/chirpsyncer/chirpsync-realtime/internal/writer"
)

// statusSource exposes the realtime connection state.
type statusSource interface {
	Stats() connection.ManagerStats
}

// healthDeps are the components reported by /health. Journal and DB are nil
// when the journal is disabled.
type healthDeps struct {
	conn     statusSource
	registry *router.Registry
	journal  func() writer.WriterMetrics
	db       interface{ Ping(context.Context) error }
}

// healthStatus maps the connection status onto the endpoint's status and
// HTTP code.
func healthStatus(s connection.Status) (string, int) {
	switch s {
	case connection.StatusConnected:
		return "healthy", http.StatusOK
	case connection.StatusConnecting:
		return "degraded", http.StatusOK
	default:
		return "unhealthy", http.StatusServiceUnavailable
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(deps healthDeps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		conn := deps.conn.Stats()
		status, code := healthStatus(conn.Status)

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     status,
			Components: make(map[string]any),
		}

		health.Components["realtime"] = map[string]any{
			"status":       conn.Status.String(),
			"retry_count":  conn.RetryCount,
			"attempts":     conn.Attempts,
			"frames":       conn.Frames,
			"parse_errors": conn.ParseErrors,
		}

		if deps.registry != nil {
			rs := deps.registry.Stats()
			health.Components["registry"] = map[string]any{
				"subscriptions":  rs.Subscriptions,
				"dispatched":     rs.Dispatched,
				"handler_panics": rs.HandlerPanics,
			}
		}

		if deps.journal != nil {
			js := deps.journal()
			health.Components["journal"] = map[string]any{
				"inserts": js.Inserts,
				"errors":  js.Errors,
				"dropped": js.Dropped,
			}
		}

		// A database outage only degrades an otherwise healthy service.
		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("write health response", "error", err)
		}
	})

	return mux
}
