package connection

import (
	"errors"
	"log/slog"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyStarted  = errors.New("already started")
)

// Status is the connection state exposed to consumers.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// TimestampedMessage wraps raw frame data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., ws://localhost:5000/ws)
	APIKey       string        // Bearer token for the Authorization header (empty = no auth)
	PingInterval time.Duration // How often to send keepalive pings
	PingTimeout  time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	ReadLimit    int64         // Max frame size in bytes (0 = gorilla default)
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadLimit:    1 << 20,
		BufferSize:   1000,
	}
}

// ClientFactory builds the transport for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client     ClientConfig  // Transport settings, including the endpoint URL
	MaxRetries int           // Consecutive reconnect attempts before giving up
	RetryDelay time.Duration // Fixed wait before each reconnect attempt

	// NewClient overrides the transport constructor. Nil uses NewClient.
	NewClient ClientFactory
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:     DefaultClientConfig(),
		MaxRetries: 5,
		RetryDelay: 3000 * time.Millisecond,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Status      Status
	RetryCount  int   // Consecutive failed attempts since the last successful open
	Attempts    int64 // Transports created, including the first
	Opens       int64 // Successful opens
	Frames      int64 // Frames received
	ParseErrors int64 // Frames dropped as malformed

	ListenerPanics int64 // Status listeners that panicked
}
