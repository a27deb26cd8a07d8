package config

import "time"

// ServiceConfig is the root configuration for a realtime service instance.
type ServiceConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Database DatabaseConfig `yaml:"database"`
	Journal  JournalConfig  `yaml:"journal"`
	Health   HealthConfig   `yaml:"health"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this service.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// RealtimeConfig holds the WebSocket connection settings.
type RealtimeConfig struct {
	URL          string        `yaml:"url"`         // e.g. ws://localhost:5000/ws
	APIKey       string        `yaml:"api_key"`     // Sent as a bearer token when set
	MaxRetries   *int          `yaml:"max_retries"` // nil means DefaultMaxRetries; 0 disables reconnects
	RetryDelay   time.Duration `yaml:"retry_delay"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`
	BufferSize   int           `yaml:"buffer_size"`
}

// Retries returns the reconnect budget, falling back to DefaultMaxRetries.
func (r RealtimeConfig) Retries() int {
	if r.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *r.MaxRetries
}

// DatabaseConfig holds the PostgreSQL connection used by the event journal.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds event journal writer settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig selects the slog handler and level.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
