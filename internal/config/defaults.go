package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRealtimeURL   = "ws://localhost:5000/ws"
	DefaultMaxRetries    = 5
	DefaultRetryDelay    = 3000 * time.Millisecond
	DefaultPingInterval  = 30 * time.Second
	DefaultPingTimeout   = 90 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultReadLimit     = 1 << 20
	DefaultBufferSize    = 1000
	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 4
	DefaultMinConns      = 1
	DefaultBatchSize     = 100
	DefaultFlushInterval = 1 * time.Second
	DefaultJournalBuffer = 1000
	DefaultHealthPort    = 8080
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

func (c *ServiceConfig) applyDefaults() {
	// Realtime defaults
	if c.Realtime.URL == "" {
		c.Realtime.URL = DefaultRealtimeURL
	}
	if c.Realtime.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.Realtime.MaxRetries = &retries
	}
	if c.Realtime.RetryDelay == 0 {
		c.Realtime.RetryDelay = DefaultRetryDelay
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = DefaultPingInterval
	}
	if c.Realtime.PingTimeout == 0 {
		c.Realtime.PingTimeout = DefaultPingTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.ReadLimit == 0 {
		c.Realtime.ReadLimit = DefaultReadLimit
	}
	if c.Realtime.BufferSize == 0 {
		c.Realtime.BufferSize = DefaultBufferSize
	}

	applyDBDefaults(&c.Database.Postgres)

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBuffer
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// Default returns a config with every optional field defaulted. Used by
// tools that run without a config file.
func Default() *ServiceConfig {
	cfg := &ServiceConfig{Instance: InstanceConfig{ID: "local"}}
	cfg.applyDefaults()
	return cfg
}
