package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: realtime-1
realtime:
  url: ws://localhost:5000/ws
  max_retries: 3
  retry_delay: 1500ms
database:
  postgres:
    host: localhost
    port: 5432
    name: chirpsync
    user: chirp
    password: secret
journal:
  enabled: true
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "realtime-1" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "realtime-1")
	}
	if cfg.Realtime.URL != "ws://localhost:5000/ws" {
		t.Errorf("Realtime.URL = %q, want %q", cfg.Realtime.URL, "ws://localhost:5000/ws")
	}
	if got := cfg.Realtime.Retries(); got != 3 {
		t.Errorf("Realtime.MaxRetries = %d, want 3", got)
	}
	if cfg.Realtime.RetryDelay != 1500*time.Millisecond {
		t.Errorf("Realtime.RetryDelay = %v, want 1.5s", cfg.Realtime.RetryDelay)
	}
	if !cfg.Journal.Enabled {
		t.Error("Journal.Enabled = false, want true")
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
}

func TestLoadWithDefaults_ZeroMaxRetries(t *testing.T) {
	yaml := `
instance:
  id: realtime-1
realtime:
  max_retries: 0
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Realtime.MaxRetries == nil {
		t.Fatal("Realtime.MaxRetries = nil, want explicit 0")
	}
	if got := cfg.Realtime.Retries(); got != 0 {
		t.Errorf("Realtime.MaxRetries = %d, want 0", got)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REALTIME_KEY", "key-123")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
instance:
  id: realtime-1
realtime:
  api_key: ${TEST_REALTIME_KEY}
database:
  postgres:
    host: localhost
    name: chirpsync
    user: chirp
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Realtime.APIKey != "key-123" {
		t.Errorf("Realtime.APIKey = %q, want %q", cfg.Realtime.APIKey, "key-123")
	}
	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: realtime-1
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Realtime.URL != DefaultRealtimeURL {
		t.Errorf("Realtime.URL = %q, want default %q", cfg.Realtime.URL, DefaultRealtimeURL)
	}
	if got := cfg.Realtime.Retries(); got != 5 {
		t.Errorf("Realtime.MaxRetries = %d, want 5", got)
	}
	if cfg.Realtime.RetryDelay != 3*time.Second {
		t.Errorf("Realtime.RetryDelay = %v, want 3s", cfg.Realtime.RetryDelay)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Journal.BatchSize != DefaultBatchSize {
		t.Errorf("Journal.BatchSize = %d, want default %d", cfg.Journal.BatchSize, DefaultBatchSize)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text", cfg.Logging.Format)
	}
}

func TestLoadAndValidate_MissingFile(t *testing.T) {
	_, err := LoadAndValidate(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("LoadAndValidate() should error for a missing file")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("instance: [unterminated"))
	if err == nil {
		t.Fatal("Parse() should error on invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	valid := func() ServiceConfig {
		cfg := ServiceConfig{Instance: InstanceConfig{ID: "test"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ServiceConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *ServiceConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "http url rejected",
			mutate:  func(c *ServiceConfig) { c.Realtime.URL = "http://localhost:5000/ws" },
			wantErr: `realtime.url must use ws or wss, got "http"`,
		},
		{
			name:    "negative retries",
			mutate:  func(c *ServiceConfig) { c.Realtime.MaxRetries = intPtr(-1) },
			wantErr: "realtime.max_retries must be >= 0",
		},
		{
			name: "journal without database host",
			mutate: func(c *ServiceConfig) {
				c.Journal.Enabled = true
			},
			wantErr: "database.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *ServiceConfig) {
				c.Journal.Enabled = true
				c.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5}
			},
			wantErr: "database.postgres.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "bad health port",
			mutate:  func(c *ServiceConfig) { c.Health.Port = 70000 },
			wantErr: "health.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log format",
			mutate:  func(c *ServiceConfig) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *ServiceConfig) {},
			wantErr: "",
		},
		{
			name: "valid config with journal",
			mutate: func(c *ServiceConfig) {
				c.Journal.Enabled = true
				c.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 4, MinConns: 1}
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Realtime.URL != DefaultRealtimeURL {
		t.Errorf("Realtime.URL = %q, want %q", cfg.Realtime.URL, DefaultRealtimeURL)
	}
	if cfg.Journal.Enabled {
		t.Error("journal should be disabled by default")
	}
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       LoggingConfig
		wantJSON  bool
		wantDebug bool
	}{
		{"text info", LoggingConfig{Level: "info", Format: "text"}, false, false},
		{"json debug", LoggingConfig{Level: "debug", Format: "json"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := tt.cfg.NewLogger(&buf)

			logger.Debug("debug line")
			logger.Info("info line", "key", "value")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.HasPrefix(out, "{"); got != tt.wantJSON {
				t.Errorf("json output = %v, want %v: %q", got, tt.wantJSON, out)
			}
			if !strings.Contains(out, "info line") {
				t.Errorf("info line missing: %q", out)
			}
		})
	}
}

func intPtr(n int) *int { return &n }
