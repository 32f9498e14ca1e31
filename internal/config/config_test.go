package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: stream-1
provider:
  url: https://quotes.example.com
  timeout: 20s
poller:
  interval: 30s
  batch_size: 2
  symbols:
    domestic: [EQNR, DNB, TEL]
    global: [AAPL]
    crypto: [BTC, ETH]
database:
  enabled: true
  postgres:
    host: localhost
    port: 5432
    name: alerts
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "stream-1" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "stream-1")
	}
	if cfg.Provider.URL != "https://quotes.example.com" {
		t.Errorf("Provider.URL = %q", cfg.Provider.URL)
	}
	if cfg.Provider.Timeout != 20*time.Second {
		t.Errorf("Provider.Timeout = %v, want 20s", cfg.Provider.Timeout)
	}
	if cfg.Poller.Interval != 30*time.Second {
		t.Errorf("Poller.Interval = %v, want 30s", cfg.Poller.Interval)
	}
	if got := cfg.Poller.Symbols.ByCategory()[model.CategoryDomestic]; len(got) != 3 || got[0] != "EQNR" {
		t.Errorf("domestic symbols = %v", got)
	}
	if cfg.Poller.Symbols.Total() != 6 {
		t.Errorf("Symbols.Total() = %d, want 6", cfg.Poller.Symbols.Total())
	}
	if !cfg.Database.Enabled || cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_QUOTES_KEY", "secret123")

	yaml := `
provider:
  api_key: ${TEST_QUOTES_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider.APIKey != "secret123" {
		t.Errorf("Provider.APIKey = %q, want %q", cfg.Provider.APIKey, "secret123")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeTempFile(t, "poller: [unclosed")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
poller:
  symbols:
    global: [AAPL]
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Instance.ID != DefaultInstanceID {
		t.Errorf("Instance.ID = %q, want default %q", cfg.Instance.ID, DefaultInstanceID)
	}
	if cfg.Poller.Interval != DefaultPollInterval {
		t.Errorf("Poller.Interval = %v, want default %v", cfg.Poller.Interval, DefaultPollInterval)
	}
	if cfg.Poller.BatchSize != DefaultPollBatchSize {
		t.Errorf("Poller.BatchSize = %d, want default %d", cfg.Poller.BatchSize, DefaultPollBatchSize)
	}
	if cfg.Alerts.Interval != DefaultAlertInterval {
		t.Errorf("Alerts.Interval = %v, want default %v", cfg.Alerts.Interval, DefaultAlertInterval)
	}
	if cfg.Cache.StaleAfter != DefaultCacheStaleAfter {
		t.Errorf("Cache.StaleAfter = %v, want default %v", cfg.Cache.StaleAfter, DefaultCacheStaleAfter)
	}
	if cfg.Queues.DataPoints != DefaultDataPointQueue || cfg.Queues.Alerts != DefaultAlertQueue {
		t.Errorf("Queues = %+v", cfg.Queues)
	}
	if cfg.Gateway.BufferSize != DefaultGatewayBufferSize {
		t.Errorf("Gateway.BufferSize = %d, want default %d", cfg.Gateway.BufferSize, DefaultGatewayBufferSize)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want default %d", cfg.HTTP.Port, DefaultHTTPPort)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, DefaultLogLevel)
	}
}

func TestLoadWithDefaults_ZeroRetriesKept(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, "provider:\n  max_retries: 0\npoller:\n  symbols:\n    global: [AAPL]\n"))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if got := cfg.Provider.Retries(); got != 0 {
		t.Errorf("Provider.Retries() = %d, want 0", got)
	}

	cfg, err = LoadWithDefaults(writeTempFile(t, "poller:\n  symbols:\n    global: [AAPL]\n"))
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if got := cfg.Provider.Retries(); got != DefaultProviderMaxRetries {
		t.Errorf("Provider.Retries() = %d, want default %d", got, DefaultProviderMaxRetries)
	}
}

func TestLoadAndValidate(t *testing.T) {
	if _, err := LoadAndValidate(writeTempFile(t, "poller:\n  symbols:\n    crypto: [BTC]\n")); err != nil {
		t.Errorf("LoadAndValidate failed: %v", err)
	}
	if _, err := LoadAndValidate(writeTempFile(t, "instance:\n  id: x\n")); err == nil {
		t.Error("expected validation error without symbols")
	}
}

func validConfig() Config {
	cfg := Config{
		Poller: PollerConfig{Symbols: SymbolsConfig{Domestic: []string{"EQNR"}}},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Poller.BatchSize = 0 },
			wantErr: "poller.batch_size must be >= 1",
		},
		{
			name:    "no symbols",
			mutate:  func(c *Config) { c.Poller.Symbols = SymbolsConfig{} },
			wantErr: "poller.symbols must list at least one symbol",
		},
		{
			name: "negative max retries",
			mutate: func(c *Config) {
				n := -1
				c.Provider.MaxRetries = &n
			},
			wantErr: "provider.max_retries must be >= 0",
		},
		{
			name: "symbol in two categories",
			mutate: func(c *Config) {
				c.Poller.Symbols = SymbolsConfig{Domestic: []string{"EQNR"}, Global: []string{"eqnr"}}
			},
			wantErr: "poller.symbols: EQNR is listed under both domestic and global",
		},
		{
			name:    "negative alert queue",
			mutate:  func(c *Config) { c.Queues.Alerts = -1 },
			wantErr: "queues.alerts must be >= 1",
		},
		{
			name: "pong timeout too short",
			mutate: func(c *Config) {
				c.Gateway.PingInterval = 30 * time.Second
				c.Gateway.PongTimeout = 10 * time.Second
			},
			wantErr: "gateway.pong_timeout (10s) must exceed gateway.ping_interval (30s)",
		},
		{
			name:    "bad http port",
			mutate:  func(c *Config) { c.HTTP.Port = 70000 },
			wantErr: "http.port must be between 1 and 65535, got 70000",
		},
		{
			name: "database enabled without host",
			mutate: func(c *Config) {
				c.Database.Enabled = true
			},
			wantErr: "database.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "database disabled skips db checks",
			mutate:  func(c *Config) { c.Database.Postgres = DBConfig{} },
			wantErr: "",
		},
		{
			name: "redis enabled without addr",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr is required when redis is enabled",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: `logging.level must be one of debug, info, warn, error, got "verbose"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
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

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
