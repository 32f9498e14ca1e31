// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rickgao/market-stream/internal/model"
)

// Config is the top-level service configuration.
type Config struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Provider   ProviderConfig   `yaml:"provider"`
	Poller     PollerConfig     `yaml:"poller"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Cache      CacheConfig      `yaml:"cache"`
	Queues     QueuesConfig     `yaml:"queues"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ProviderConfig configures the upstream quote provider.
type ProviderConfig struct {
	Name       string        `yaml:"name"`
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries *int          `yaml:"max_retries"` // nil means DefaultProviderMaxRetries; 0 disables retries
	MinSpacing time.Duration `yaml:"min_spacing"`
}

// Retries returns the configured retry count, or the default when unset.
func (p ProviderConfig) Retries() int {
	if p.MaxRetries == nil {
		return DefaultProviderMaxRetries
	}
	return *p.MaxRetries
}

// PollerConfig configures the quote poller.
type PollerConfig struct {
	Interval      time.Duration `yaml:"interval"`
	BatchSize     int           `yaml:"batch_size"`
	BatchDelay    time.Duration `yaml:"batch_delay"`
	ErrorCooldown time.Duration `yaml:"error_cooldown"`
	Symbols       SymbolsConfig `yaml:"symbols"`
}

// SymbolsConfig lists tracked symbols per category.
type SymbolsConfig struct {
	Domestic []string `yaml:"domestic"`
	Global   []string `yaml:"global"`
	Crypto   []string `yaml:"crypto"`
}

// ByCategory returns the symbol lists keyed by category.
func (s SymbolsConfig) ByCategory() map[model.Category][]string {
	return map[model.Category][]string{
		model.CategoryDomestic: s.Domestic,
		model.CategoryGlobal:   s.Global,
		model.CategoryCrypto:   s.Crypto,
	}
}

// Total returns the number of tracked symbols.
func (s SymbolsConfig) Total() int {
	return len(s.Domestic) + len(s.Global) + len(s.Crypto)
}

// AlertsConfig configures the alert evaluator.
type AlertsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// CacheConfig configures the price cache and history.
type CacheConfig struct {
	StaleAfter      time.Duration `yaml:"stale_after"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	HistoryCapacity int           `yaml:"history_capacity"`
}

// QueuesConfig sets the capacities of the bounded worker queues.
type QueuesConfig struct {
	DataPoints int `yaml:"data_points"`
	Alerts     int `yaml:"alerts"`
}

// DispatcherConfig configures the broadcast dispatcher.
type DispatcherConfig struct {
	IdleSleep time.Duration `yaml:"idle_sleep"`
}

// GatewayConfig configures the client WebSocket gateway.
type GatewayConfig struct {
	BufferSize     int           `yaml:"buffer_size"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures optional alert persistence.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds connection settings for a single database.
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

// RedisConfig configures the optional Redis mirror.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment. No defaults are applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// LoadWithDefaults loads the config and fills unset optional fields.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads the config, applies defaults and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
