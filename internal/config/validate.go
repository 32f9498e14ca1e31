package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/market-stream/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Provider.URL == "" {
		return errors.New("provider.url is required")
	}
	if c.Provider.Retries() < 0 {
		return errors.New("provider.max_retries must be >= 0")
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be > 0")
	}
	if c.Poller.BatchSize < 1 {
		return errors.New("poller.batch_size must be >= 1")
	}
	if c.Poller.Symbols.Total() == 0 {
		return errors.New("poller.symbols must list at least one symbol")
	}
	if err := c.Poller.Symbols.validate(); err != nil {
		return err
	}

	if c.Alerts.Interval <= 0 {
		return errors.New("alerts.interval must be > 0")
	}

	if c.Cache.HistoryCapacity < 1 {
		return errors.New("cache.history_capacity must be >= 1")
	}

	if c.Queues.DataPoints < 1 {
		return errors.New("queues.data_points must be >= 1")
	}
	if c.Queues.Alerts < 1 {
		return errors.New("queues.alerts must be >= 1")
	}

	if c.Gateway.BufferSize < 1 {
		return errors.New("gateway.buffer_size must be >= 1")
	}
	if c.Gateway.PongTimeout <= c.Gateway.PingInterval {
		return fmt.Errorf("gateway.pong_timeout (%s) must exceed gateway.ping_interval (%s)",
			c.Gateway.PongTimeout, c.Gateway.PingInterval)
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	if c.Database.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// validate rejects a symbol listed under more than one category. Price
// history is keyed by symbol alone, so each symbol must have one series.
func (s SymbolsConfig) validate() error {
	seen := make(map[string]model.Category, s.Total())
	for _, c := range model.Categories {
		for _, sym := range s.ByCategory()[c] {
			sym = model.NormalizeSymbol(sym)
			if prev, ok := seen[sym]; ok && prev != c {
				return fmt.Errorf("poller.symbols: %s is listed under both %s and %s", sym, prev, c)
			}
			seen[sym] = c
		}
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
