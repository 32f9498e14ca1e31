package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID          = "marketstream"
	DefaultProviderName        = "quotes"
	DefaultProviderURL         = "https://data.alpaca.markets"
	DefaultProviderTimeout     = 15 * time.Second
	DefaultProviderMaxRetries  = 2
	DefaultProviderMinSpacing  = 500 * time.Millisecond
	DefaultPollInterval        = 60 * time.Second
	DefaultPollBatchSize       = 3
	DefaultPollBatchDelay      = 1 * time.Second
	DefaultPollErrorCooldown   = 5 * time.Second
	DefaultAlertInterval       = 5 * time.Second
	DefaultCacheStaleAfter     = 5 * time.Minute
	DefaultCacheFetchTimeout   = 10 * time.Second
	DefaultHistoryCapacity     = 1440
	DefaultDataPointQueue      = 1000
	DefaultAlertQueue          = 200
	DefaultDispatcherIdleSleep = 10 * time.Millisecond
	DefaultGatewayBufferSize   = 256
	DefaultGatewayPingInterval = 30 * time.Second
	DefaultGatewayPongTimeout  = 60 * time.Second
	DefaultGatewayWriteTimeout = 5 * time.Second
	DefaultHTTPPort            = 8080
	DefaultShutdownTimeout     = 15 * time.Second
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultRedisAddr           = "localhost:6379"
	DefaultRedisSnapshotTTL    = 10 * time.Minute
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Provider defaults
	if c.Provider.Name == "" {
		c.Provider.Name = DefaultProviderName
	}
	if c.Provider.URL == "" {
		c.Provider.URL = DefaultProviderURL
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Provider.MaxRetries == nil {
		retries := DefaultProviderMaxRetries
		c.Provider.MaxRetries = &retries
	}
	if c.Provider.MinSpacing == 0 {
		c.Provider.MinSpacing = DefaultProviderMinSpacing
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.BatchSize == 0 {
		c.Poller.BatchSize = DefaultPollBatchSize
	}
	if c.Poller.BatchDelay == 0 {
		c.Poller.BatchDelay = DefaultPollBatchDelay
	}
	if c.Poller.ErrorCooldown == 0 {
		c.Poller.ErrorCooldown = DefaultPollErrorCooldown
	}

	if c.Alerts.Interval == 0 {
		c.Alerts.Interval = DefaultAlertInterval
	}

	// Cache defaults
	if c.Cache.StaleAfter == 0 {
		c.Cache.StaleAfter = DefaultCacheStaleAfter
	}
	if c.Cache.FetchTimeout == 0 {
		c.Cache.FetchTimeout = DefaultCacheFetchTimeout
	}
	if c.Cache.HistoryCapacity == 0 {
		c.Cache.HistoryCapacity = DefaultHistoryCapacity
	}

	// Queue defaults
	if c.Queues.DataPoints == 0 {
		c.Queues.DataPoints = DefaultDataPointQueue
	}
	if c.Queues.Alerts == 0 {
		c.Queues.Alerts = DefaultAlertQueue
	}

	if c.Dispatcher.IdleSleep == 0 {
		c.Dispatcher.IdleSleep = DefaultDispatcherIdleSleep
	}

	// Gateway defaults
	if c.Gateway.BufferSize == 0 {
		c.Gateway.BufferSize = DefaultGatewayBufferSize
	}
	if c.Gateway.PingInterval == 0 {
		c.Gateway.PingInterval = DefaultGatewayPingInterval
	}
	if c.Gateway.PongTimeout == 0 {
		c.Gateway.PongTimeout = DefaultGatewayPongTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultGatewayWriteTimeout
	}

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	applyDBDefaults(&c.Database.Postgres)

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.SnapshotTTL == 0 {
		c.Redis.SnapshotTTL = DefaultRedisSnapshotTTL
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
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
