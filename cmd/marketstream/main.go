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
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/market-stream/internal/alert"
	"github.com/rickgao/market-stream/internal/cache"
	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/database"
	"github.com/rickgao/market-stream/internal/dispatch"
	"github.com/rickgao/market-stream/internal/engine"
	"github.com/rickgao/market-stream/internal/fanout"
	"github.com/rickgao/market-stream/internal/gateway"
	"github.com/rickgao/market-stream/internal/httpapi"
	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/poller"
	"github.com/rickgao/market-stream/internal/quotes"
	"github.com/rickgao/market-stream/internal/ratelimit"
	"github.com/rickgao/market-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/marketstream.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting marketstream",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("marketstream exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("marketstream stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.NewSpacing(cfg.Provider.MinSpacing, nil)
	client := quotes.NewClient(
		cfg.Provider.URL,
		cfg.Provider.APIKey,
		quotes.WithName(cfg.Provider.Name),
		quotes.WithLogger(logger.With("component", "quotes")),
		quotes.WithTimeout(cfg.Provider.Timeout),
		quotes.WithRetries(cfg.Provider.Retries(), time.Second),
		quotes.WithLimiter(limiter),
	)

	deps := engine.Deps{
		Source:  client,
		Limiter: limiter,
		Logger:  logger,
	}

	if cfg.Database.Enabled {
		pg := cfg.Database.Postgres
		logger.Info("connecting to database", "host", pg.Host, "port", pg.Port, "database", pg.Name)

		pool, err := database.Connect(ctx, pg, cfg.Instance.ID)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := database.NewAlertStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.AlertStore = store
		logger.Info("database connected")
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		mirror := fanout.NewRedisMirror(rdb, cfg.Redis.SnapshotTTL)
		defer mirror.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := mirror.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		deps.Mirror = mirror
		deps.Snapshots = mirror
		logger.Info("redis mirror enabled", "addr", cfg.Redis.Addr)
	}

	eng, err := engine.New(engineConfig(cfg), deps)
	if err != nil {
		return err
	}

	ws := gateway.NewServer(gateway.Config{
		BufferSize:     cfg.Gateway.BufferSize,
		PingInterval:   cfg.Gateway.PingInterval,
		PongTimeout:    cfg.Gateway.PongTimeout,
		WriteTimeout:   cfg.Gateway.WriteTimeout,
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
	}, eng, logger.With("component", "gateway"))

	mounts := httpapi.Mounts{WebSocket: ws}
	if cfg.Metrics.Enabled {
		mounts.Metrics = metrics.Handler(metrics.NewRegistry(eng))
		mounts.MetricsPath = cfg.Metrics.Path
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpapi.NewRouter(eng, mounts, logger.With("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			"port", cfg.HTTP.Port,
			"symbols", cfg.Poller.Symbols.Total(),
			"ws_url", fmt.Sprintf("ws://localhost:%d/ws", cfg.HTTP.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal", "open_connections", ws.Count())
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := ws.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Warn("engine shutdown", "error", err)
	}
	return runErr
}

// engineConfig maps file configuration onto the engine's component configs.
func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()

	ec.Poller = poller.Config{
		Interval:      cfg.Poller.Interval,
		BatchSize:     cfg.Poller.BatchSize,
		BatchDelay:    cfg.Poller.BatchDelay,
		ErrorCooldown: cfg.Poller.ErrorCooldown,
		Timeout:       cfg.Provider.Timeout,
		Symbols:       cfg.Poller.Symbols.ByCategory(),
	}
	ec.Alerts = alert.Config{
		Interval:     cfg.Alerts.Interval,
		StoreTimeout: ec.Alerts.StoreTimeout,
	}
	ec.Cache = cache.Config{
		StaleAfter:   cfg.Cache.StaleAfter,
		FetchTimeout: cfg.Cache.FetchTimeout,
	}
	ec.Dispatcher = dispatch.Config{
		IdleSleep:     cfg.Dispatcher.IdleSleep,
		MirrorTimeout: ec.Dispatcher.MirrorTimeout,
	}
	ec.HistoryCapacity = cfg.Cache.HistoryCapacity
	ec.DataPointQueue = cfg.Queues.DataPoints
	ec.AlertQueue = cfg.Queues.Alerts
	return ec
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
