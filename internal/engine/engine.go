// Package engine wires the cache, subscription registry, poller, alert
// evaluator and dispatcher into one service with a single lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/market-stream/internal/alert"
	"github.com/rickgao/market-stream/internal/cache"
	"github.com/rickgao/market-stream/internal/dispatch"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/poller"
	"github.com/rickgao/market-stream/internal/queue"
	"github.com/rickgao/market-stream/internal/ratelimit"
	"github.com/rickgao/market-stream/internal/subscription"
)

// Source is the upstream quote provider: batch bars for the poller and
// single-symbol fetches for on-demand lookups.
type Source interface {
	poller.BarSource
	cache.Fetcher
}

// SnapshotSource serves the last points a previous run published.
type SnapshotSource interface {
	Snapshots(ctx context.Context, symbols []string) ([]model.PricePoint, error)
}

// warmTimeout bounds the snapshot read done at Start.
const warmTimeout = 5 * time.Second

// Config holds engine configuration.
type Config struct {
	Poller          poller.Config
	Alerts          alert.Config
	Cache           cache.Config
	Dispatcher      dispatch.Config
	HistoryCapacity int // Points kept per symbol (default: 1440)
	DataPointQueue  int // Data-point queue capacity (default: 1000)
	AlertQueue      int // Triggered-alert queue capacity (default: 200)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Poller:          poller.DefaultConfig(),
		Alerts:          alert.DefaultConfig(),
		Cache:           cache.DefaultConfig(),
		Dispatcher:      dispatch.DefaultConfig(),
		HistoryCapacity: cache.DefaultHistoryCapacity,
		DataPointQueue:  1000,
		AlertQueue:      200,
	}
}

// Deps are the engine's external collaborators. AlertStore, Mirror and
// Snapshots are optional.
type Deps struct {
	Source     Source
	Limiter    ratelimit.Limiter
	AlertStore alert.Store
	Mirror     dispatch.Mirror
	Snapshots  SnapshotSource
	Logger     *slog.Logger
}

// Engine is the market data service. Construct once with New and share the
// pointer; all methods are safe for concurrent use.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	snapshots SnapshotSource

	store    *cache.Store
	history  *cache.History
	registry *subscription.Registry
	points   *queue.Bounded[model.PricePoint]
	alerts   *queue.Bounded[model.PriceAlert]

	poller     *poller.Poller
	evaluator  *alert.Evaluator
	dispatcher *dispatch.Dispatcher

	startTime time.Time
}

// New builds an engine and its workers. Nothing runs until Start.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Source == nil {
		return nil, errors.New("engine: quote source is required")
	}
	if deps.Limiter == nil {
		return nil, errors.New("engine: rate limiter is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		snapshots: deps.Snapshots,
		store:     cache.NewStore(cfg.Cache, deps.Source, deps.Limiter, logger.With("component", "cache")),
		history:   cache.NewHistory(cfg.HistoryCapacity),
		registry:  subscription.NewRegistry(),
		points:    queue.New[model.PricePoint](cfg.DataPointQueue),
		alerts:    queue.New[model.PriceAlert](cfg.AlertQueue),
	}

	e.poller = poller.New(cfg.Poller, deps.Source, deps.Limiter,
		e.store, e.history, e.points, logger.With("component", "poller"))
	e.evaluator = alert.NewEvaluator(cfg.Alerts, e.store, e.alerts,
		deps.AlertStore, logger.With("component", "alerts"))
	e.dispatcher = dispatch.New(cfg.Dispatcher, e.points, e.alerts,
		e.registry, deps.Mirror, logger.With("component", "dispatcher"))

	return e, nil
}

// Start seeds the cache from snapshots, then launches the poller, alert
// evaluator and dispatcher.
func (e *Engine) Start(ctx context.Context) error {
	e.startTime = e.now()
	e.warmCache(ctx)

	if err := e.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	if err := e.evaluator.Start(ctx); err != nil {
		return fmt.Errorf("start alert evaluator: %w", err)
	}
	if err := e.poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	e.logger.Info("market engine started")
	return nil
}

// Stop shuts the workers down in reverse start order.
func (e *Engine) Stop(ctx context.Context) error {
	var errs []error
	if err := e.poller.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop poller: %w", err))
	}
	if err := e.evaluator.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop alert evaluator: %w", err))
	}
	if err := e.dispatcher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop dispatcher: %w", err))
	}
	e.points.Close()
	e.alerts.Close()

	e.logger.Info("market engine stopped")
	return errors.Join(errs...)
}

// warmCache fills empty cache keys for tracked symbols from the snapshot
// source. Warmed entries carry their original observation time, so they
// are served as stale until the first poll replaces them.
func (e *Engine) warmCache(ctx context.Context) {
	if e.snapshots == nil {
		return
	}

	categories := make(map[string]model.Category)
	var symbols []string
	for _, c := range model.Categories {
		for _, s := range e.cfg.Poller.Symbols[c] {
			sym := model.NormalizeSymbol(s)
			if _, ok := categories[sym]; ok {
				continue
			}
			categories[sym] = c
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	points, err := e.snapshots.Snapshots(ctx, symbols)
	if err != nil {
		e.logger.Warn("cache warm-up failed", "error", err)
		return
	}

	warmed := 0
	for _, p := range points {
		c, ok := categories[model.NormalizeSymbol(p.Symbol)]
		if !ok {
			continue
		}
		p.Category = c
		if e.store.Warm(p) {
			warmed++
		}
	}
	e.logger.Info("cache warmed from snapshots", "entries", warmed, "tracked", len(symbols))
}

// OnConnect registers a client connection and sends it the market summary.
// userID may be empty for anonymous clients.
func (e *Engine) OnConnect(connID, userID string, out subscription.Outbound) error {
	if err := e.registry.Connect(connID, userID, out); err != nil {
		return err
	}
	e.push(connID, model.EventMarketSummary, e.GetMarketSummary())

	e.logger.Debug("client connected", "conn_id", connID, "user_id", userID)
	return nil
}

// OnDisconnect removes the connection and all of its subscriptions.
func (e *Engine) OnDisconnect(connID string) {
	if e.registry.Disconnect(connID) {
		e.logger.Debug("client disconnected", "conn_id", connID)
	}
}

// Subscribe adds symbol to the connection's set and acknowledges it.
// Returns the normalized symbol.
func (e *Engine) Subscribe(connID, symbol string) (string, error) {
	sym, _, err := e.registry.Subscribe(connID, symbol)
	if err != nil {
		return "", err
	}
	e.push(connID, model.EventSubscriptionConfirmed, model.SubscriptionAck{
		Symbol: sym,
		Status: "subscribed",
	})
	return sym, nil
}

// Unsubscribe removes symbol from the connection's set. No-op if absent.
func (e *Engine) Unsubscribe(connID, symbol string) string {
	sym, removed := e.registry.Unsubscribe(connID, symbol)
	if removed {
		e.push(connID, model.EventSubscriptionConfirmed, model.SubscriptionAck{
			Symbol: sym,
			Status: "unsubscribed",
		})
	}
	return sym
}

func (e *Engine) push(connID string, typ model.EventType, data any) {
	out, ok := e.registry.Outbound(connID)
	if !ok {
		return
	}
	if !out.Push(model.Event{Type: typ, Data: data, Timestamp: e.now().UTC()}) {
		e.logger.Debug("connection buffer full, dropping event",
			"conn_id", connID,
			"type", typ,
		)
	}
}

// GetLivePrice returns a fresh price, fetching on demand when the cached
// entry is stale. If the fetch fails a stale entry is served when present.
func (e *Engine) GetLivePrice(ctx context.Context, symbol string, category model.Category) (model.CacheEntry, bool) {
	if entry, ok := e.store.GetOrFetch(ctx, symbol, category); ok {
		return entry, true
	}
	return e.store.Get(category, symbol)
}

// AddAlert registers a fire-once alert for userID.
func (e *Engine) AddAlert(ctx context.Context, userID, symbol string, trigger float64, typ model.AlertType) (model.PriceAlert, error) {
	return e.evaluator.Add(ctx, userID, symbol, trigger, typ)
}

// RemoveAlert deletes one of userID's alerts. Returns false if not found.
func (e *Engine) RemoveAlert(ctx context.Context, userID, alertID string) bool {
	return e.evaluator.Remove(ctx, userID, alertID)
}

// ListAlerts returns userID's pending alerts.
func (e *Engine) ListAlerts(userID string) []model.PriceAlert {
	return e.evaluator.List(userID)
}

// GetPriceHistory returns the symbol's points from the last minutes.
// minutes <= 0 returns the whole retained history.
func (e *Engine) GetPriceHistory(symbol string, minutes int) []model.HistoryPoint {
	var since time.Time
	if minutes > 0 {
		since = e.now().Add(-time.Duration(minutes) * time.Minute)
	}
	return e.history.Since(symbol, since)
}

// GetStats returns a snapshot of the service counters.
func (e *Engine) GetStats() model.ServiceStats {
	ps := e.poller.Stats()
	as := e.evaluator.Stats()
	ds := e.dispatcher.Stats()
	pq := e.points.Stats()
	aq := e.alerts.Stats()

	stats := model.ServiceStats{
		MessagesSent:        ds.MessagesSent,
		DataPointsProcessed: ps.PointsProcessed,
		ActiveConnections:   e.registry.Count(),
		AlertsTriggered:     as.Triggered,
		ActiveAlerts:        as.Active,
		DroppedDataPoints:   pq.Dropped,
		DroppedAlerts:       aq.Dropped,
		DroppedDeliveries:   ds.DroppedDeliveries,
		FetchErrors:         ps.BatchErrors + e.store.FetchErrors(),
		StartTime:           e.startTime,

		DataPointQueueDepth:     pq.Count,
		DataPointQueueHighWater: pq.HighWater,
		AlertQueueDepth:         aq.Count,
		AlertQueueHighWater:     aq.HighWater,
	}
	if !e.startTime.IsZero() {
		stats.Uptime = e.now().Sub(e.startTime)
	}
	return stats
}
