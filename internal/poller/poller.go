package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/market-stream/internal/cache"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/queue"
	"github.com/rickgao/market-stream/internal/ratelimit"
)

// BarSource fetches the latest bars for a batch of upstream symbols.
type BarSource interface {
	Name() string
	LatestBars(ctx context.Context, symbols []string) (map[string][]model.Bar, error)
}

// Config holds poller configuration.
type Config struct {
	Interval      time.Duration               // Poll interval (default: 60s)
	BatchSize     int                         // Symbols per upstream request (default: 3)
	BatchDelay    time.Duration               // Pause between sub-batches (default: 1s)
	ErrorCooldown time.Duration               // Extra pause after a failed sub-batch (default: 5s)
	Timeout       time.Duration               // Per-request timeout (default: 15s)
	Symbols       map[model.Category][]string // Tracked symbols per category
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      60 * time.Second,
		BatchSize:     3,
		BatchDelay:    time.Second,
		ErrorCooldown: 5 * time.Second,
		Timeout:       15 * time.Second,
	}
}

// Stats contains poller counters.
type Stats struct {
	Cycles          int64
	Batches         int64
	BatchErrors     int64
	PointsProcessed int64
	SymbolsMissing  int64
	Panics          int64
}

// Poller periodically fetches quotes in small rate-limited batches and feeds
// the cache, the history ring and the data-point queue.
type Poller struct {
	cfg     Config
	source  BarSource
	limiter ratelimit.Limiter
	store   *cache.Store
	history *cache.History
	points  *queue.Bounded[model.PricePoint]
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles, batches, batchErrors atomic.Int64
	processed, missing, panics   atomic.Int64
}

// New creates a new Poller.
func New(
	cfg Config,
	source BarSource,
	limiter ratelimit.Limiter,
	store *cache.Store,
	history *cache.History,
	points *queue.Bounded[model.PricePoint],
	logger *slog.Logger,
) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		limiter: limiter,
		store:   store,
		history: history,
		points:  points,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("quote poller started",
		"interval", p.cfg.Interval,
		"batch_size", p.cfg.BatchSize,
		"provider", p.source.Name(),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("quote poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:          p.cycles.Load(),
		Batches:         p.batches.Load(),
		BatchErrors:     p.batchErrors.Load(),
		PointsProcessed: p.processed.Load(),
		SymbolsMissing:  p.missing.Load(),
		Panics:          p.panics.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.safeCycle()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.safeCycle()
		}
	}
}

// safeCycle runs one cycle, containing any panic so the loop survives.
func (p *Poller) safeCycle() {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("poll cycle panicked", "panic", r)
		}
	}()
	p.pollCycle()
}

// pollCycle fetches every tracked category in sub-batches.
func (p *Poller) pollCycle() {
	start := time.Now()
	p.cycles.Add(1)

	var fetched, failed int
	first := true

	for _, category := range model.Categories {
		for _, batch := range splitBatches(p.cfg.Symbols[category], p.cfg.BatchSize) {
			if p.ctx.Err() != nil {
				return
			}

			// Spread load across the cycle.
			if !first && !p.sleep(p.cfg.BatchDelay) {
				return
			}
			first = false

			n, err := p.pollBatch(category, batch)
			if err != nil {
				failed++
				p.batchErrors.Add(1)
				p.logger.Warn("failed to poll batch",
					"category", category,
					"symbols", batch,
					"error", err,
				)
				if !p.sleep(p.cfg.ErrorCooldown) {
					return
				}
				continue
			}
			fetched += n
		}
	}

	p.logger.Info("poll cycle complete",
		"fetched", fetched,
		"failed_batches", failed,
		"duration", time.Since(start),
	)
}

// pollBatch waits on the rate limiter, fetches one sub-batch and records the
// results. Returns the number of symbols processed.
func (p *Poller) pollBatch(category model.Category, symbols []string) (int, error) {
	if err := p.limiter.Wait(p.ctx, p.source.Name()); err != nil {
		return 0, err
	}
	p.batches.Add(1)

	upstream := make([]string, len(symbols))
	for i, s := range symbols {
		upstream[i] = category.UpstreamSymbol(s)
	}

	ctx := p.ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.cfg.Timeout)
		defer cancel()
	}

	bars, err := p.source.LatestBars(ctx, upstream)
	if err != nil {
		return 0, err
	}

	now := p.now()
	n := 0
	for i, sym := range symbols {
		point, ok := model.PointFromBars(sym, category, bars[upstream[i]], now)
		if !ok {
			p.missing.Add(1)
			p.logger.Debug("symbol missing from batch response",
				"symbol", upstream[i],
			)
			continue
		}
		p.record(point)
		n++
	}
	return n, nil
}

// record writes a point to the cache and history and offers it for delivery.
func (p *Poller) record(point model.PricePoint) {
	p.store.Put(point.Category, point.Symbol, point)
	p.history.Append(point.Symbol, model.HistoryPoint{
		Timestamp: point.ObservedAt,
		Price:     point.Price,
		Volume:    point.Volume,
	})
	p.processed.Add(1)

	if !p.points.TrySend(point) {
		p.logger.Debug("data point queue full, dropping point", "symbol", point.Symbol)
	}
}

// sleep pauses for d. Returns false if the poller was cancelled meanwhile.
func (p *Poller) sleep(d time.Duration) bool {
	if d <= 0 {
		return p.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-p.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// splitBatches splits symbols into consecutive groups of at most size.
func splitBatches(symbols []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[start:end])
	}
	return out
}
