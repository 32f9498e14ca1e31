// Package alert holds per-user price alerts and fires each one at most once
// when its condition is met against the cached price.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/queue"
)

// Errors
var (
	ErrEmptyUser        = errors.New("user id is required")
	ErrEmptySymbol      = errors.New("symbol is required")
	ErrInvalidAlertType = errors.New("invalid alert type")
	ErrInvalidTrigger   = errors.New("trigger price must be a positive number")
)

// PriceSource resolves a symbol to its latest cached entry in any category.
type PriceSource interface {
	Lookup(symbol string) (model.CacheEntry, bool)
}

// Store persists alerts across restarts. Failures are logged by the
// evaluator and never returned to callers.
type Store interface {
	LoadAlerts(ctx context.Context) ([]model.PriceAlert, error)
	SaveAlert(ctx context.Context, a model.PriceAlert) error
	DeleteAlerts(ctx context.Context, ids []string) error
}

// Config holds evaluator configuration.
type Config struct {
	Interval     time.Duration // Evaluation interval (default: 5s)
	StoreTimeout time.Duration // Timeout for one persistence call (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		StoreTimeout: 5 * time.Second,
	}
}

// Stats contains evaluator counters.
type Stats struct {
	Cycles    int64
	Triggered int64
	Dropped   int64 // triggered but not queued for delivery
	Skipped   int64 // evaluations with no cached price
	Panics    int64
	Active    int
}

// Evaluator owns the alert table and the evaluation loop.
type Evaluator struct {
	cfg    Config
	prices PriceSource
	out    *queue.Bounded[model.PriceAlert]
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	alerts map[string][]model.PriceAlert // user ID → alerts

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles, triggered, dropped, skipped, panics atomic.Int64
}

// NewEvaluator creates an Evaluator. store may be nil.
func NewEvaluator(
	cfg Config,
	prices PriceSource,
	out *queue.Bounded[model.PriceAlert],
	store Store,
	logger *slog.Logger,
) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		cfg:    cfg,
		prices: prices,
		out:    out,
		store:  store,
		logger: logger,
		now:    time.Now,
		alerts: make(map[string][]model.PriceAlert),
	}
}

// Start restores persisted alerts and begins the evaluation loop.
func (e *Evaluator) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if e.store != nil {
		e.restore()
	}

	e.wg.Add(1)
	go e.run()

	e.logger.Info("alert evaluator started",
		"interval", e.cfg.Interval,
		"active_alerts", e.Count(),
	)
	return nil
}

// Stop gracefully shuts down the evaluator.
func (e *Evaluator) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("alert evaluator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add validates and registers a new alert for userID.
func (e *Evaluator) Add(ctx context.Context, userID, symbol string, trigger float64, typ model.AlertType) (model.PriceAlert, error) {
	if userID == "" {
		return model.PriceAlert{}, ErrEmptyUser
	}
	sym := model.NormalizeSymbol(symbol)
	if sym == "" {
		return model.PriceAlert{}, ErrEmptySymbol
	}
	if !typ.Valid() {
		return model.PriceAlert{}, fmt.Errorf("%w: %q", ErrInvalidAlertType, typ)
	}
	if math.IsNaN(trigger) || math.IsInf(trigger, 0) || trigger <= 0 {
		return model.PriceAlert{}, ErrInvalidTrigger
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.PriceAlert{}, fmt.Errorf("generate alert id: %w", err)
	}

	a := model.PriceAlert{
		ID:           id.String(),
		UserID:       userID,
		Symbol:       sym,
		TriggerPrice: trigger,
		Type:         typ,
		CreatedAt:    e.now().UTC(),
	}
	if entry, ok := e.prices.Lookup(sym); ok {
		a.CurrentPrice = entry.Point.Price
	}

	// Persist before the alert becomes visible to evaluation, so a fire's
	// delete can never run ahead of the insert.
	if e.store != nil {
		sctx, cancel := e.storeContext(ctx)
		err := e.store.SaveAlert(sctx, a)
		cancel()
		if err != nil {
			e.logger.Warn("failed to persist alert", "alert_id", a.ID, "error", err)
		}
	}

	e.mu.Lock()
	e.alerts[userID] = append(e.alerts[userID], a)
	e.mu.Unlock()

	e.logger.Debug("alert added",
		"alert_id", a.ID,
		"user_id", userID,
		"symbol", sym,
		"type", typ,
		"trigger", trigger,
	)
	return a, nil
}

// Remove deletes one of userID's alerts. Returns false if it was not found.
func (e *Evaluator) Remove(ctx context.Context, userID, alertID string) bool {
	e.mu.Lock()
	list := e.alerts[userID]
	idx := -1
	for i := range list {
		if list[i].ID == alertID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	list = append(list[:idx], list[idx+1:]...)
	if len(list) == 0 {
		delete(e.alerts, userID)
	} else {
		e.alerts[userID] = list
	}
	e.mu.Unlock()

	if e.store != nil {
		sctx, cancel := e.storeContext(ctx)
		defer cancel()
		if err := e.store.DeleteAlerts(sctx, []string{alertID}); err != nil {
			e.logger.Warn("failed to delete persisted alert", "alert_id", alertID, "error", err)
		}
	}
	return true
}

// List returns a copy of userID's pending alerts in creation order.
func (e *Evaluator) List(userID string) []model.PriceAlert {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.alerts[userID]
	out := make([]model.PriceAlert, len(list))
	copy(out, list)
	return out
}

// Count returns the number of pending alerts across all users.
func (e *Evaluator) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, list := range e.alerts {
		n += len(list)
	}
	return n
}

// Stats returns current counters.
func (e *Evaluator) Stats() Stats {
	return Stats{
		Cycles:    e.cycles.Load(),
		Triggered: e.triggered.Load(),
		Dropped:   e.dropped.Load(),
		Skipped:   e.skipped.Load(),
		Panics:    e.panics.Load(),
		Active:    e.Count(),
	}
}

// run is the main evaluation loop.
func (e *Evaluator) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.safeEvaluate()
		}
	}
}

// safeEvaluate runs one pass, containing any panic so the loop survives.
func (e *Evaluator) safeEvaluate() {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.logger.Error("alert evaluation panicked", "panic", r)
		}
	}()
	e.evaluate()
}

// evaluate checks every alert against the cache and clears persisted copies
// of the ones that fired.
func (e *Evaluator) evaluate() {
	e.cycles.Add(1)

	fired := e.fire()
	if len(fired) == 0 {
		return
	}
	e.logger.Info("alerts triggered", "count", len(fired))

	if e.store != nil {
		ctx, cancel := e.storeContext(e.ctx)
		defer cancel()
		if err := e.store.DeleteAlerts(ctx, fired); err != nil {
			e.logger.Warn("failed to delete triggered alerts", "count", len(fired), "error", err)
		}
	}
}

// fire queues and removes every alert whose condition holds. Both happen
// under the table lock, so each alert fires at most once.
func (e *Evaluator) fire() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []string
	for userID, list := range e.alerts {
		kept := make([]model.PriceAlert, 0, len(list))
		for _, a := range list {
			entry, ok := e.prices.Lookup(a.Symbol)
			if !ok {
				e.skipped.Add(1)
				kept = append(kept, a)
				continue
			}
			a.CurrentPrice = entry.Point.Price

			if !Triggered(a, entry.Point) {
				kept = append(kept, a)
				continue
			}

			a.TriggeredAt = e.now().UTC()
			a.Message = Message(a, entry.Point)
			if !e.out.TrySend(a) {
				e.dropped.Add(1)
				e.logger.Warn("alert queue full, dropping triggered alert",
					"alert_id", a.ID,
					"user_id", a.UserID,
				)
			}
			e.triggered.Add(1)
			fired = append(fired, a.ID)
		}

		if len(kept) == 0 {
			delete(e.alerts, userID)
		} else {
			e.alerts[userID] = kept
		}
	}
	return fired
}

// restore loads persisted alerts into the table.
func (e *Evaluator) restore() {
	ctx, cancel := e.storeContext(e.ctx)
	defer cancel()

	alerts, err := e.store.LoadAlerts(ctx)
	if err != nil {
		e.logger.Warn("failed to load persisted alerts", "error", err)
		return
	}

	e.mu.Lock()
	for _, a := range alerts {
		e.alerts[a.UserID] = append(e.alerts[a.UserID], a)
	}
	e.mu.Unlock()

	e.logger.Info("restored persisted alerts", "count", len(alerts))
}

func (e *Evaluator) storeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if e.cfg.StoreTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, e.cfg.StoreTimeout)
}
