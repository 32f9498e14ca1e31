// Package dispatch drains the data-point and alert queues and pushes each
// item to the connections that should receive it.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/queue"
	"github.com/rickgao/market-stream/internal/subscription"
)

// Targets resolves which connections receive an item.
// *subscription.Registry satisfies it.
type Targets interface {
	MatchingConnections(symbol string) []string
	ConnectionsForUser(userID string) []string
	Outbound(connID string) (subscription.Outbound, bool)
}

// Mirror receives a copy of every dispatched item, e.g. for cross-process
// fan-out. Errors are counted and logged.
type Mirror interface {
	PublishPoint(ctx context.Context, p model.PricePoint) error
	PublishAlert(ctx context.Context, a model.PriceAlert) error
}

// Config holds dispatcher configuration.
type Config struct {
	IdleSleep     time.Duration // Sleep when both queues are empty (default: 10ms)
	MirrorTimeout time.Duration // Timeout for one mirror publish (default: 2s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		IdleSleep:     10 * time.Millisecond,
		MirrorTimeout: 2 * time.Second,
	}
}

// Stats contains dispatcher counters.
type Stats struct {
	PointsDispatched  int64
	AlertsDispatched  int64
	MessagesSent      int64
	DroppedDeliveries int64
	MirrorErrors      int64
	Panics            int64
}

// Dispatcher is the single consumer of both queues.
type Dispatcher struct {
	cfg     Config
	points  *queue.Bounded[model.PricePoint]
	alerts  *queue.Bounded[model.PriceAlert]
	targets Targets
	mirror  Mirror
	logger  *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pointsDispatched, alertsDispatched atomic.Int64
	sent, droppedDeliveries            atomic.Int64
	mirrorErrors, panics               atomic.Int64
}

// New creates a Dispatcher. mirror may be nil.
func New(
	cfg Config,
	points *queue.Bounded[model.PricePoint],
	alerts *queue.Bounded[model.PriceAlert],
	targets Targets,
	mirror Mirror,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = 10 * time.Millisecond
	}
	return &Dispatcher{
		cfg:     cfg,
		points:  points,
		alerts:  alerts,
		targets: targets,
		mirror:  mirror,
		logger:  logger,
		now:     time.Now,
	}
}

// Start begins draining the queues.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.consumeLoop()

	d.logger.Info("broadcast dispatcher started",
		"idle_sleep", d.cfg.IdleSleep,
		"mirror", d.mirror != nil,
	)
	return nil
}

// Stop gracefully shuts down the dispatcher. Items still queued are discarded.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("broadcast dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		PointsDispatched:  d.pointsDispatched.Load(),
		AlertsDispatched:  d.alertsDispatched.Load(),
		MessagesSent:      d.sent.Load(),
		DroppedDeliveries: d.droppedDeliveries.Load(),
		MirrorErrors:      d.mirrorErrors.Load(),
		Panics:            d.panics.Load(),
	}
}

// consumeLoop alternates between the two queues and sleeps briefly when
// both are empty.
func (d *Dispatcher) consumeLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !d.drainOnce() {
				select {
				case <-d.ctx.Done():
					return
				case <-time.After(d.cfg.IdleSleep):
					continue
				}
			}
		}
	}
}

// drainOnce dispatches at most one item from each queue.
// Returns false if both queues were empty.
func (d *Dispatcher) drainOnce() bool {
	worked := false

	if p, ok := d.points.TryReceive(); ok {
		worked = true
		d.safely(func() { d.dispatchPoint(p) })
	}
	if a, ok := d.alerts.TryReceive(); ok {
		worked = true
		d.safely(func() { d.dispatchAlert(a) })
	}
	return worked
}

// safely runs fn, containing any panic so the loop survives.
func (d *Dispatcher) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("dispatch panicked", "panic", r)
		}
	}()
	fn()
}

// dispatchPoint pushes a market_data_update to every subscriber of the symbol.
func (d *Dispatcher) dispatchPoint(p model.PricePoint) {
	d.pointsDispatched.Add(1)

	ev := model.Event{
		Type:      model.EventMarketDataUpdate,
		Data:      p,
		Timestamp: d.now().UTC(),
	}
	d.deliver(d.targets.MatchingConnections(p.Symbol), ev)

	if d.mirror != nil {
		ctx, cancel := d.mirrorContext()
		defer cancel()
		if err := d.mirror.PublishPoint(ctx, p); err != nil {
			d.mirrorErrors.Add(1)
			d.logger.Debug("mirror publish failed", "symbol", p.Symbol, "error", err)
		}
	}
}

// dispatchAlert pushes a price_alert to every connection of the owning user.
func (d *Dispatcher) dispatchAlert(a model.PriceAlert) {
	d.alertsDispatched.Add(1)

	ev := model.Event{
		Type:      model.EventPriceAlert,
		Data:      a,
		Timestamp: d.now().UTC(),
	}
	conns := d.targets.ConnectionsForUser(a.UserID)
	if len(conns) == 0 {
		d.logger.Debug("no live connection for alert owner",
			"alert_id", a.ID,
			"user_id", a.UserID,
		)
	}
	d.deliver(conns, ev)

	if d.mirror != nil {
		ctx, cancel := d.mirrorContext()
		defer cancel()
		if err := d.mirror.PublishAlert(ctx, a); err != nil {
			d.mirrorErrors.Add(1)
			d.logger.Debug("mirror publish failed", "alert_id", a.ID, "error", err)
		}
	}
}

func (d *Dispatcher) deliver(connIDs []string, ev model.Event) {
	for _, id := range connIDs {
		out, ok := d.targets.Outbound(id)
		if !ok {
			continue
		}
		if out.Push(ev) {
			d.sent.Add(1)
		} else {
			d.droppedDeliveries.Add(1)
			d.logger.Debug("connection buffer full, dropping event",
				"conn_id", id,
				"type", ev.Type,
			)
		}
	}
}

func (d *Dispatcher) mirrorContext() (context.Context, context.CancelFunc) {
	parent := d.ctx
	if parent == nil {
		parent = context.Background()
	}
	if d.cfg.MirrorTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d.cfg.MirrorTimeout)
}
