package alert

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/queue"
)

// stubPrices is a PriceSource backed by a map of normalized symbols.
type stubPrices struct {
	mu     sync.Mutex
	points map[string]model.PricePoint
}

func newStubPrices() *stubPrices {
	return &stubPrices{points: make(map[string]model.PricePoint)}
}

func (s *stubPrices) set(symbol string, price, changePercent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[model.NormalizeSymbol(symbol)] = model.PricePoint{
		Symbol:        model.NormalizeSymbol(symbol),
		Price:         price,
		ChangePercent: changePercent,
	}
}

func (s *stubPrices) Lookup(symbol string) (model.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[model.NormalizeSymbol(symbol)]
	if !ok {
		return model.CacheEntry{}, false
	}
	return model.CacheEntry{Point: p}, true
}

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	saved   map[string]model.PriceAlert
	deleted []string
	loadErr error
	saveErr error

	// saving is closed when SaveAlert starts; SaveAlert then blocks
	// until release is closed. Both nil means no blocking.
	saving  chan struct{}
	release chan struct{}
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]model.PriceAlert)}
}

func (m *memStore) LoadAlerts(context.Context) ([]model.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var out []model.PriceAlert
	for _, a := range m.saved {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) SaveAlert(_ context.Context, a model.PriceAlert) error {
	if m.release != nil {
		close(m.saving)
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[a.ID] = a
	return nil
}

func (m *memStore) DeleteAlerts(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.saved, id)
		m.deleted = append(m.deleted, id)
	}
	return nil
}

func newTestEvaluator(prices PriceSource, queueSize int, store Store) (*Evaluator, *queue.Bounded[model.PriceAlert]) {
	out := queue.New[model.PriceAlert](queueSize)
	e := NewEvaluator(Config{Interval: time.Hour, StoreTimeout: time.Second}, prices, out, store, nil)
	e.ctx = context.Background()
	return e, out
}

func TestEvaluator_Add(t *testing.T) {
	prices := newStubPrices()
	prices.set("EQNR", 280, 0)
	e, _ := newTestEvaluator(prices, 10, nil)

	a, err := e.Add(context.Background(), "u1", "eqnr.ol", 300, model.AlertAbove)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.ID == "" {
		t.Error("alert ID is empty")
	}
	if a.Symbol != "EQNR" {
		t.Errorf("Symbol = %q, want EQNR", a.Symbol)
	}
	if a.CurrentPrice != 280 {
		t.Errorf("CurrentPrice = %v, want 280", a.CurrentPrice)
	}
	if a.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	list := e.List("u1")
	if len(list) != 1 || list[0].ID != a.ID {
		t.Errorf("List = %+v", list)
	}
	if e.Count() != 1 {
		t.Errorf("Count = %d, want 1", e.Count())
	}
}

func TestEvaluator_AddIDsAreTimeOrdered(t *testing.T) {
	e, _ := newTestEvaluator(newStubPrices(), 10, nil)

	var prev string
	for i := 0; i < 20; i++ {
		a, err := e.Add(context.Background(), "u1", "EQNR", 100, model.AlertAbove)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if a.ID <= prev {
			t.Fatalf("ID %q not after %q", a.ID, prev)
		}
		prev = a.ID
	}
}

func TestEvaluator_AddValidation(t *testing.T) {
	e, _ := newTestEvaluator(newStubPrices(), 10, nil)

	tests := []struct {
		name    string
		user    string
		symbol  string
		trigger float64
		typ     model.AlertType
		wantErr error
	}{
		{"empty user", "", "EQNR", 100, model.AlertAbove, ErrEmptyUser},
		{"empty symbol", "u1", "  ", 100, model.AlertAbove, ErrEmptySymbol},
		{"bad type", "u1", "EQNR", 100, "sideways", ErrInvalidAlertType},
		{"zero trigger", "u1", "EQNR", 0, model.AlertBelow, ErrInvalidTrigger},
		{"negative trigger", "u1", "EQNR", -5, model.AlertBelow, ErrInvalidTrigger},
		{"NaN trigger", "u1", "EQNR", math.NaN(), model.AlertAbove, ErrInvalidTrigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Add(context.Background(), tt.user, tt.symbol, tt.trigger, tt.typ)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if e.Count() != 0 {
		t.Errorf("Count = %d, want 0", e.Count())
	}
}

func TestEvaluator_Remove(t *testing.T) {
	e, _ := newTestEvaluator(newStubPrices(), 10, nil)
	ctx := context.Background()

	a1, _ := e.Add(ctx, "u1", "EQNR", 100, model.AlertAbove)
	a2, _ := e.Add(ctx, "u1", "DNB", 100, model.AlertBelow)

	if e.Remove(ctx, "u2", a1.ID) {
		t.Error("Remove with wrong user returned true")
	}
	if !e.Remove(ctx, "u1", a1.ID) {
		t.Error("Remove returned false")
	}
	if e.Remove(ctx, "u1", a1.ID) {
		t.Error("second Remove returned true")
	}

	list := e.List("u1")
	if len(list) != 1 || list[0].ID != a2.ID {
		t.Errorf("List = %+v, want only %s", list, a2.ID)
	}
}

func TestEvaluator_FiresOnce(t *testing.T) {
	prices := newStubPrices()
	e, out := newTestEvaluator(prices, 10, nil)

	a, err := e.Add(context.Background(), "u1", "EQNR", 100, model.AlertAbove)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// No cache entry yet: skipped, not removed.
	e.evaluate()
	if out.Stats().Count != 0 || e.Count() != 1 {
		t.Fatalf("after miss: queued=%d count=%d", out.Stats().Count, e.Count())
	}

	prices.set("EQNR.OL", 105, 0)
	e.evaluate()
	e.evaluate()
	e.evaluate()

	if out.Stats().Count != 1 {
		t.Fatalf("queued = %d, want exactly 1", out.Stats().Count)
	}
	got, _ := out.TryReceive()
	if got.ID != a.ID {
		t.Errorf("fired alert ID = %q, want %q", got.ID, a.ID)
	}
	if got.CurrentPrice != 105 {
		t.Errorf("CurrentPrice = %v, want 105", got.CurrentPrice)
	}
	if got.Message == "" || !strings.Contains(got.Message, "EQNR") {
		t.Errorf("Message = %q", got.Message)
	}
	if got.TriggeredAt.IsZero() {
		t.Error("TriggeredAt not set")
	}

	if e.Count() != 0 || len(e.List("u1")) != 0 {
		t.Error("triggered alert still present")
	}
	stats := e.Stats()
	if stats.Triggered != 1 {
		t.Errorf("Triggered = %d, want 1", stats.Triggered)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
}

func TestEvaluator_UpdatesCurrentPriceWhileWaiting(t *testing.T) {
	prices := newStubPrices()
	prices.set("DNB", 190, 0)
	e, out := newTestEvaluator(prices, 10, nil)

	if _, err := e.Add(context.Background(), "u1", "DNB", 150, model.AlertBelow); err != nil {
		t.Fatalf("Add: %v", err)
	}

	prices.set("DNB", 170, 0)
	e.evaluate()

	if out.Stats().Count != 0 {
		t.Fatal("alert fired early")
	}
	if got := e.List("u1")[0].CurrentPrice; got != 170 {
		t.Errorf("CurrentPrice = %v, want 170", got)
	}
}

func TestEvaluator_FullQueueStillRemoves(t *testing.T) {
	prices := newStubPrices()
	prices.set("EQNR", 200, 0)
	e, out := newTestEvaluator(prices, 1, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Add(ctx, "u1", "EQNR", 100, model.AlertAbove); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	e.evaluate()

	if out.Stats().Count != 1 {
		t.Errorf("queued = %d, want 1", out.Stats().Count)
	}
	stats := e.Stats()
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}
	if stats.Triggered != 3 {
		t.Errorf("Triggered = %d, want 3", stats.Triggered)
	}
	if e.Count() != 0 {
		t.Errorf("Count = %d, want 0", e.Count())
	}
}

func TestEvaluator_Persistence(t *testing.T) {
	prices := newStubPrices()
	store := newMemStore()
	e, _ := newTestEvaluator(prices, 10, store)
	ctx := context.Background()

	a1, _ := e.Add(ctx, "u1", "EQNR", 100, model.AlertAbove)
	a2, _ := e.Add(ctx, "u2", "BTC", 5, model.AlertChangePercent)
	a3, _ := e.Add(ctx, "u2", "AAPL", 50, model.AlertBelow)
	if len(store.saved) != 3 {
		t.Fatalf("saved = %d, want 3", len(store.saved))
	}

	e.Remove(ctx, "u2", a3.ID)
	prices.set("EQNR", 101, 0)
	e.evaluate()

	if _, ok := store.saved[a1.ID]; ok {
		t.Error("triggered alert still persisted")
	}
	if _, ok := store.saved[a2.ID]; !ok {
		t.Error("pending alert missing from store")
	}

	// A fresh evaluator restores what is left.
	restored, _ := newTestEvaluator(prices, 10, store)
	if err := restored.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer restored.Stop(ctx)

	list := restored.List("u2")
	if len(list) != 1 || list[0].ID != a2.ID {
		t.Errorf("restored = %+v, want %s", list, a2.ID)
	}
}

func TestEvaluator_SlowSaveCannotResurrectFiredAlert(t *testing.T) {
	prices := newStubPrices()
	prices.set("EQNR", 105, 0)
	store := newMemStore()
	store.saving = make(chan struct{})
	store.release = make(chan struct{})
	e, out := newTestEvaluator(prices, 10, store)
	ctx := context.Background()

	added := make(chan model.PriceAlert, 1)
	go func() {
		a, _ := e.Add(ctx, "u1", "EQNR", 100, model.AlertAbove)
		added <- a
	}()

	// An evaluation pass while the insert is in flight must not see the alert.
	<-store.saving
	e.evaluate()
	if out.Stats().Count != 0 {
		t.Fatalf("alert fired before it was persisted")
	}

	close(store.release)
	a := <-added
	e.evaluate()
	if out.Stats().Count != 1 {
		t.Fatalf("queued = %d, want 1", out.Stats().Count)
	}
	store.mu.Lock()
	_, left := store.saved[a.ID]
	store.mu.Unlock()
	if left {
		t.Fatal("fired alert still persisted")
	}

	// A restart must not fire it again.
	store.saving, store.release = nil, nil
	restarted, restartedOut := newTestEvaluator(prices, 10, store)
	restarted.restore()
	restarted.evaluate()
	if restartedOut.Stats().Count != 0 {
		t.Errorf("alert fired again after restart")
	}
}

func TestEvaluator_StoreErrorsAreNotFatal(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("db down")
	store.loadErr = errors.New("db down")
	e, _ := newTestEvaluator(newStubPrices(), 10, store)
	ctx := context.Background()

	if _, err := e.Add(ctx, "u1", "EQNR", 100, model.AlertAbove); err != nil {
		t.Fatalf("Add returned store error: %v", err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start returned store error: %v", err)
	}
	defer e.Stop(ctx)

	if e.Count() != 1 {
		t.Errorf("Count = %d, want 1", e.Count())
	}
}

// panicPrices panics on lookup.
type panicPrices struct{}

func (panicPrices) Lookup(string) (model.CacheEntry, bool) { panic("lookup failed") }

func TestEvaluator_PanicIsContained(t *testing.T) {
	e, _ := newTestEvaluator(panicPrices{}, 10, nil)
	e.alerts["u1"] = []model.PriceAlert{{ID: "x", UserID: "u1", Symbol: "EQNR", TriggerPrice: 1, Type: model.AlertAbove}}

	e.safeEvaluate()

	if got := e.Stats().Panics; got != 1 {
		t.Errorf("Panics = %d, want 1", got)
	}
}

func TestEvaluator_StartStop(t *testing.T) {
	prices := newStubPrices()
	prices.set("EQNR", 105, 0)
	out := queue.New[model.PriceAlert](10)
	e := NewEvaluator(Config{Interval: 20 * time.Millisecond}, prices, out, nil, nil)

	if _, err := e.Add(context.Background(), "u1", "EQNR", 100, model.AlertAbove); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for out.Stats().Count == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if out.Stats().Count != 1 {
		t.Errorf("queued = %d, want 1", out.Stats().Count)
	}
}
