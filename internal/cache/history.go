package cache

import (
	"sync"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// DefaultHistoryCapacity is 24h at 1-minute resolution.
const DefaultHistoryCapacity = 1440

// ring holds the last N history points for one symbol.
type ring struct {
	buf   []model.HistoryPoint
	start int
	count int
}

// add appends a point, overwriting the oldest entry when full.
func (r *ring) add(p model.HistoryPoint) {
	size := len(r.buf)
	idx := (r.start + r.count) % size
	if r.count == size {
		r.start = (r.start + 1) % size
		r.count--
	}
	r.buf[idx] = p
	r.count++
}

// since returns points with Timestamp >= t, oldest first.
func (r *ring) since(t time.Time) []model.HistoryPoint {
	var out []model.HistoryPoint
	for i := 0; i < r.count; i++ {
		p := r.buf[(r.start+i)%len(r.buf)]
		if !p.Timestamp.Before(t) {
			out = append(out, p)
		}
	}
	return out
}

// History keeps a bounded, append-only price history per symbol.
// Rings are keyed by normalized symbol without category; configuration
// rejects a symbol tracked under two categories.
type History struct {
	capacity int

	mu    sync.RWMutex
	rings map[string]*ring
}

// NewHistory creates a history store with the given per-symbol capacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Append records a point for symbol, evicting the oldest when at capacity.
func (h *History) Append(symbol string, p model.HistoryPoint) {
	sym := model.NormalizeSymbol(symbol)

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rings[sym]
	if !ok {
		r = &ring{buf: make([]model.HistoryPoint, h.capacity)}
		h.rings[sym] = r
	}
	r.add(p)
}

// Since returns the symbol's points recorded at or after t, oldest first.
func (h *History) Since(symbol string, t time.Time) []model.HistoryPoint {
	sym := model.NormalizeSymbol(symbol)

	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.rings[sym]
	if !ok {
		return nil
	}
	return r.since(t)
}
