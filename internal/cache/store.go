// Package cache holds the latest known price per (category, symbol) and a
// bounded per-symbol price history.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/ratelimit"
)

// Fetcher performs a synchronous on-demand fetch of a single symbol.
type Fetcher interface {
	Name() string
	FetchPoint(ctx context.Context, category model.Category, symbol string) (model.PricePoint, error)
}

// Config holds Cache Store configuration.
type Config struct {
	StaleAfter   time.Duration // Max entry age served by GetOrFetch (default: 5m)
	FetchTimeout time.Duration // Timeout for one on-demand fetch (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfter:   5 * time.Minute,
		FetchTimeout: 10 * time.Second,
	}
}

type key struct {
	category model.Category
	symbol   string
}

// Store is the in-memory price cache. Safe for concurrent use.
type Store struct {
	cfg     Config
	fetcher Fetcher
	limiter ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[key]*model.CacheEntry

	group       singleflight.Group
	fetchErrors atomic.Int64
}

// NewStore creates a Cache Store. fetcher may be nil, in which case
// GetOrFetch only ever serves fresh cached entries. When limiter is set,
// each on-demand fetch waits on it under the fetcher's name.
func NewStore(cfg Config, fetcher Fetcher, limiter ratelimit.Limiter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
		entries: make(map[key]*model.CacheEntry),
	}
}

// Put overwrites the entry for (category, symbol) and returns the stored value.
// UpdatedAt never moves backwards for a key.
func (s *Store) Put(category model.Category, symbol string, p model.PricePoint) model.CacheEntry {
	k := key{category: category, symbol: model.NormalizeSymbol(symbol)}
	p.Symbol = k.symbol
	p.Category = category
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok {
		e = &model.CacheEntry{}
		s.entries[k] = e
	}
	e.Point = p
	if now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
	return *e
}

// Warm seeds the entry for p's (category, symbol) if the key is empty,
// stamping it with p.ObservedAt. It reports whether the entry was added.
func (s *Store) Warm(p model.PricePoint) bool {
	k := key{category: p.Category, symbol: model.NormalizeSymbol(p.Symbol)}
	p.Symbol = k.symbol

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[k]; ok {
		return false
	}
	s.entries[k] = &model.CacheEntry{Point: p, UpdatedAt: p.ObservedAt}
	return true
}

// Get returns the cached entry for (category, symbol).
func (s *Store) Get(category model.Category, symbol string) (model.CacheEntry, bool) {
	k := key{category: category, symbol: model.NormalizeSymbol(symbol)}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[k]
	if !ok {
		return model.CacheEntry{}, false
	}
	return *e, true
}

// Lookup finds a symbol in any category, checking categories in polling order.
func (s *Store) Lookup(symbol string) (model.CacheEntry, bool) {
	sym := model.NormalizeSymbol(symbol)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range model.Categories {
		if e, ok := s.entries[key{category: c, symbol: sym}]; ok {
			return *e, true
		}
	}
	return model.CacheEntry{}, false
}

// GetOrFetch returns the cached entry if it is younger than StaleAfter.
// Otherwise it fetches the symbol once from upstream, caches and returns it.
// Concurrent callers for the same key share one upstream fetch.
// Any fetch failure is reported as ok=false.
func (s *Store) GetOrFetch(ctx context.Context, symbol string, category model.Category) (model.CacheEntry, bool) {
	sym := model.NormalizeSymbol(symbol)

	if e, ok := s.Get(category, sym); ok && e.Age(s.now()) < s.cfg.StaleAfter {
		return e, true
	}

	if s.fetcher == nil {
		return model.CacheEntry{}, false
	}

	v, err, _ := s.group.Do(string(category)+"/"+sym, func() (any, error) {
		fetchCtx := ctx
		if s.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
			defer cancel()
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(fetchCtx, s.fetcher.Name()); err != nil {
				return nil, err
			}
		}
		p, err := s.fetcher.FetchPoint(fetchCtx, category, sym)
		if err != nil {
			return nil, err
		}
		return s.Put(category, sym, p), nil
	})
	if err != nil {
		s.fetchErrors.Add(1)
		s.logger.Debug("on-demand fetch failed",
			"symbol", sym,
			"category", category,
			"error", err,
		)
		return model.CacheEntry{}, false
	}

	return v.(model.CacheEntry), true
}

// Entries returns a snapshot of every entry in a category.
func (s *Store) Entries(category model.Category) []model.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CacheEntry
	for k, e := range s.entries {
		if k.category == category {
			out = append(out, *e)
		}
	}
	return out
}

// All returns a snapshot of every entry.
func (s *Store) All() []model.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// FetchErrors returns how many on-demand fetches have failed.
func (s *Store) FetchErrors() int64 {
	return s.fetchErrors.Load()
}
