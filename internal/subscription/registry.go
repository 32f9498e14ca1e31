// Package subscription tracks which symbols each connected client wants
// pushed, and which user owns each connection.
package subscription

import (
	"errors"
	"sync"

	"github.com/rickgao/market-stream/internal/model"
)

// Errors
var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrEmptyConnectionID   = errors.New("connection id is required")
	ErrEmptySymbol         = errors.New("symbol is required")
)

// Outbound delivers events to one client without blocking.
// Push returns false when the event could not be queued.
type Outbound interface {
	Push(ev model.Event) bool
}

// connState holds the state for a single connection.
type connState struct {
	userID  string
	out     Outbound
	symbols map[string]struct{}
}

// Registry maps connection IDs to their subscribed symbols.
// Secondary indexes by symbol and user keep fan-out lookups cheap.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*connState
	bySymbol map[string]map[string]struct{} // symbol → connection IDs
	byUser   map[string]map[string]struct{} // user ID → connection IDs
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*connState),
		bySymbol: make(map[string]map[string]struct{}),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// Connect registers a connection. userID may be empty for anonymous clients,
// which then receive market data but no alerts.
func (r *Registry) Connect(connID, userID string, out Outbound) error {
	if connID == "" {
		return ErrEmptyConnectionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[connID]; ok {
		if c.out != nil {
			return ErrDuplicateConnection
		}
		// Subscribed before connecting: adopt the existing symbol set.
		c.out = out
		c.userID = userID
	} else {
		r.conns[connID] = &connState{
			userID:  userID,
			out:     out,
			symbols: make(map[string]struct{}),
		}
	}

	if userID != "" {
		addIndex(r.byUser, userID, connID)
	}
	return nil
}

// Subscribe adds symbol to the connection's set, creating the set if absent.
// Idempotent. Returns the normalized symbol and whether it was newly added.
func (r *Registry) Subscribe(connID, symbol string) (string, bool, error) {
	if connID == "" {
		return "", false, ErrEmptyConnectionID
	}
	sym := model.NormalizeSymbol(symbol)
	if sym == "" {
		return "", false, ErrEmptySymbol
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		c = &connState{symbols: make(map[string]struct{})}
		r.conns[connID] = c
	}

	if _, exists := c.symbols[sym]; exists {
		return sym, false, nil
	}
	c.symbols[sym] = struct{}{}
	addIndex(r.bySymbol, sym, connID)
	return sym, true, nil
}

// Unsubscribe removes symbol from the connection's set. No-op if absent.
// Returns the normalized symbol and whether anything was removed.
func (r *Registry) Unsubscribe(connID, symbol string) (string, bool) {
	sym := model.NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return sym, false
	}
	if _, exists := c.symbols[sym]; !exists {
		return sym, false
	}
	delete(c.symbols, sym)
	removeIndex(r.bySymbol, sym, connID)
	return sym, true
}

// Disconnect removes the connection and all of its subscriptions.
func (r *Registry) Disconnect(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	for sym := range c.symbols {
		removeIndex(r.bySymbol, sym, connID)
	}
	if c.userID != "" {
		removeIndex(r.byUser, c.userID, connID)
	}
	delete(r.conns, connID)
	return true
}

// MatchingConnections returns every connection subscribed to symbol,
// in no particular order.
func (r *Registry) MatchingConnections(symbol string) []string {
	sym := model.NormalizeSymbol(symbol)

	r.mu.RLock()
	defer r.mu.RUnlock()

	return keys(r.bySymbol[sym])
}

// ConnectionsForUser returns every connection owned by userID.
func (r *Registry) ConnectionsForUser(userID string) []string {
	if userID == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return keys(r.byUser[userID])
}

// Outbound returns the delivery handle for a connection.
func (r *Registry) Outbound(connID string) (Outbound, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[connID]
	if !ok || c.out == nil {
		return nil, false
	}
	return c.out, true
}

// Count returns the number of live connections (those with an outbound handle).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.conns {
		if c.out != nil {
			n++
		}
	}
	return n
}

func addIndex(idx map[string]map[string]struct{}, k, connID string) {
	set, ok := idx[k]
	if !ok {
		set = make(map[string]struct{})
		idx[k] = set
	}
	set[connID] = struct{}{}
}

func removeIndex(idx map[string]map[string]struct{}, k, connID string) {
	set, ok := idx[k]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(idx, k)
	}
}

func keys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
