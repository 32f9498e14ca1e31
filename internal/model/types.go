package model

import (
	"fmt"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Categories
// -----------------------------------------------------------------------------

// Category is a market grouping used to partition symbols for batch polling.
type Category string

const (
	CategoryDomestic Category = "domestic" // Oslo Børs listings
	CategoryGlobal   Category = "global"   // Global exchange listings
	CategoryCrypto   Category = "crypto"   // Crypto pairs quoted in USD
)

// Categories lists every category in polling order.
var Categories = []Category{CategoryDomestic, CategoryGlobal, CategoryCrypto}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryDomestic, CategoryGlobal, CategoryCrypto:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// UpstreamSuffix is the suffix the quote provider expects for symbols in this category.
func (c Category) UpstreamSuffix() string {
	switch c {
	case CategoryDomestic:
		return ".OL"
	case CategoryCrypto:
		return "-USD"
	default:
		return ""
	}
}

// UpstreamSymbol returns the provider symbol for a normalized symbol.
func (c Category) UpstreamSymbol(symbol string) string {
	return NormalizeSymbol(symbol) + c.UpstreamSuffix()
}

// knownSuffixes are stripped by NormalizeSymbol.
var knownSuffixes = []string{".OL", "-USD"}

// NormalizeSymbol uppercases a symbol and strips any exchange suffix
// ("eqnr.ol" -> "EQNR", "BTC-USD" -> "BTC").
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}

// -----------------------------------------------------------------------------
// Price Types
// -----------------------------------------------------------------------------

// PricePoint is one observation of a symbol, produced once per poll cycle.
// High and Low are nil when the provider did not report them.
type PricePoint struct {
	Symbol        string    `json:"symbol"`
	Category      Category  `json:"category"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	High          *float64  `json:"high,omitempty"`
	Low           *float64  `json:"low,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// HighOr returns High, or def when the provider omitted it.
func (p PricePoint) HighOr(def float64) float64 {
	if p.High == nil {
		return def
	}
	return *p.High
}

// LowOr returns Low, or def when the provider omitted it.
func (p PricePoint) LowOr(def float64) float64 {
	if p.Low == nil {
		return def
	}
	return *p.Low
}

// CacheEntry is the latest PricePoint for a (category, symbol) key.
type CacheEntry struct {
	Point     PricePoint `json:"point"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Age returns how old the entry is relative to now.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.UpdatedAt)
}

// HistoryPoint is a single entry in a symbol's price history ring.
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
}

// Bar is one OHLCV bar as reported by the upstream quote provider.
type Bar struct {
	Time   time.Time
	Open   float64
	High   *float64
	Low    *float64
	Close  float64
	Volume int64
}

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

// AlertType is the condition a price alert watches for.
type AlertType string

const (
	AlertAbove         AlertType = "above"
	AlertBelow         AlertType = "below"
	AlertChangePercent AlertType = "change_percent"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertAbove, AlertBelow, AlertChangePercent:
		return true
	}
	return false
}

// PriceAlert is a fire-once alert owned by a user.
type PriceAlert struct {
	ID           string    `json:"alert_id"`
	UserID       string    `json:"user_id"`
	Symbol       string    `json:"symbol"`
	TriggerPrice float64   `json:"trigger_price"`
	Type         AlertType `json:"alert_type"`
	CurrentPrice float64   `json:"current_price"`
	CreatedAt    time.Time `json:"created_at"`

	// Set when the alert fires.
	Message     string    `json:"message,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
}

// -----------------------------------------------------------------------------
// Aggregates
// -----------------------------------------------------------------------------

// CategorySummary aggregates the cached entries of one category.
type CategorySummary struct {
	TickerCount      int       `json:"ticker_count"`
	AvgChangePercent float64   `json:"avg_change_percent"`
	PositiveCount    int       `json:"positive_count"`
	NegativeCount    int       `json:"negative_count"`
	NeutralCount     int       `json:"neutral_count"`
	LastUpdated      time.Time `json:"last_updated"`
}

// ServiceStats is a read-only snapshot of engine counters.
type ServiceStats struct {
	MessagesSent        int64         `json:"messages_sent"`
	DataPointsProcessed int64         `json:"data_points_processed"`
	ActiveConnections   int           `json:"active_connections"`
	AlertsTriggered     int64         `json:"alerts_triggered"`
	ActiveAlerts        int           `json:"active_alerts"`
	DroppedDataPoints   int64         `json:"dropped_data_points"`
	DroppedAlerts       int64         `json:"dropped_alerts"`
	DroppedDeliveries   int64         `json:"dropped_deliveries"`
	FetchErrors         int64         `json:"fetch_errors"`

	// Queue occupancy between the poller/evaluator and the dispatcher.
	DataPointQueueDepth     int `json:"data_point_queue_depth"`
	DataPointQueueHighWater int `json:"data_point_queue_high_water"`
	AlertQueueDepth         int `json:"alert_queue_depth"`
	AlertQueueHighWater     int `json:"alert_queue_high_water"`

	StartTime           time.Time     `json:"start_time"`
	Uptime              time.Duration `json:"uptime"`
}

// -----------------------------------------------------------------------------
// Push Events
// -----------------------------------------------------------------------------

// EventType names an outbound push event.
type EventType string

const (
	EventMarketDataUpdate      EventType = "market_data_update"
	EventPriceAlert            EventType = "price_alert"
	EventMarketSummary         EventType = "market_summary"
	EventSubscriptionConfirmed EventType = "subscription_confirmed"
)

// Event is the envelope pushed to a connection.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionAck is the payload of a subscription_confirmed event.
type SubscriptionAck struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"` // "subscribed" or "unsubscribed"
}
