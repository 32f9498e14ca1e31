// Package fanout mirrors dispatched price updates and alerts to Redis so
// other processes can consume them over pub/sub.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/market-stream/internal/dispatch"
	"github.com/rickgao/market-stream/internal/model"
)

const (
	snapshotPrefix     = "stock:"
	priceChannelPrefix = "prices."
	alertChannelPrefix = "alerts."
)

var _ dispatch.Mirror = (*RedisMirror)(nil)

// SnapshotKey returns the key holding the latest point for symbol.
func SnapshotKey(symbol string) string { return snapshotPrefix + symbol }

// PriceChannel returns the pub/sub channel for symbol's updates.
func PriceChannel(symbol string) string { return priceChannelPrefix + symbol }

// AlertChannel returns the pub/sub channel for userID's triggered alerts.
func AlertChannel(userID string) string { return alertChannelPrefix + userID }

// RedisMirror publishes every point and alert it receives.
type RedisMirror struct {
	client      redis.UniversalClient
	snapshotTTL time.Duration
}

// NewRedisMirror creates a mirror. snapshotTTL <= 0 stores snapshots without expiry.
func NewRedisMirror(client redis.UniversalClient, snapshotTTL time.Duration) *RedisMirror {
	return &RedisMirror{client: client, snapshotTTL: snapshotTTL}
}

// PublishPoint stores p as the symbol's snapshot and publishes it, in one pipeline.
func (m *RedisMirror) PublishPoint(ctx context.Context, p model.PricePoint) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal point %s: %w", p.Symbol, err)
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, SnapshotKey(p.Symbol), payload, m.snapshotTTL)
	pipe.Publish(ctx, PriceChannel(p.Symbol), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish point %s: %w", p.Symbol, err)
	}
	return nil
}

// PublishAlert publishes a triggered alert on its owner's channel.
func (m *RedisMirror) PublishAlert(ctx context.Context, a model.PriceAlert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", a.ID, err)
	}
	if err := m.client.Publish(ctx, AlertChannel(a.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}

// Snapshots returns the stored points for symbols, skipping missing keys.
func (m *RedisMirror) Snapshots(ctx context.Context, symbols []string) ([]model.PricePoint, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = SnapshotKey(sym)
	}

	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget snapshots: %w", err)
	}

	points := make([]model.PricePoint, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		var p model.PricePoint
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", keys[i], err)
		}
		points = append(points, p)
	}
	return points, nil
}

// Ping checks the connection.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
