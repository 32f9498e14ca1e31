package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/market-stream/internal/model"
)

// Querier is the subset of *pgxpool.Pool used by AlertStore.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const alertsSchema = `
CREATE TABLE IF NOT EXISTS price_alerts (
	alert_id      TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	trigger_price DOUBLE PRECISION NOT NULL,
	alert_type    TEXT NOT NULL,
	current_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS price_alerts_user_id_idx ON price_alerts (user_id);
`

// AlertStore persists pending alerts in the price_alerts table.
type AlertStore struct {
	db Querier
}

// NewAlertStore creates an AlertStore over db.
func NewAlertStore(db Querier) *AlertStore {
	return &AlertStore{db: db}
}

// EnsureSchema creates the price_alerts table if it does not exist.
func (s *AlertStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, alertsSchema); err != nil {
		return fmt.Errorf("create price_alerts: %w", err)
	}
	return nil
}

// LoadAlerts returns every pending alert, oldest first.
func (s *AlertStore) LoadAlerts(ctx context.Context) ([]model.PriceAlert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT alert_id, user_id, symbol, trigger_price, alert_type, current_price, created_at
		FROM price_alerts
		ORDER BY created_at, alert_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.PriceAlert
	for rows.Next() {
		var a model.PriceAlert
		var typ string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Symbol, &a.TriggerPrice, &typ, &a.CurrentPrice, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = model.AlertType(typ)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}
	return alerts, nil
}

// SaveAlert inserts an alert. Saving an existing ID is a no-op.
func (s *AlertStore) SaveAlert(ctx context.Context, a model.PriceAlert) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO price_alerts (alert_id, user_id, symbol, trigger_price, alert_type, current_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alert_id) DO NOTHING
	`, a.ID, a.UserID, a.Symbol, a.TriggerPrice, string(a.Type), a.CurrentPrice, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

// DeleteAlerts removes alerts by ID in one batch. Unknown IDs are ignored.
func (s *AlertStore) DeleteAlerts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(`DELETE FROM price_alerts WHERE alert_id = $1`, id)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("delete alerts: %w", err)
		}
	}
	return nil
}
