package httpapi

import (
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// Response is the envelope for every JSON response.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// FieldError describes one failed request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CreateAlertReq is the body of POST /users/:user/alerts.
type CreateAlertReq struct {
	Symbol       string  `json:"symbol" binding:"required"`
	TriggerPrice float64 `json:"trigger_price" binding:"required,gt=0"`
	AlertType    string  `json:"alert_type" binding:"required,oneof=above below change_percent"`
}

// PriceRes is the body of GET /prices/:category/:symbol.
type PriceRes struct {
	model.PricePoint
	UpdatedAt  time.Time `json:"updated_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

// HistoryRes is the body of GET /history/:symbol.
type HistoryRes struct {
	Symbol  string               `json:"symbol"`
	Minutes int                  `json:"minutes"`
	Points  []model.HistoryPoint `json:"points"`
}

// HealthRes is the body of GET /health.
type HealthRes struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	StartTime time.Time `json:"start_time"`
	Uptime    string    `json:"uptime"`
}
