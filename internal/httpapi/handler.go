package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/rickgao/market-stream/internal/alert"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/version"
)

// Service is the engine API served over HTTP. *engine.Engine satisfies it.
type Service interface {
	GetLivePrice(ctx context.Context, symbol string, category model.Category) (model.CacheEntry, bool)
	GetMarketSummary() map[model.Category]model.CategorySummary
	GetTrendingSymbols(limit int) []model.PricePoint
	GetPriceHistory(symbol string, minutes int) []model.HistoryPoint
	AddAlert(ctx context.Context, userID, symbol string, trigger float64, typ model.AlertType) (model.PriceAlert, error)
	RemoveAlert(ctx context.Context, userID, alertID string) bool
	ListAlerts(userID string) []model.PriceAlert
	GetStats() model.ServiceStats
}

// Handler serves the REST endpoints.
type Handler struct {
	svc Service
	now func() time.Time
}

// NewHandler creates a Handler over svc.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

// GetPrice serves GET /prices/:category/:symbol.
func (h *Handler) GetPrice(c *gin.Context) {
	category, err := model.ParseCategory(c.Param("category"))
	if err != nil {
		c.Error(ErrUnknownCategory)
		return
	}

	entry, found := h.svc.GetLivePrice(c.Request.Context(), c.Param("symbol"), category)
	if !found {
		c.Error(ErrPriceUnavailable)
		return
	}

	ok(c, http.StatusOK, PriceRes{
		PricePoint: entry.Point,
		UpdatedAt:  entry.UpdatedAt,
		AgeSeconds: entry.Age(h.now()).Seconds(),
	})
}

// GetSummary serves GET /summary.
func (h *Handler) GetSummary(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.GetMarketSummary())
}

// GetTrending serves GET /trending?limit=N.
func (h *Handler) GetTrending(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.Error(ErrInvalidLimit)
			return
		}
		limit = n
	}
	ok(c, http.StatusOK, h.svc.GetTrendingSymbols(limit))
}

// GetHistory serves GET /history/:symbol?minutes=N.
func (h *Handler) GetHistory(c *gin.Context) {
	minutes := 60
	if raw := c.Query("minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.Error(ErrInvalidMinutes)
			return
		}
		minutes = n
	}

	symbol := model.NormalizeSymbol(c.Param("symbol"))
	points := h.svc.GetPriceHistory(symbol, minutes)
	if points == nil {
		points = []model.HistoryPoint{}
	}
	ok(c, http.StatusOK, HistoryRes{Symbol: symbol, Minutes: minutes, Points: points})
}

// ListAlerts serves GET /users/:user/alerts.
func (h *Handler) ListAlerts(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.ListAlerts(c.Param("user")))
}

// CreateAlert serves POST /users/:user/alerts.
func (h *Handler) CreateAlert(c *gin.Context) {
	var req CreateAlertReq
	if err := c.ShouldBindJSON(&req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.Error(err)
			return
		}
		c.Error(ErrMalformedBody)
		return
	}

	a, err := h.svc.AddAlert(c.Request.Context(), c.Param("user"), req.Symbol, req.TriggerPrice, model.AlertType(req.AlertType))
	if err != nil {
		switch {
		case errors.Is(err, alert.ErrEmptyUser),
			errors.Is(err, alert.ErrEmptySymbol),
			errors.Is(err, alert.ErrInvalidAlertType),
			errors.Is(err, alert.ErrInvalidTrigger):
			c.Error(newAPIError(http.StatusBadRequest, err.Error()))
		default:
			c.Error(err)
		}
		return
	}
	ok(c, http.StatusCreated, a)
}

// DeleteAlert serves DELETE /users/:user/alerts/:id.
func (h *Handler) DeleteAlert(c *gin.Context) {
	if !h.svc.RemoveAlert(c.Request.Context(), c.Param("user"), c.Param("id")) {
		c.Error(ErrAlertNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStats serves GET /stats.
func (h *Handler) GetStats(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.GetStats())
}

// Health serves GET /health.
func (h *Handler) Health(c *gin.Context) {
	stats := h.svc.GetStats()
	info := version.Get()
	c.JSON(http.StatusOK, HealthRes{
		Status:    "ok",
		Version:   info.Version,
		Commit:    info.Commit,
		StartTime: stats.StartTime,
		Uptime:    stats.Uptime.Round(time.Second).String(),
	})
}
