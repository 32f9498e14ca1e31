// Package httpapi exposes the engine's public API over REST and mounts the
// WebSocket gateway and metrics endpoints.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Mounts are optional handlers served next to the REST API.
type Mounts struct {
	WebSocket   http.Handler // GET /ws
	Metrics     http.Handler // GET MetricsPath
	MetricsPath string       // default: /metrics
}

// NewRouter builds the HTTP router.
func NewRouter(svc Service, mounts Mounts, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(ErrorHandler())

	h := NewHandler(svc)

	r.GET("/health", h.Health)
	if mounts.WebSocket != nil {
		r.GET("/ws", gin.WrapH(mounts.WebSocket))
	}
	if mounts.Metrics != nil {
		path := mounts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(mounts.Metrics))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/prices/:category/:symbol", h.GetPrice)
		v1.GET("/summary", h.GetSummary)
		v1.GET("/trending", h.GetTrending)
		v1.GET("/history/:symbol", h.GetHistory)
		v1.GET("/stats", h.GetStats)

		alerts := v1.Group("/users/:user/alerts")
		alerts.GET("", h.ListAlerts)
		alerts.POST("", h.CreateAlert)
		alerts.DELETE("/:id", h.DeleteAlert)
	}

	return r
}
