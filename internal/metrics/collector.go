package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/version"
)

const namespace = "marketstream"

// StatsSource provides the counters to export. *engine.Engine satisfies it.
type StatsSource interface {
	GetStats() model.ServiceStats
}

// Collector reads a fresh stats snapshot on every scrape.
type Collector struct {
	src StatsSource

	activeConnections *prometheus.Desc
	activeAlerts      *prometheus.Desc
	uptime            *prometheus.Desc
	messagesSent      *prometheus.Desc
	pointsProcessed   *prometheus.Desc
	alertsTriggered   *prometheus.Desc
	dropped           *prometheus.Desc
	queueDepth        *prometheus.Desc
	queueHighWater    *prometheus.Desc
	fetchErrors       *prometheus.Desc
	buildInfo         *prometheus.Desc
}

// NewCollector creates a collector over src.
func NewCollector(src StatsSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		src:               src,
		activeConnections: desc("active_connections", "Open WebSocket connections."),
		activeAlerts:      desc("active_alerts", "Pending price alerts."),
		uptime:            desc("uptime_seconds", "Seconds since the engine started."),
		messagesSent:      desc("messages_sent_total", "Messages pushed to client connections."),
		pointsProcessed:   desc("data_points_processed_total", "Price points produced by the poller."),
		alertsTriggered:   desc("alerts_triggered_total", "Alerts whose condition was met."),
		dropped:           desc("dropped_total", "Items discarded under backpressure.", "stage"),
		queueDepth:        desc("queue_depth", "Items waiting in an internal queue.", "queue"),
		queueHighWater:    desc("queue_high_water", "Most items an internal queue has held at once.", "queue"),
		fetchErrors:       desc("fetch_errors_total", "Failed upstream fetches."),
		buildInfo:         desc("build_info", "Build information.", "version", "commit", "go_version"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeConnections
	ch <- c.activeAlerts
	ch <- c.uptime
	ch <- c.messagesSent
	ch <- c.pointsProcessed
	ch <- c.alertsTriggered
	ch <- c.dropped
	ch <- c.queueDepth
	ch <- c.queueHighWater
	ch <- c.fetchErrors
	ch <- c.buildInfo
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.GetStats()

	ch <- prometheus.MustNewConstMetric(c.activeConnections, prometheus.GaugeValue, float64(s.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(c.activeAlerts, prometheus.GaugeValue, float64(s.ActiveAlerts))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.Uptime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.messagesSent, prometheus.CounterValue, float64(s.MessagesSent))
	ch <- prometheus.MustNewConstMetric(c.pointsProcessed, prometheus.CounterValue, float64(s.DataPointsProcessed))
	ch <- prometheus.MustNewConstMetric(c.alertsTriggered, prometheus.CounterValue, float64(s.AlertsTriggered))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedDataPoints), "data_point_queue")
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedAlerts), "alert_queue")
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedDeliveries), "client_buffer")
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.DataPointQueueDepth), "data_point_queue")
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(s.AlertQueueDepth), "alert_queue")
	ch <- prometheus.MustNewConstMetric(c.queueHighWater, prometheus.GaugeValue, float64(s.DataPointQueueHighWater), "data_point_queue")
	ch <- prometheus.MustNewConstMetric(c.queueHighWater, prometheus.GaugeValue, float64(s.AlertQueueHighWater), "alert_queue")
	ch <- prometheus.MustNewConstMetric(c.fetchErrors, prometheus.CounterValue, float64(s.FetchErrors))

	v := version.Get()
	ch <- prometheus.MustNewConstMetric(c.buildInfo, prometheus.GaugeValue, 1, v.Version, v.Commit, v.GoVersion)
}

// NewRegistry returns a registry holding the engine collector plus the
// standard Go runtime and process collectors.
func NewRegistry(src StatsSource) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
