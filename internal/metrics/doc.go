// Package metrics exposes engine counters in Prometheus format.
//
// Key metrics:
//   - Active connections and alerts
//   - Data points processed and messages sent
//   - Drops at the data-point queue, alert queue and slow clients
//   - Upstream fetch errors
package metrics
