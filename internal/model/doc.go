// Package model defines the data types shared by the market data engine:
// price points, cache entries, alerts, aggregates and client events.
//
// Conventions:
//   - Symbols are stored normalized (upper case, no exchange suffix)
//   - Prices are float64 in the instrument's quote currency
//   - Timestamps are time.Time in UTC
package model
