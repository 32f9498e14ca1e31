// Package database provides the PostgreSQL connection pool and the
// persistent store for pending price alerts.
//
// Only alerts are persisted. Prices and history live in memory and are
// rebuilt by the poller after a restart.
package database
