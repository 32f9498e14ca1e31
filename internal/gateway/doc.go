// Package gateway serves the client push channel over WebSocket.
//
// Each accepted connection:
//   - Gets a UUID connection ID and an optional user_id from the query string
//   - Is registered with the Handler, which sends the initial market summary
//   - Reads {"action":"subscribe"|"unsubscribe","symbol":"..."} requests
//   - Writes queued events as JSON, dropping them when its buffer is full
//   - Is pinged periodically and closed when pongs stop arriving
package gateway
