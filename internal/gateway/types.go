package gateway

import (
	"errors"
	"time"

	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/subscription"
)

// Errors
var (
	ErrUnknownAction = errors.New("unknown action")
	ErrShuttingDown  = errors.New("gateway shutting down")
)

// Handler receives connection lifecycle and subscription requests.
// *engine.Engine satisfies it.
type Handler interface {
	OnConnect(connID, userID string, out subscription.Outbound) error
	OnDisconnect(connID string)
	Subscribe(connID, symbol string) (string, error)
	Unsubscribe(connID, symbol string) string
}

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// EventError is sent back when a client request cannot be handled.
const EventError model.EventType = "error"

// ClientMessage is a request sent by a client.
type ClientMessage struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
}

// Config configures the WebSocket gateway.
type Config struct {
	BufferSize     int           // Outbound events buffered per connection
	PingInterval   time.Duration // How often to ping clients
	PongTimeout    time.Duration // Max time without a pong before closing
	WriteTimeout   time.Duration // Write deadline for one frame
	MaxMessageSize int64         // Max inbound frame size in bytes
	AllowedOrigins []string      // Empty allows any origin
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:     256,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 4096,
	}
}
