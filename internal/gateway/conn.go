package gateway

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/market-stream/internal/model"
)

// Conn is one accepted client connection. It implements subscription.Outbound.
type Conn struct {
	id     string
	userID string
	cfg    Config
	logger *slog.Logger

	ws   *websocket.Conn
	send chan model.Event
	done chan struct{}

	closeOnce sync.Once
}

func newConn(id, userID string, ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	return &Conn{
		id:     id,
		userID: userID,
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		send:   make(chan model.Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// Push queues ev for writing without blocking. Returns false if the buffer
// is full or the connection is closed.
func (c *Conn) Push(ev model.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			c.ws.Close()
		}
	})
}

// readLoop handles client requests until the socket fails or is closed.
func (c *Conn) readLoop(h Handler) {
	defer c.Close()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Debug("websocket read failed", "conn_id", c.id, "error", err)
				}
			}
			return
		}

		c.handleMessage(h, data)
	}
}

// handleMessage applies one client request.
func (c *Conn) handleMessage(h Handler, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.pushError(ErrorPayload{Message: "malformed request"})
		return
	}

	switch strings.ToLower(msg.Action) {
	case ActionSubscribe:
		if _, err := h.Subscribe(c.id, msg.Symbol); err != nil {
			c.pushError(ErrorPayload{Message: err.Error(), Action: msg.Action, Symbol: msg.Symbol})
		}
	case ActionUnsubscribe:
		h.Unsubscribe(c.id, msg.Symbol)
	default:
		c.pushError(ErrorPayload{Message: ErrUnknownAction.Error(), Action: msg.Action})
	}
}

func (c *Conn) pushError(p ErrorPayload) {
	c.Push(model.Event{Type: EventError, Data: p, Timestamp: time.Now().UTC()})
}

// writeLoop writes queued events and keeps the connection alive with pings.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case ev := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.logger.Debug("websocket write failed", "conn_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}
