package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/streamx-network/streamx/pkg/sink"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, restrict to specific origins
		return true
	},
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "block.emitted", "info", "error"
	Payload interface{} `json:"payload"` // Event-specific data
}

// HandleWebSocket upgrades the connection and streams block events from the
// Redis Pub/Sub channel the streamer publishes on.
//
// Server sends:
// - {"type": "block.emitted", "payload": {...}}
// - {"type": "info", "payload": {"message": "..."}}
// - {"type": "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			c.App.Logger.Error("Failed to close WebSocket connection", zap.Error(closeErr))
		}
	}()

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan ServerMessage, 256)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in Redis subscriber goroutine",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", r.RemoteAddr))
				cancel()
			}
		}()
		c.forwardBlockEvents(ctx, send)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sendPings(ctx, conn)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeMessages(conn, send)
	}()

	// Block until the client goes away.
	c.readUntilClosed(conn, cancel)

	cancel()
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// forwardBlockEvents subscribes to the block channel and forwards events to
// the send channel, reconnecting with a fixed pause when Redis drops. It is
// the only sender on send and closes it on return, which ends writeMessages.
func (c *Controller) forwardBlockEvents(ctx context.Context, send chan<- ServerMessage) {
	defer close(send)

	const retryPause = 5 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := c.App.RedisClient.Subscribe(ctx, sink.BlockChannel)
		ch := pubsub.Channel()

	receive:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				var payload map[string]interface{}
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					c.App.Logger.Error("Failed to parse block event",
						zap.Error(err),
						zap.String("channel", msg.Channel))
					continue
				}
				select {
				case send <- ServerMessage{Type: "block.emitted", Payload: payload}:
				case <-ctx.Done():
					_ = pubsub.Close()
					return
				}
			}
		}
		_ = pubsub.Close()

		c.App.Logger.Warn("Redis subscription closed, reconnecting",
			zap.Duration("pause", retryPause))
		select {
		case send <- ServerMessage{Type: "error", Payload: map[string]interface{}{
			"message":     "Redis connection lost, reconnecting...",
			"recoverable": true,
		}}:
		case <-ctx.Done():
			return
		}
		select {
		case <-time.After(retryPause):
		case <-ctx.Done():
			return
		}
	}
}

// sendPings keeps the connection alive; the client's pong resets the read
// deadline in readUntilClosed.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Error("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages drains the send channel into the connection.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

// readUntilClosed consumes client frames purely for close detection; the
// feed has no client-to-server protocol.
func (c *Controller) readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.App.Logger.Error("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
			return
		}
	}
}
