package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second // below the pong timeout
	wsSendBuffer   = 256
)

// WSConn implements Conn over a WebSocket. Writes are serialized through a
// single writer goroutine; the read loop exists only to detect disconnects
// and answer pings.
type WSConn struct {
	conn *websocket.Conn
	send chan delivery.Envelope

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger
}

// NewWSConn wraps an upgraded WebSocket connection and starts its pumps.
func NewWSConn(conn *websocket.Conn, log logger.Logger) *WSConn {
	ctx, cancel := context.WithCancel(context.Background())

	c := &WSConn{
		conn:   conn,
		send:   make(chan delivery.Envelope, wsSendBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: log.WithField("conn_type", "websocket"),
	}

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	go c.writePump()
	go c.readPump()

	return c
}

// Send enqueues the envelope for the writer goroutine.
func (c *WSConn) Send(ctx context.Context, envelope delivery.Envelope) error {
	if c.IsClosed() {
		return fmt.Errorf("websocket closed: %w", delivery.ErrGone)
	}

	select {
	case c.send <- envelope:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return fmt.Errorf("websocket closed: %w", delivery.ErrGone)
	case <-time.After(wsWriteTimeout):
		return fmt.Errorf("websocket send buffer full")
	}
}

// Close sends a close frame and tears the connection down.
func (c *WSConn) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return c.conn.Close()
}

// IsClosed reports whether the connection has been closed.
func (c *WSConn) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Done is closed when the client disconnects or the connection is closed.
func (c *WSConn) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *WSConn) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case envelope := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(envelope); err != nil {
				c.logger.Warnf("websocket write failed: %v", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warnf("websocket ping failed: %v", err)
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readPump drains inbound frames. The event stream is one-way; inbound data
// only matters as a liveness signal.
func (c *WSConn) readPump() {
	defer func() {
		_ = c.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Warnf("websocket read failed: %v", err)
			}
			return
		}
	}
}
