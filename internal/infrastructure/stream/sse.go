package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-contrib/sse"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
)

// SSEConn implements Conn over a Server-Sent Events response stream.
type SSEConn struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger
}

// NewSSEConn prepares an SSE stream on w. The connection lives until the
// parent context (the client request) is done or Close is called.
func NewSSEConn(parent context.Context, w http.ResponseWriter, log logger.Logger) *SSEConn {
	ctx, cancel := context.WithCancel(parent)

	conn := &SSEConn{
		writer: w,
		ctx:    ctx,
		cancel: cancel,
		logger: log.WithField("conn_type", "sse"),
	}
	if flusher, ok := w.(http.Flusher); ok {
		conn.flusher = flusher
	}
	conn.setupHeaders()
	return conn
}

// Send writes one SSE frame and flushes it. A write error closes the stream.
func (c *SSEConn) Send(_ context.Context, envelope delivery.Envelope) error {
	if c.IsClosed() {
		return fmt.Errorf("sse stream closed: %w", delivery.ErrGone)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	err := sse.Encode(c.writer, sse.Event{
		Id:    envelope.ID,
		Event: envelope.Event,
		Data:  envelope.Payload,
	})
	if err != nil {
		c.logger.Warnf("sse write failed: %v", err)
		_ = c.Close()
		return err
	}
	if c.flusher != nil {
		c.flusher.Flush()
	}
	return nil
}

// Close marks the stream closed and cancels its context.
func (c *SSEConn) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	return nil
}

// IsClosed reports whether the stream has been closed.
func (c *SSEConn) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Done is closed when the client disconnects or the stream is closed.
func (c *SSEConn) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *SSEConn) setupHeaders() {
	header := c.writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no") // for nginx
}
