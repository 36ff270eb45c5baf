// Package stream is the in-process delivery transport: clients connect
// directly over SSE or WebSocket and are addressed by the token minted at
// upgrade time. It serves the same Transport contract as the gateway client.
package stream

import (
	"context"
	"fmt"
	"sync"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
)

// Conn is one live local stream.
type Conn interface {
	Send(ctx context.Context, envelope delivery.Envelope) error
	Close() error
	IsClosed() bool

	// Done is closed when the client side goes away.
	Done() <-chan struct{}
}

// Transport maps delivery tokens to local stream connections.
type Transport struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	logger logger.Logger
}

var _ delivery.Transport = (*Transport)(nil)

// NewTransport creates an empty local transport.
func NewTransport(log logger.Logger) *Transport {
	return &Transport{
		conns:  make(map[string]Conn),
		logger: log.WithField("component", "stream"),
	}
}

// Attach binds a connection to its token.
func (t *Transport) Attach(token string, conn Conn) {
	t.mu.Lock()
	t.conns[token] = conn
	t.mu.Unlock()
}

// Detach forgets the token without closing the connection. Used after the
// client side has already gone away.
func (t *Transport) Detach(token string) {
	t.mu.Lock()
	delete(t.conns, token)
	t.mu.Unlock()
}

// Push writes the envelope to the stream behind handle.Token. An unknown or
// already-closed stream reports ErrGone.
func (t *Transport) Push(ctx context.Context, handle delivery.Handle, envelope delivery.Envelope) error {
	t.mu.RLock()
	conn, ok := t.conns[handle.Token]
	t.mu.RUnlock()

	if !ok || conn.IsClosed() {
		return fmt.Errorf("local stream %s: %w", handle.Token, delivery.ErrGone)
	}
	return conn.Send(ctx, envelope)
}

// CloseHandle closes and forgets the stream behind handle.Token.
func (t *Transport) CloseHandle(_ context.Context, handle delivery.Handle) error {
	t.mu.Lock()
	conn, ok := t.conns[handle.Token]
	delete(t.conns, handle.Token)
	t.mu.Unlock()

	if !ok {
		return nil
	}
	return conn.Close()
}

// ConnCount returns the number of attached local streams.
func (t *Transport) ConnCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
