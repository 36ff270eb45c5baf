// Package statecache keeps the most recently published state value per
// connection ID and replays it whenever that ID reconnects.
package statecache

import (
	"context"
	"errors"
	"sync"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/registry"
)

// ErrClosed is returned by Publish after the cache has been shut down.
var ErrClosed = errors.New("statecache: closed")

// Sender is the slice of the broadcaster this package needs.
type Sender interface {
	Send(ctx context.Context, targetID, eventName, category string, payload any) bool
}

// ValueSource supplies a current value for IDs that have no cached entry yet,
// e.g. a lookup against the backing resource store.
type ValueSource interface {
	Current(ctx context.Context, connectionID string) (any, error)
}

// Options tune cache behavior.
type Options struct {
	// BroadcastGlobal makes Publish fan out to every connection instead of
	// targeting the published ID. Replay on reconnect stays targeted either
	// way; replaying one client's state to everyone would leak it.
	BroadcastGlobal bool
}

// Cache stores one pending value per connection ID. Values are overwritten,
// never appended, and survive any number of replays until overwritten.
type Cache struct {
	mu     sync.Mutex
	values map[string]any
	closed bool

	sender Sender
	source ValueSource
	opts   Options
	logger logger.Logger
}

// New creates a Cache. source may be nil when no fallback lookup exists.
func New(sender Sender, source ValueSource, opts Options, log logger.Logger) *Cache {
	return &Cache{
		values: make(map[string]any),
		sender: sender,
		source: source,
		opts:   opts,
		logger: log.WithField("component", "statecache"),
	}
}

// Publish sends value out immediately and overwrites the cached entry for
// connectionID. The cache update does not depend on the delivery outcome.
func (c *Cache) Publish(ctx context.Context, connectionID string, value any) error {
	if err := registry.ValidateConnectionID(connectionID); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.values[connectionID] = value
	c.mu.Unlock()

	target := connectionID
	if c.opts.BroadcastGlobal {
		target = ""
	}
	delivered := c.sender.Send(ctx, target, delivery.EventStateUpdate, delivery.CategoryState, value)
	if !delivered {
		c.logger.Debugf("state for %s published with no delivery", connectionID)
	}
	return nil
}

// OnConnect implements registry.Observer. It replays the cached value for the
// new connection, or falls back to the value source when nothing is cached.
func (c *Cache) OnConnect(connectionID string) {
	ctx := context.Background()

	c.mu.Lock()
	value, ok := c.values[connectionID]
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}

	if ok {
		c.sender.Send(ctx, connectionID, delivery.EventStateUpdate, delivery.CategoryState, value)
		return
	}

	if c.source == nil {
		return
	}
	value, err := c.source.Current(ctx, connectionID)
	if err != nil {
		c.logger.Warnf("state lookup for %s failed: %v", connectionID, err)
		return
	}
	c.sender.Send(ctx, connectionID, delivery.EventStateUpdate, delivery.CategoryState, value)
}

// Pending returns the cached value for connectionID, if any.
func (c *Cache) Pending(connectionID string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[connectionID]
	return value, ok
}

// Close stops accepting publishes. Cached values are dropped.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.values = make(map[string]any)
}
