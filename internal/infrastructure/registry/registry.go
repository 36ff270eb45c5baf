// Package registry tracks live client connections. It keeps a bidirectional
// mapping between connection IDs and delivery handles under a single mutex,
// and fans out on-connect notifications to registered observers.
package registry

import (
	"context"
	"errors"
	"sync"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/metrics"
)

// ErrClosed is returned by Connect after the registry has been shut down.
var ErrClosed = errors.New("registry: closed")

// Observer is notified after a connection has been registered.
type Observer interface {
	OnConnect(connectionID string)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(connectionID string)

func (f ObserverFunc) OnConnect(connectionID string) { f(connectionID) }

// Entry is one snapshot row: a connection ID and its current handle.
type Entry struct {
	ID     string
	Handle delivery.Handle
}

// Registry owns the connection maps. All map access happens under mu; no
// transport I/O or observer call ever runs while mu is held.
type Registry struct {
	mu        sync.Mutex
	byID      map[string]delivery.Handle
	byToken   map[string]string
	observers []Observer
	closed    bool

	closer  delivery.Transport
	metrics metrics.Recorder
	logger  logger.Logger
}

// New creates a Registry. closer is used to tear down evicted handles and may
// be nil.
func New(closer delivery.Transport, rec metrics.Recorder, log logger.Logger) *Registry {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Registry{
		byID:    make(map[string]delivery.Handle),
		byToken: make(map[string]string),
		closer:  closer,
		metrics: rec,
		logger:  log.WithField("component", "registry"),
	}
}

// Connect registers a handle for connectionID. An existing connection under
// the same ID is evicted first; its handle is closed best-effort. Registered
// observers are then invoked in registration order, outside the lock.
func (r *Registry) Connect(connectionID string, handle delivery.Handle) error {
	if err := ValidateConnectionID(connectionID); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	old, replaced := r.byID[connectionID]
	if replaced {
		delete(r.byToken, old.Token)
	}
	r.byID[connectionID] = handle
	r.byToken[handle.Token] = connectionID
	r.mu.Unlock()

	ctx := context.Background()
	r.metrics.RecordConnect(ctx)

	if replaced {
		r.metrics.RecordEviction(ctx)
		r.logger.Infof("connection %s replaced, closing previous handle", connectionID)
		if r.closer != nil {
			if err := r.closer.CloseHandle(ctx, old); err != nil {
				r.logger.Warnf("failed to close replaced handle for %s: %v", connectionID, err)
			}
		}
	} else {
		r.logger.Infof("connection %s registered", connectionID)
	}

	r.notifyConnect(connectionID)
	return nil
}

// Disconnect removes the connection owning token. A token that is no longer
// current (already replaced by a newer Connect) is ignored silently.
func (r *Registry) Disconnect(token string) {
	r.mu.Lock()
	connectionID, ok := r.byToken[token]
	if !ok {
		r.mu.Unlock()
		return
	}
	if r.byID[connectionID].Token != token {
		// Stale token, a newer connect won the race.
		r.mu.Unlock()
		return
	}
	delete(r.byID, connectionID)
	delete(r.byToken, token)
	r.mu.Unlock()

	r.metrics.RecordDisconnect(context.Background())
	r.logger.Infof("connection %s disconnected", connectionID)
}

// Evict removes connectionID only if its current handle still carries token.
// Used by the broadcaster when a transport reports a gone recipient; the
// token guard keeps a racing reconnect from being dropped.
func (r *Registry) Evict(connectionID, token string) bool {
	r.mu.Lock()
	handle, ok := r.byID[connectionID]
	if !ok || handle.Token != token {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, connectionID)
	delete(r.byToken, token)
	r.mu.Unlock()

	r.metrics.RecordEviction(context.Background())
	r.logger.Infof("connection %s evicted as gone", connectionID)
	return true
}

// RegisterOnConnect appends an observer. Invocation order on each connect
// follows registration order.
func (r *Registry) RegisterOnConnect(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// HasConnection reports whether connectionID currently has a live handle.
func (r *Registry) HasConnection(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[connectionID]
	return ok
}

// Lookup returns the current handle for connectionID.
func (r *Registry) Lookup(connectionID string) (delivery.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle, ok := r.byID[connectionID]
	return handle, ok
}

// Snapshot copies the current connection set for use outside the lock.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.byID))
	for id, handle := range r.byID {
		entries = append(entries, Entry{ID: id, Handle: handle})
	}
	return entries
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Close stops accepting new connections and drops all current state.
// Held handles are closed best-effort.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	handles := make([]delivery.Handle, 0, len(r.byID))
	for _, handle := range r.byID {
		handles = append(handles, handle)
	}
	r.byID = make(map[string]delivery.Handle)
	r.byToken = make(map[string]string)
	r.mu.Unlock()

	if r.closer != nil {
		for _, handle := range handles {
			if err := r.closer.CloseHandle(ctx, handle); err != nil {
				r.logger.Warnf("failed to close handle on shutdown: %v", err)
			}
		}
	}
	r.logger.Info("registry closed")
}

// notifyConnect invokes each observer over a snapshot of the observer list.
// A panicking observer is logged and skipped; it never unwinds into Connect.
func (r *Registry) notifyConnect(connectionID string) {
	r.mu.Lock()
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, o := range observers {
		r.invokeObserver(o, connectionID)
	}
}

func (r *Registry) invokeObserver(o Observer, connectionID string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warnf("on-connect observer %T panicked for %s: %v", o, connectionID, rec)
		}
	}()
	o.OnConnect(connectionID)
}
