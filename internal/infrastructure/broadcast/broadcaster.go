// Package broadcast delivers events to one or all live connections. Delivery
// is best-effort: failures are logged and counted, never surfaced to the
// producer that asked for the send.
package broadcast

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"go-device-stream/internal/infrastructure/delivery"
	"go-device-stream/internal/infrastructure/logger"
	"go-device-stream/internal/infrastructure/metrics"
	"go-device-stream/internal/infrastructure/registry"
)

// Broadcaster fans events out over a transport. Handle snapshots are taken
// under the registry lock; every Push happens after the lock is released.
type Broadcaster struct {
	registry  *registry.Registry
	transport delivery.Transport
	metrics   metrics.Recorder
	logger    logger.Logger
}

// New creates a Broadcaster bound to a registry and a transport.
func New(reg *registry.Registry, transport delivery.Transport, rec metrics.Recorder, log logger.Logger) *Broadcaster {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Broadcaster{
		registry:  reg,
		transport: transport,
		metrics:   rec,
		logger:    log.WithField("component", "broadcaster"),
	}
}

// Send delivers payload under eventName. An empty targetID broadcasts to a
// snapshot of all current connections; otherwise only the named connection is
// addressed. category labels the delivery metrics.
//
// The return value reports whether anything was delivered (targeted) or
// whether any recipient existed when the snapshot was taken (broadcast). An
// empty target set is not an error.
func (b *Broadcaster) Send(ctx context.Context, targetID, eventName, category string, payload any) bool {
	envelope := delivery.Envelope{
		ID:      uuid.NewString(),
		Event:   eventName,
		Payload: payload,
	}

	if targetID != "" {
		return b.sendTo(ctx, targetID, category, envelope)
	}
	return b.broadcastAll(ctx, category, envelope)
}

func (b *Broadcaster) sendTo(ctx context.Context, targetID, category string, envelope delivery.Envelope) bool {
	handle, ok := b.registry.Lookup(targetID)
	if !ok {
		b.logger.Debugf("send %s: connection %s not registered", envelope.Event, targetID)
		return false
	}

	err := b.transport.Push(ctx, handle, envelope)
	b.metrics.RecordDelivery(ctx, category, "targeted", err)
	if err != nil {
		if errors.Is(err, delivery.ErrGone) {
			b.registry.Evict(targetID, handle.Token)
			b.logger.Infof("send %s: connection %s gone, evicted", envelope.Event, targetID)
		} else {
			b.logger.Warnf("send %s to %s failed: %v", envelope.Event, targetID, err)
		}
		return false
	}
	return true
}

func (b *Broadcaster) broadcastAll(ctx context.Context, category string, envelope delivery.Envelope) bool {
	entries := b.registry.Snapshot()
	if len(entries) == 0 {
		b.logger.Debugf("broadcast %s: no recipients", envelope.Event)
		return false
	}

	for _, entry := range entries {
		err := b.transport.Push(ctx, entry.Handle, envelope)
		b.metrics.RecordDelivery(ctx, category, "broadcast", err)
		if err == nil {
			continue
		}
		if errors.Is(err, delivery.ErrGone) {
			b.registry.Evict(entry.ID, entry.Handle.Token)
			b.logger.Infof("broadcast %s: connection %s gone, evicted", envelope.Event, entry.ID)
		} else {
			b.logger.Warnf("broadcast %s to %s failed: %v", envelope.Event, entry.ID, err)
		}
	}
	return true
}
