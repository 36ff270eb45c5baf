// Package delivery defines the types shared between the connection registry
// and the transports that push events to live clients.
package delivery

import (
	"context"
	"errors"
)

// ErrGone marks a recipient that no longer exists on the transport side.
// It is the only signal the registry uses to evict a dead connection.
var ErrGone = errors.New("delivery: recipient gone")

// Handle addresses one live client stream. Token is opaque to the core;
// Address is the push endpoint of the gateway owning the stream (empty for
// in-process transports).
type Handle struct {
	Token   string `json:"token"`
	Address string `json:"address,omitempty"`
}

// Envelope is the wire unit handed to a transport.
type Envelope struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Transport pushes envelopes to handles out-of-band.
type Transport interface {
	// Push delivers one envelope to one handle. A dead recipient is reported
	// by wrapping ErrGone; any other error is treated as transient.
	Push(ctx context.Context, handle Handle, envelope Envelope) error

	// CloseHandle tears down whatever the transport holds for the handle.
	CloseHandle(ctx context.Context, handle Handle) error
}

// Event names used by the producers in this service.
const (
	EventConnected   = "connected"
	EventStateUpdate = "state_update"
	EventTask        = "task_event"
)

// Category labels attached to delivery metrics.
const (
	CategoryState = "state"
	CategoryTask  = "task"
)
