// Package metrics records delivery and connection counters through the
// global OpenTelemetry meter provider.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder counts connection lifecycle and delivery attempts.
// Use NewRecorder() for OTel metrics or Noop{} when disabled.
type Recorder interface {
	// RecordDelivery records one delivery attempt, with its category label
	// and kind ("targeted" or "broadcast").
	RecordDelivery(ctx context.Context, category, kind string, err error)

	// RecordConnect records a registered connection.
	RecordConnect(ctx context.Context)

	// RecordDisconnect records a removed connection.
	RecordDisconnect(ctx context.Context)

	// RecordEviction records a connection replaced or dropped as stale.
	RecordEviction(ctx context.Context)
}

type otelRecorder struct {
	deliveries     metric.Int64Counter
	deliveryErrors metric.Int64Counter
	connects       metric.Int64Counter
	disconnects    metric.Int64Counter
	evictions      metric.Int64Counter
}

var (
	defaultRecorder     *otelRecorder
	defaultRecorderOnce sync.Once
	defaultRecorderErr  error
)

func getDefaultRecorder() (*otelRecorder, error) {
	defaultRecorderOnce.Do(func() {
		defaultRecorder, defaultRecorderErr = newOtelRecorder()
	})
	return defaultRecorder, defaultRecorderErr
}

func newOtelRecorder() (*otelRecorder, error) {
	meter := otel.Meter("devicestream")

	deliveries, err := meter.Int64Counter("stream.deliveries",
		metric.WithDescription("Number of delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	deliveryErrors, err := meter.Int64Counter("stream.delivery_errors",
		metric.WithDescription("Number of failed delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	connects, err := meter.Int64Counter("stream.connects",
		metric.WithDescription("Number of registered connections"),
	)
	if err != nil {
		return nil, err
	}

	disconnects, err := meter.Int64Counter("stream.disconnects",
		metric.WithDescription("Number of removed connections"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter("stream.evictions",
		metric.WithDescription("Number of replaced or stale-evicted connections"),
	)
	if err != nil {
		return nil, err
	}

	return &otelRecorder{
		deliveries:     deliveries,
		deliveryErrors: deliveryErrors,
		connects:       connects,
		disconnects:    disconnects,
		evictions:      evictions,
	}, nil
}

// NewRecorder returns a Recorder backed by the global OTel meter provider.
// If instrument creation fails it falls back to a no-op recorder.
func NewRecorder() Recorder {
	r, err := getDefaultRecorder()
	if err != nil {
		return Noop{}
	}
	return r
}

func (r *otelRecorder) RecordDelivery(ctx context.Context, category, kind string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("category", category),
		attribute.String("kind", kind),
	}

	r.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		r.deliveryErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Connection counters are category-agnostic: a connection does not belong to
// any one producer.

func (r *otelRecorder) RecordConnect(ctx context.Context) {
	r.connects.Add(ctx, 1)
}

func (r *otelRecorder) RecordDisconnect(ctx context.Context) {
	r.disconnects.Add(ctx, 1)
}

func (r *otelRecorder) RecordEviction(ctx context.Context) {
	r.evictions.Add(ctx, 1)
}

// Noop discards all recordings.
type Noop struct{}

func (Noop) RecordDelivery(context.Context, string, string, error) {}
func (Noop) RecordConnect(context.Context)                         {}
func (Noop) RecordDisconnect(context.Context)                      {}
func (Noop) RecordEviction(context.Context)                        {}
