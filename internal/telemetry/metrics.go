package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels for relay counters.
const (
	OutcomeSent     = "sent"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
	OutcomeDeleted  = "deleted"
	OutcomeFiltered = "filtered"
	OutcomeRetained = "retained"
)

// Metrics groups the relay counters. A nil *Metrics records nothing.
type Metrics struct {
	sends   metric.Int64Counter
	passes  metric.Int64Counter
	files   metric.Int64Counter
	motions metric.Int64Counter
}

// NewMetrics creates the relay instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(ScopeName)

	sends, err := meter.Int64Counter("relay.destination.sends",
		metric.WithDescription("Send attempts per destination, kind and outcome"))
	if err != nil {
		return nil, err
	}
	passes, err := meter.Int64Counter("relay.sync.passes",
		metric.WithDescription("Sync passes started, by mode"))
	if err != nil {
		return nil, err
	}
	files, err := meter.Int64Counter("relay.sync.files",
		metric.WithDescription("Files handled by sync passes, by outcome"))
	if err != nil {
		return nil, err
	}
	motions, err := meter.Int64Counter("relay.motion.events",
		metric.WithDescription("Motion edges observed"))
	if err != nil {
		return nil, err
	}

	return &Metrics{sends: sends, passes: passes, files: files, motions: motions}, nil
}

// Global returns instruments bound to the global meter provider. Instruments
// created before Initialize forward to the provider it installs.
func Global() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil
	}
	return m
}

// RecordSend counts one send attempt.
func (m *Metrics) RecordSend(ctx context.Context, destination, kind, outcome string) {
	if m == nil {
		return
	}
	m.sends.Add(ctx, 1, metric.WithAttributes(
		attribute.String("destination", destination),
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordPass counts one sync pass.
func (m *Metrics) RecordPass(ctx context.Context, cleanup bool) {
	if m == nil {
		return
	}
	mode := "upload"
	if cleanup {
		mode = "cleanup"
	}
	m.passes.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordFiles counts n files with the given outcome.
func (m *Metrics) RecordFiles(ctx context.Context, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.files.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordMotion counts one motion edge.
func (m *Metrics) RecordMotion(ctx context.Context, edge string) {
	if m == nil {
		return
	}
	m.motions.Add(ctx, 1, metric.WithAttributes(attribute.String("edge", edge)))
}
