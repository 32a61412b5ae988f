// ABOUTME: Write path telemetry for puts, flushes, write stalls and segment persistence
// ABOUTME: Wraps the telemetry interface so coordinator and worker record consistent metric names

package engine

import (
	"context"
	"time"

	"github.com/KevoDB/ingest/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// WritePathMetrics defines the interface for write path telemetry
type WritePathMetrics interface {
	telemetry.ComponentMetrics

	// RecordPut records the latency of one Put, stall included
	RecordPut(ctx context.Context, duration time.Duration, success bool)

	// RecordFlush records an explicit or shutdown flush
	RecordFlush(ctx context.Context, reason string, duration time.Duration, success bool)

	// RecordStall records a writer blocked on a full handoff
	RecordStall(ctx context.Context, duration time.Duration, pending int)

	// RecordSegment records the worker's attempt to persist a frozen memtable
	RecordSegment(ctx context.Context, duration time.Duration, success bool)
}

type writePathMetrics struct {
	tel telemetry.Telemetry
}

// NewWritePathMetrics creates a new WritePathMetrics instance.
// If tel is nil, returns a no-op implementation.
func NewWritePathMetrics(tel telemetry.Telemetry) WritePathMetrics {
	if tel == nil {
		return &noopWritePathMetrics{}
	}
	return &writePathMetrics{tel: tel}
}

// NewNoopWritePathMetrics creates a no-op WritePathMetrics
func NewNoopWritePathMetrics() WritePathMetrics {
	return &noopWritePathMetrics{}
}

func statusOf(success bool) string {
	if success {
		return telemetry.StatusSuccess
	}
	return telemetry.StatusError
}

// guard is deferred by every recorder; a panicking exporter must not take
// down a writer
func guard() {
	_ = recover()
}

func (m *writePathMetrics) RecordPut(ctx context.Context, duration time.Duration, success bool) {
	defer guard()

	m.tel.RecordHistogram(ctx, "kevo.ingest.put.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypePut),
	)
	m.tel.RecordCounter(ctx, "kevo.ingest.put.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
		attribute.String(telemetry.AttrStatus, statusOf(success)),
	)
}

func (m *writePathMetrics) RecordFlush(ctx context.Context, reason string, duration time.Duration, success bool) {
	defer guard()

	m.tel.RecordHistogram(ctx, "kevo.ingest.flush.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
		attribute.String(telemetry.AttrReason, reason),
	)
	m.tel.RecordCounter(ctx, "kevo.ingest.flush.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
		attribute.String(telemetry.AttrReason, reason),
		attribute.String(telemetry.AttrStatus, statusOf(success)),
	)
}

func (m *writePathMetrics) RecordStall(ctx context.Context, duration time.Duration, pending int) {
	defer guard()

	m.tel.RecordCounter(ctx, "kevo.ingest.stall.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeStall),
	)
	m.tel.RecordHistogram(ctx, "kevo.ingest.stall.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
	)
	m.tel.RecordHistogram(ctx, "kevo.ingest.handoff.pending", float64(pending),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentEngine),
	)
}

func (m *writePathMetrics) RecordSegment(ctx context.Context, duration time.Duration, success bool) {
	defer guard()

	m.tel.RecordHistogram(ctx, "kevo.ingest.worker.segment.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWorker),
		attribute.String(telemetry.AttrStatus, statusOf(success)),
	)
	m.tel.RecordCounter(ctx, "kevo.ingest.worker.segments.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWorker),
		attribute.String(telemetry.AttrStatus, statusOf(success)),
	)
}

func (m *writePathMetrics) Close() error {
	return nil
}

type noopWritePathMetrics struct{}

func (n *noopWritePathMetrics) RecordPut(ctx context.Context, duration time.Duration, success bool) {}

func (n *noopWritePathMetrics) RecordFlush(ctx context.Context, reason string, duration time.Duration, success bool) {}

func (n *noopWritePathMetrics) RecordStall(ctx context.Context, duration time.Duration, pending int) {}

func (n *noopWritePathMetrics) RecordSegment(ctx context.Context, duration time.Duration, success bool) {}

func (n *noopWritePathMetrics) Close() error {
	return nil
}
