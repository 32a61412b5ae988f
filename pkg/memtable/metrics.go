// ABOUTME: MemTable telemetry metrics interface and implementation for tracking buffer growth and freezes
// ABOUTME: Provides instrumentation for put sizes, freeze triggers, and the size of frozen tables

package memtable

import (
	"context"

	"github.com/KevoDB/ingest/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Freeze reasons reported by RecordFreeze.
const (
	FreezeReasonSize     = "size"
	FreezeReasonManual   = "manual"
	FreezeReasonShutdown = "shutdown"
)

// MemTableMetrics defines the interface for MemTable telemetry operations.
// All metrics are optional - implementations can safely be no-op.
type MemTableMetrics interface {
	telemetry.ComponentMetrics

	// RecordPut records the bytes one Put added to the active table.
	RecordPut(ctx context.Context, kind Kind, bytes int64)

	// RecordFreeze records a table being frozen and why.
	RecordFreeze(ctx context.Context, reason string, table MemTable)
}

// memTableMetrics implements MemTableMetrics using the telemetry interface.
type memTableMetrics struct {
	tel telemetry.Telemetry
}

// NewMemTableMetrics creates a new MemTable metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewMemTableMetrics(tel telemetry.Telemetry) MemTableMetrics {
	if tel == nil {
		return &noopMemTableMetrics{}
	}
	return &memTableMetrics{tel: tel}
}

// NewNoopMemTableMetrics creates a no-op MemTable metrics implementation for testing.
func NewNoopMemTableMetrics() MemTableMetrics {
	return &noopMemTableMetrics{}
}

// RecordPut records put count and ingested bytes.
func (m *memTableMetrics) RecordPut(ctx context.Context, kind Kind, bytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrMemTableKind, kind.String()),
	}
	m.tel.RecordCounter(ctx, "kevo.ingest.memtable.puts.total", 1, attrs...)
	telemetry.RecordBytes(ctx, m.tel, "kevo.ingest.memtable.bytes.total", bytes, attrs...)
}

// RecordFreeze records the trigger and the size of the frozen table.
func (m *memTableMetrics) RecordFreeze(ctx context.Context, reason string, table MemTable) {
	m.tel.RecordCounter(ctx, "kevo.ingest.memtable.freeze.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrReason, reason),
	)

	m.tel.RecordHistogram(ctx, "kevo.ingest.memtable.freeze.size", float64(table.Size()),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrMemTableKind, table.Kind().String()),
	)

	// Age of the table when it stopped accepting writes
	m.tel.RecordHistogram(ctx, "kevo.ingest.memtable.freeze.age", table.Age().Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentMemTable),
		attribute.String(telemetry.AttrReason, reason),
	)
}

// Close releases any resources held by the metrics implementation.
func (m *memTableMetrics) Close() error {
	return nil
}

// noopMemTableMetrics provides a no-operation implementation for testing or disabled telemetry.
type noopMemTableMetrics struct{}

// RecordPut is a no-op.
func (n *noopMemTableMetrics) RecordPut(ctx context.Context, kind Kind, bytes int64) {}

// RecordFreeze is a no-op.
func (n *noopMemTableMetrics) RecordFreeze(ctx context.Context, reason string, table MemTable) {}

// Close is a no-op.
func (n *noopMemTableMetrics) Close() error {
	return nil
}
