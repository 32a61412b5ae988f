// ABOUTME: SSTable telemetry metrics interface and implementation for segment writes
// ABOUTME: Records write latency, bytes and entries per segment, and write failures by stage

package sstable

import (
	"context"
	"time"

	"github.com/KevoDB/ingest/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// SSTableMetrics defines the interface for segment writer telemetry.
// All metrics are optional - implementations can safely be no-op.
type SSTableMetrics interface {
	telemetry.ComponentMetrics

	// RecordWrite records a completed segment write.
	RecordWrite(ctx context.Context, duration time.Duration, info *SegmentInfo)

	// RecordError records a failed segment write and the stage it failed in.
	RecordError(ctx context.Context, stage string)
}

type sstableMetrics struct {
	tel telemetry.Telemetry
}

// NewSSTableMetrics creates a new SSTable metrics implementation.
// If tel is nil, returns a no-op implementation.
func NewSSTableMetrics(tel telemetry.Telemetry) SSTableMetrics {
	if tel == nil {
		return &noopSSTableMetrics{}
	}
	return &sstableMetrics{tel: tel}
}

// NewNoopSSTableMetrics creates a no-op SSTable metrics implementation.
func NewNoopSSTableMetrics() SSTableMetrics {
	return &noopSSTableMetrics{}
}

func (m *sstableMetrics) RecordWrite(ctx context.Context, duration time.Duration, info *SegmentInfo) {
	m.tel.RecordHistogram(ctx, "kevo.ingest.sstable.write.duration", duration.Seconds(),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeWrite),
	)

	telemetry.RecordBytes(ctx, m.tel, "kevo.ingest.sstable.bytes.written", info.Bytes,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
	)

	m.tel.RecordCounter(ctx, "kevo.ingest.sstable.entries.written", int64(info.Entries),
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
	)

	m.tel.RecordCounter(ctx, "kevo.ingest.sstable.segments.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
		attribute.String(telemetry.AttrStatus, telemetry.StatusSuccess),
	)
}

func (m *sstableMetrics) RecordError(ctx context.Context, stage string) {
	m.tel.RecordCounter(ctx, "kevo.ingest.sstable.segments.total", 1,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
		attribute.String(telemetry.AttrStatus, telemetry.StatusError),
		attribute.String(telemetry.AttrErrorType, stage),
	)
}

func (m *sstableMetrics) Close() error {
	return nil
}

type noopSSTableMetrics struct{}

func (n *noopSSTableMetrics) RecordWrite(ctx context.Context, duration time.Duration, info *SegmentInfo) {
}

func (n *noopSSTableMetrics) RecordError(ctx context.Context, stage string) {}

func (n *noopSSTableMetrics) Close() error {
	return nil
}
