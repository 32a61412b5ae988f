package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/KevoDB/ingest/pkg/memtable"
	"github.com/KevoDB/ingest/pkg/sstable"
	"github.com/KevoDB/ingest/pkg/stats"
	"github.com/KevoDB/ingest/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// runWorker persists frozen memtables in the order they were handed off.
// It exits once the handoff is closed and drained.
func (w *WritePath) runWorker() {
	defer close(w.done)

	logger := w.logger.WithField("component", telemetry.ComponentWorker)
	for table := range w.handoff {
		w.persist(table)
	}
	logger.Debug("persistence worker stopped")
}

// persist writes one frozen memtable as the next segment. Failures are
// logged and counted; the segment number is not reused.
func (w *WritePath) persist(table memtable.MemTable) {
	seq := w.seq.Next()
	path := filepath.Join(w.dir, sstable.FileName(seq))

	ctx, span := w.tel.StartSpan(context.Background(), "kevo.ingest.segment.write",
		attribute.String(telemetry.AttrComponent, telemetry.ComponentWorker),
		attribute.Int64(telemetry.AttrSegmentSeq, int64(seq)),
	)
	defer span.End()

	logger := w.logger.WithFields(map[string]interface{}{
		"component": telemetry.ComponentWorker,
		"seq":       seq,
		"path":      path,
	})

	start := time.Now()
	info, err := w.writer.WriteSegment(ctx, w.dir, seq, table.Entries())
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.stats.TrackError("segment_write_error")
		w.metrics.RecordSegment(ctx, elapsed, false)
		logger.Error("failed to write segment: %v", err)
		return
	}

	w.stats.TrackSegment(uint64(info.Bytes), uint64(info.Entries))
	w.stats.TrackOperationWithLatency(stats.OpSegmentWrite, uint64(elapsed.Nanoseconds()))
	w.metrics.RecordSegment(ctx, elapsed, true)
	logger.WithFields(map[string]interface{}{
		"entries":  info.Entries,
		"bytes":    info.Bytes,
		"checksum": info.Checksum,
	}).Debug("segment written in %s", elapsed)
}
