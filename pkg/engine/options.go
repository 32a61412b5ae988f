package engine

import (
	"github.com/KevoDB/ingest/pkg/common/log"
	"github.com/KevoDB/ingest/pkg/sstable"
	"github.com/KevoDB/ingest/pkg/stats"
	"github.com/KevoDB/ingest/pkg/telemetry"
)

// Option configures a WritePath
type Option func(*WritePath)

// WithLogger sets the logger. Components log with a component field added.
func WithLogger(logger log.Logger) Option {
	return func(w *WritePath) {
		w.logger = logger
	}
}

// WithTelemetry sets the telemetry used for metrics and spans
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(w *WritePath) {
		w.tel = tel
	}
}

// WithStats sets the statistics collector
func WithStats(collector stats.Collector) Option {
	return func(w *WritePath) {
		w.stats = collector
	}
}

// WithSegmentWriter replaces the segment file writer used by the worker
func WithSegmentWriter(writer sstable.SegmentWriter) Option {
	return func(w *WritePath) {
		w.writer = writer
	}
}
