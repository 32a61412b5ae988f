// ABOUTME: Unit tests for MemTable telemetry metrics with a mock telemetry server
// ABOUTME: Verifies metric names and values recorded for puts and freezes

package memtable

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// mockTelemetryServer captures recorded metrics for assertions.
// This mocks the telemetry destination, NOT the business logic.
type mockTelemetryServer struct {
	histograms []histogramRecord
	counters   []counterRecord
}

type histogramRecord struct {
	name  string
	value float64
	attrs []attribute.KeyValue
}

type counterRecord struct {
	name  string
	value int64
	attrs []attribute.KeyValue
}

func (m *mockTelemetryServer) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	m.histograms = append(m.histograms, histogramRecord{name: name, value: value, attrs: attrs})
}

func (m *mockTelemetryServer) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	m.counters = append(m.counters, counterRecord{name: name, value: value, attrs: attrs})
}

func (m *mockTelemetryServer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (m *mockTelemetryServer) Shutdown(ctx context.Context) error {
	return nil
}

func (m *mockTelemetryServer) findHistogram(name string) *histogramRecord {
	for i := range m.histograms {
		if m.histograms[i].name == name {
			return &m.histograms[i]
		}
	}
	return nil
}

func (m *mockTelemetryServer) findCounter(name string) *counterRecord {
	for i := range m.counters {
		if m.counters[i].name == name {
			return &m.counters[i]
		}
	}
	return nil
}

func hasAttr(attrs []attribute.KeyValue, key, value string) bool {
	for _, a := range attrs {
		if string(a.Key) == key && a.Value.AsString() == value {
			return true
		}
	}
	return false
}

func TestMemTableMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordPut", func(t *testing.T) {
		server := &mockTelemetryServer{}
		metrics := NewMemTableMetrics(server)

		metrics.RecordPut(ctx, KindSorted, 42)

		puts := server.findCounter("kevo.ingest.memtable.puts.total")
		if puts == nil || puts.value != 1 {
			t.Fatalf("expected put counter of 1, got %+v", puts)
		}
		if !hasAttr(puts.attrs, "memtable.kind", "sorted") {
			t.Errorf("expected memtable.kind=sorted, got %v", puts.attrs)
		}

		bytes := server.findCounter("kevo.ingest.memtable.bytes.total")
		if bytes == nil || bytes.value != 42 {
			t.Fatalf("expected 42 bytes recorded, got %+v", bytes)
		}
	})

	t.Run("RecordFreeze", func(t *testing.T) {
		server := &mockTelemetryServer{}
		metrics := NewMemTableMetrics(server)

		table := NewLogTable()
		table.Put([]byte("key"), []byte("value"))
		table.SetImmutable()

		metrics.RecordFreeze(ctx, FreezeReasonManual, table)

		freezes := server.findCounter("kevo.ingest.memtable.freeze.total")
		if freezes == nil || freezes.value != 1 {
			t.Fatalf("expected freeze counter of 1, got %+v", freezes)
		}
		if !hasAttr(freezes.attrs, "reason", FreezeReasonManual) {
			t.Errorf("expected reason=manual, got %v", freezes.attrs)
		}

		size := server.findHistogram("kevo.ingest.memtable.freeze.size")
		if size == nil || size.value != 8 {
			t.Fatalf("expected frozen size 8, got %+v", size)
		}

		if server.findHistogram("kevo.ingest.memtable.freeze.age") == nil {
			t.Error("expected freeze age histogram to be recorded")
		}
	})
}

func TestNilTelemetryIsNoop(t *testing.T) {
	metrics := NewMemTableMetrics(nil)
	metrics.RecordPut(context.Background(), KindLog, 10)
	metrics.RecordFreeze(context.Background(), FreezeReasonSize, NewSortedTable())
	if err := metrics.Close(); err != nil {
		t.Errorf("expected no error from Close, got %v", err)
	}
}
