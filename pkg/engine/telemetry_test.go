// ABOUTME: Tests for write path telemetry with a mock telemetry server
// ABOUTME: Verifies metric names, statuses and that exporter panics never reach writers

package engine

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// mockTelemetryServer captures telemetry calls for validation (infrastructure mocking only)
type mockTelemetryServer struct {
	histograms []string
	counters   []mockCounterCall
}

type mockCounterCall struct {
	name  string
	value int64
	attrs []attribute.KeyValue
}

func (m *mockTelemetryServer) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	m.histograms = append(m.histograms, name)
}

func (m *mockTelemetryServer) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	m.counters = append(m.counters, mockCounterCall{name: name, value: value, attrs: attrs})
}

func (m *mockTelemetryServer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (m *mockTelemetryServer) Shutdown(ctx context.Context) error {
	return nil
}

func (m *mockTelemetryServer) status(name string) string {
	for _, c := range m.counters {
		if c.name != name {
			continue
		}
		for _, a := range c.attrs {
			if a.Key == "status" {
				return a.Value.AsString()
			}
		}
	}
	return ""
}

func TestWritePathMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordPut", func(t *testing.T) {
		server := &mockTelemetryServer{}
		NewWritePathMetrics(server).RecordPut(ctx, time.Millisecond, false)
		if got := server.status("kevo.ingest.put.total"); got != "error" {
			t.Errorf("expected error status, got %q", got)
		}
		if len(server.histograms) != 1 || server.histograms[0] != "kevo.ingest.put.duration" {
			t.Errorf("unexpected histograms %v", server.histograms)
		}
	})

	t.Run("RecordStall", func(t *testing.T) {
		server := &mockTelemetryServer{}
		NewWritePathMetrics(server).RecordStall(ctx, 20*time.Millisecond, 1)
		if len(server.counters) != 1 || server.counters[0].name != "kevo.ingest.stall.total" {
			t.Errorf("unexpected counters %v", server.counters)
		}
		if len(server.histograms) != 2 {
			t.Errorf("expected stall duration and pending histograms, got %v", server.histograms)
		}
	})

	t.Run("RecordSegment", func(t *testing.T) {
		server := &mockTelemetryServer{}
		NewWritePathMetrics(server).RecordSegment(ctx, time.Millisecond, true)
		if got := server.status("kevo.ingest.worker.segments.total"); got != "success" {
			t.Errorf("expected success status, got %q", got)
		}
	})

	t.Run("RecordFlush", func(t *testing.T) {
		server := &mockTelemetryServer{}
		NewWritePathMetrics(server).RecordFlush(ctx, "manual", time.Millisecond, true)
		if len(server.counters) != 1 || server.counters[0].name != "kevo.ingest.flush.total" {
			t.Errorf("unexpected counters %v", server.counters)
		}
	})
}

// panicTelemetryServer panics on every call
type panicTelemetryServer struct{}

func (p *panicTelemetryServer) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	panic("histogram")
}

func (p *panicTelemetryServer) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	panic("counter")
}

func (p *panicTelemetryServer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (p *panicTelemetryServer) Shutdown(ctx context.Context) error {
	return nil
}

func TestWritePathMetricsRecoverPanics(t *testing.T) {
	metrics := NewWritePathMetrics(&panicTelemetryServer{})
	ctx := context.Background()

	metrics.RecordPut(ctx, time.Millisecond, true)
	metrics.RecordFlush(ctx, "manual", time.Millisecond, true)
	metrics.RecordStall(ctx, time.Millisecond, 1)
	metrics.RecordSegment(ctx, time.Millisecond, true)
}

func TestNoopWritePathMetrics(t *testing.T) {
	metrics := NewNoopWritePathMetrics()
	metrics.RecordPut(context.Background(), time.Second, true)
	if err := metrics.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
