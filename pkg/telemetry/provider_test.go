// ABOUTME: Tests for telemetry provider creation and configuration handling using real provider operations
// ABOUTME: Metrics are collected through an SDK manual reader to verify what components record

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func enabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	return cfg
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	tel, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := tel.(*NoopTelemetry); !ok {
		t.Errorf("expected noop telemetry, got %T", tel)
	}
}

func TestNewEnabledStdout(t *testing.T) {
	var out bytes.Buffer
	cfg := enabledConfig()
	cfg.Output = &out

	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := tel.(*TelemetryProvider); !ok {
		t.Fatalf("expected *TelemetryProvider, got %T", tel)
	}

	ctx := context.Background()
	tel.RecordCounter(ctx, "kevo.test.counter", 3)
	_, span := tel.StartSpan(ctx, "kevo.test.span")
	span.End()

	if err := tel.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("kevo.test.counter")) {
		t.Errorf("expected metric in stdout export, got: %s", out.String())
	}
}

func TestProviderRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	tel, err := NewWithReader(enabledConfig(), reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tel.Shutdown(context.Background())

	ctx := context.Background()
	tel.RecordCounter(ctx, "kevo.test.total", 2, attribute.String(AttrComponent, ComponentEngine))
	tel.RecordCounter(ctx, "kevo.test.total", 5, attribute.String(AttrComponent, ComponentEngine))
	tel.RecordHistogram(ctx, "kevo.test.duration", 0.25)
	tel.RecordHistogram(ctx, "kevo.test.duration", 0.75)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	var sawCounter, sawHistogram bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name != "kevo.test.total" {
					continue
				}
				sawCounter = true
				if len(data.DataPoints) != 1 || data.DataPoints[0].Value != 7 {
					t.Errorf("expected one data point with value 7, got %+v", data.DataPoints)
				}
			case metricdata.Histogram[float64]:
				if m.Name != "kevo.test.duration" {
					continue
				}
				sawHistogram = true
				if len(data.DataPoints) != 1 || data.DataPoints[0].Count != 2 {
					t.Errorf("expected 2 samples, got %+v", data.DataPoints)
				}
			}
		}
	}

	if !sawCounter || !sawHistogram {
		t.Errorf("missing metrics: counter=%v histogram=%v", sawCounter, sawHistogram)
	}
}

func TestNewWithInvalidConfigs(t *testing.T) {
	invalidConfigs := []Config{
		{
			Enabled:     true,
			ServiceName: "",
		},
		{
			Enabled:        true,
			ServiceName:    "test",
			ServiceVersion: "",
		},
		{
			Enabled:        true,
			ServiceName:    "test",
			ServiceVersion: "1.0.0",
			SampleRate:     1.1,
		},
		{
			Enabled:        true,
			ServiceName:    "test",
			ServiceVersion: "1.0.0",
			SampleRate:     1.0,
		},
	}

	for i, cfg := range invalidConfigs {
		t.Run(fmt.Sprintf("invalid_config_%d", i), func(t *testing.T) {
			tel, err := New(cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			if tel != nil {
				t.Error("Expected nil telemetry for invalid config but got instance")
			}
		})
	}
}
