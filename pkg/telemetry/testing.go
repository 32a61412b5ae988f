// ABOUTME: Telemetry constructors for tests: no-op telemetry, or a real provider backed by a manual reader
// ABOUTME: The manual reader lets tests collect exactly what a component recorded without exporters

package telemetry

import (
	"context"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// NewForTesting returns a no-op telemetry instance for use in tests.
func NewForTesting() Telemetry {
	return NewNoop()
}

// NewCollectingForTesting returns an enabled provider and the reader that
// collects its metrics.
func NewCollectingForTesting() (*TelemetryProvider, *sdkmetric.ManualReader) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	reader := sdkmetric.NewManualReader()
	tel, err := NewWithReader(cfg, reader)
	if err != nil {
		// DefaultConfig always validates.
		panic(err)
	}
	return tel, reader
}

// CounterTotal sums every data point of the int64 counter called name.
func CounterTotal(ctx context.Context, reader *sdkmetric.ManualReader, name string) (int64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return 0, err
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total, nil
}
