// ABOUTME: Exporter factory for the telemetry provider: a stdout metric reader plus stdout and OTLP span exporters
// ABOUTME: Metrics are pushed periodically; spans are batched by the trace provider

package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

func output(cfg Config) io.Writer {
	if cfg.Output != nil {
		return cfg.Output
	}
	return os.Stdout
}

// createMetricReaders returns a periodic reader exporting to stdout. The
// output is pretty printed only when stdout is also a configured exporter.
func createMetricReaders(cfg Config) ([]metric.Reader, error) {
	opts := []stdoutmetric.Option{stdoutmetric.WithWriter(output(cfg))}
	if cfg.HasExporter(ExporterStdout) {
		opts = append(opts, stdoutmetric.WithPrettyPrint())
	}

	exporter, err := stdoutmetric.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
	}
	return []metric.Reader{
		metric.NewPeriodicReader(exporter,
			metric.WithInterval(cfg.BatchTimeout),
			metric.WithTimeout(cfg.ExportTimeout),
		),
	}, nil
}

// createTraceExporters creates one span exporter per configured exporter.
func createTraceExporters(cfg Config) ([]trace.SpanExporter, error) {
	var exporters []trace.SpanExporter

	if cfg.HasExporter(ExporterOTLP) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ExportTimeout)
		defer cancel()
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	if cfg.HasExporter(ExporterStdout) {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(output(cfg)), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}
