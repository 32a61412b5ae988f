// ABOUTME: Telemetry configuration for the ingest process: service identity, exporters, sampling and batching
// ABOUTME: Telemetry is opt-in; KEVO_TELEMETRY_* environment variables override the defaults

package telemetry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Exporter names accepted in Config.Exporters
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid telemetry configuration")

// Config holds all configuration for telemetry providers and exporters.
type Config struct {
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`

	// Enabled controls whether telemetry is active
	Enabled bool `json:"enabled"`

	// Exporters lists trace exporters (stdout, otlp). Metrics always go to
	// stdout when telemetry is enabled.
	Exporters []string `json:"exporters"`

	// SampleRate is the fraction of root spans sampled (0.0 to 1.0)
	SampleRate float64 `json:"sample_rate"`

	// OTLPEndpoint is the collector address used by the otlp exporter
	OTLPEndpoint string `json:"otlp_endpoint"`

	ExportTimeout      time.Duration `json:"export_timeout"`
	BatchTimeout       time.Duration `json:"batch_timeout"`
	MaxQueueSize       int           `json:"max_queue_size"`
	MaxExportBatchSize int           `json:"max_export_batch_size"`

	// Output receives stdout exporter data; nil means os.Stdout
	Output io.Writer `json:"-"`
}

// DefaultConfig returns a disabled configuration with usable defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "kevo-ingest",
		ServiceVersion:     "development",
		Exporters:          []string{ExporterStdout},
		SampleRate:         1.0,
		OTLPEndpoint:       "localhost:4317",
		ExportTimeout:      30 * time.Second,
		BatchTimeout:       5 * time.Second,
		MaxQueueSize:       2048,
		MaxExportBatchSize: 512,
	}
}

// envSetters maps each environment variable to the field it overrides.
// Values that fail to parse leave the field unchanged.
var envSetters = map[string]func(c *Config, val string){
	"KEVO_TELEMETRY_SERVICE_NAME":    func(c *Config, val string) { c.ServiceName = val },
	"KEVO_TELEMETRY_SERVICE_VERSION": func(c *Config, val string) { c.ServiceVersion = val },
	"KEVO_TELEMETRY_OTLP_ENDPOINT":   func(c *Config, val string) { c.OTLPEndpoint = val },
	"KEVO_TELEMETRY_ENABLED": func(c *Config, val string) {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Enabled = enabled
		}
	},
	"KEVO_TELEMETRY_EXPORTERS": func(c *Config, val string) {
		c.Exporters = c.Exporters[:0]
		for _, name := range strings.Split(val, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Exporters = append(c.Exporters, name)
			}
		}
	},
	"KEVO_TELEMETRY_SAMPLE_RATE": func(c *Config, val string) {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.SampleRate = rate
		}
	},
	"KEVO_TELEMETRY_EXPORT_TIMEOUT": func(c *Config, val string) {
		if d, err := time.ParseDuration(val); err == nil {
			c.ExportTimeout = d
		}
	},
	"KEVO_TELEMETRY_BATCH_TIMEOUT": func(c *Config, val string) {
		if d, err := time.ParseDuration(val); err == nil {
			c.BatchTimeout = d
		}
	},
	"KEVO_TELEMETRY_MAX_QUEUE_SIZE": func(c *Config, val string) {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxQueueSize = n
		}
	},
	"KEVO_TELEMETRY_MAX_EXPORT_BATCH_SIZE": func(c *Config, val string) {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxExportBatchSize = n
		}
	},
}

// LoadFromEnv applies every KEVO_TELEMETRY_* variable that is set.
func (c *Config) LoadFromEnv() {
	for name, set := range envSetters {
		if val := os.Getenv(name); val != "" {
			set(c, val)
		}
	}
}

// Validate returns an error wrapping ErrInvalidConfig for the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.ServiceName == "":
		return fmt.Errorf("%w: service_name cannot be empty", ErrInvalidConfig)
	case c.ServiceVersion == "":
		return fmt.Errorf("%w: service_version cannot be empty", ErrInvalidConfig)
	case c.SampleRate < 0.0 || c.SampleRate > 1.0:
		return fmt.Errorf("%w: sample_rate must be between 0.0 and 1.0, got %f", ErrInvalidConfig, c.SampleRate)
	case c.ExportTimeout <= 0:
		return fmt.Errorf("%w: export_timeout must be positive, got %s", ErrInvalidConfig, c.ExportTimeout)
	case c.BatchTimeout <= 0:
		return fmt.Errorf("%w: batch_timeout must be positive, got %s", ErrInvalidConfig, c.BatchTimeout)
	case c.MaxQueueSize <= 0:
		return fmt.Errorf("%w: max_queue_size must be positive, got %d", ErrInvalidConfig, c.MaxQueueSize)
	case c.MaxExportBatchSize <= 0:
		return fmt.Errorf("%w: max_export_batch_size must be positive, got %d", ErrInvalidConfig, c.MaxExportBatchSize)
	}

	for _, exporter := range c.Exporters {
		if exporter != ExporterStdout && exporter != ExporterOTLP {
			return fmt.Errorf("%w: unknown exporter %q, valid options are: stdout, otlp", ErrInvalidConfig, exporter)
		}
	}
	if c.HasExporter(ExporterOTLP) && c.OTLPEndpoint == "" {
		return fmt.Errorf("%w: otlp exporter requires otlp_endpoint", ErrInvalidConfig)
	}

	return nil
}

// HasExporter reports whether name is one of the configured exporters.
func (c *Config) HasExporter(name string) bool {
	for _, exporter := range c.Exporters {
		if exporter == name {
			return true
		}
	}
	return false
}
