package config

import "fmt"

// ObservabilityConfig configures metrics and tracing.
//
// Example:
//
//	observability:
//	  metrics:
//	    enabled: true
//	  tracing:
//	    enabled: true
//	    exporter: otlp
//	    endpoint: localhost:4317
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// TracingConfig configures the span exporter.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Exporter is otlp or stdout.
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP gRPC endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`

	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
}

// SetDefaults applies default values.
func (c *ObservabilityConfig) SetDefaults() {
	t := &c.Tracing
	if t.Exporter == "" {
		t.Exporter = "otlp"
	}
	if t.Endpoint == "" {
		t.Endpoint = "localhost:4317"
	}
	if t.SamplingRate == 0 {
		t.SamplingRate = 1.0
	}
	if t.ServiceName == "" {
		t.ServiceName = "insightbot"
	}
}

// Validate checks the observability configuration.
func (c *ObservabilityConfig) Validate() error {
	t := c.Tracing
	if !t.Enabled {
		return nil
	}
	switch t.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("tracing: invalid exporter %q (valid: otlp, stdout)", t.Exporter)
	}
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		return fmt.Errorf("tracing: sampling_rate must be between 0 and 1")
	}
	return nil
}
