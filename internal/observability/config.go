// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability wires OpenTelemetry tracing and Prometheus metrics
// around the step loop, tool invocations, and the experiment queue. Both
// are optional: a zero-value Manager is a no-op, so the rest of the system
// never has to branch on whether observability is configured.
package observability

import "time"

// DefaultMetricsPath is where Manager.MetricsHandler is conventionally
// mounted.
const DefaultMetricsPath = "/metrics"

// Config configures the observability system. The zero value disables both
// tracing and metrics.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing for the step loop.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Exporter selects the span exporter. Values: "otlp" (default), "stdout".
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	// Ignored when Exporter is "stdout".
	Endpoint string `yaml:"endpoint,omitempty"`

	// SamplingRate is the fraction of traces sampled, 0.0 to 1.0.
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	// ServiceName identifies this process in exported spans.
	ServiceName string `yaml:"service_name,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MetricsConfig configures the Prometheus metrics registry and endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// SetDefaults fills in the zero-value fields of an enabled config.
func (c *Config) SetDefaults() {
	if c.Tracing.Enabled {
		if c.Tracing.Exporter == "" {
			c.Tracing.Exporter = "otlp"
		}
		if c.Tracing.Endpoint == "" {
			c.Tracing.Endpoint = "localhost:4317"
		}
		if c.Tracing.SamplingRate == 0 {
			c.Tracing.SamplingRate = 1.0
		}
		if c.Tracing.ServiceName == "" {
			c.Tracing.ServiceName = "agentnetd"
		}
		if c.Tracing.Timeout == 0 {
			c.Tracing.Timeout = 10 * time.Second
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Endpoint == "" {
			c.Metrics.Endpoint = DefaultMetricsPath
		}
		if c.Metrics.Namespace == "" {
			c.Metrics.Namespace = "agentnet"
		}
	}
}

// Validate rejects out-of-range configuration before any exporter dials out.
func (c *Config) Validate() error {
	if c.Tracing.Enabled {
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			return errInvalidSamplingRate
		}
		switch c.Tracing.Exporter {
		case "otlp", "stdout":
		default:
			return errInvalidExporter
		}
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

const (
	errInvalidSamplingRate = configError("observability: sampling_rate must be between 0.0 and 1.0")
	errInvalidExporter     = configError("observability: exporter must be \"otlp\" or \"stdout\"")
)
