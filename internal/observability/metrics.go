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

package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records run-engine and experiment-queue measurements through the
// OpenTelemetry metrics API, exported to Prometheus text format by a
// registry-bound bridge exporter: instruments are recorded once here and
// read by both /metrics and (if a collector is later added) OTLP export.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	runsTotal    metric.Int64Counter
	runDuration  metric.Float64Histogram
	stepDuration metric.Float64Histogram

	toolCallsTotal metric.Int64Counter
	toolDuration   metric.Float64Histogram

	queueDepth      metric.Int64Gauge
	queueItemsTotal metric.Int64Counter
}

// NewMetrics builds a Metrics bound to a fresh Prometheus registry.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithNamespace(cfg.Namespace), otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("agentnetd/engine")

	m := &Metrics{registry: registry, provider: provider}

	if m.runsTotal, err = meter.Int64Counter("run.total",
		metric.WithDescription("Total number of completed runs, by terminal status.")); err != nil {
		return nil, err
	}
	if m.runDuration, err = meter.Float64Histogram("run.duration_seconds",
		metric.WithDescription("Wall-clock duration of a completed run."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.stepDuration, err = meter.Float64Histogram("step.duration_seconds",
		metric.WithDescription("Duration of one step-loop iteration."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.toolCallsTotal, err = meter.Int64Counter("tool.calls_total",
		metric.WithDescription("Total number of tool provider invocations, by tool and outcome.")); err != nil {
		return nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram("tool.call_duration_seconds",
		metric.WithDescription("Duration of a tool provider call."), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.queueDepth, err = meter.Int64Gauge("queue.depth",
		metric.WithDescription("Number of experiment queue items currently in a given status.")); err != nil {
		return nil, err
	}
	if m.queueItemsTotal, err = meter.Int64Counter("queue.items_total",
		metric.WithDescription("Total number of experiment queue items completed, by outcome.")); err != nil {
		return nil, err
	}

	return m, nil
}

// Handler serves the bound registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown stops the underlying MeterProvider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// ObserveRun records one completed run's terminal status and duration.
func (m *Metrics) ObserveRun(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attrString("status", status))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, durationSeconds, attrs)
}

// ObserveStep records one step-loop iteration's duration.
func (m *Metrics) ObserveStep(agentKey string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.stepDuration.Record(context.Background(), durationSeconds,
		metric.WithAttributes(attrString("agent_key", agentKey)))
}

// ObserveToolCall records one tool provider invocation.
func (m *Metrics) ObserveToolCall(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attrString("tool_name", toolName), attrString("status", status))
	m.toolCallsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, durationSeconds, attrs)
}

// SetQueueDepth reports the current size of one queue status bucket
// (typically "pending" and "in_progress").
func (m *Metrics) SetQueueDepth(status string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Record(context.Background(), int64(depth),
		metric.WithAttributes(attrString("status", status)))
}

// ObserveQueueItemCompleted records one queue item's terminal outcome.
func (m *Metrics) ObserveQueueItemCompleted(outcome string) {
	if m == nil {
		return
	}
	m.queueItemsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attrString("outcome", outcome)))
}
