package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/config"
)

var (
	globalMetrics *Metrics
	metricsMu     sync.RWMutex
)

// Metrics holds the otel instruments. A nil *Metrics records nothing, so
// callers never need to check whether metrics are enabled.
type Metrics struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	turnsTotal      metric.Int64Counter
	runsTotal       metric.Int64Counter
	runDuration     metric.Float64Histogram
	routerAnomalies metric.Int64Counter
	queriesTotal    metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

// InitMetrics builds the instruments on a dedicated Prometheus registry.
// A disabled config returns nil.
func InitMetrics(cfg config.MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := provider.Meter(DefaultServiceName)

	m := &Metrics{registry: registry, provider: provider}
	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.llmDuration, "insightbot_llm_request_duration_seconds", "Completion request duration in seconds"},
		{&m.toolDuration, "insightbot_tool_execution_duration_seconds", "Tool execution duration in seconds"},
		{&m.runDuration, "insightbot_team_run_duration_seconds", "Orchestration run duration in seconds"},
		{&m.httpDuration, "insightbot_http_request_duration_seconds", "HTTP request duration in seconds"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc)); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", h.name, err)
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.llmInputTokens, "insightbot_llm_tokens_input_total", "Total input tokens sent to the completion service"},
		{&m.llmOutputTokens, "insightbot_llm_tokens_output_total", "Total output tokens from the completion service"},
		{&m.llmErrorsTotal, "insightbot_llm_errors_total", "Total completion errors"},
		{&m.toolCallsTotal, "insightbot_tool_calls_total", "Total tool calls"},
		{&m.toolErrorsTotal, "insightbot_tool_errors_total", "Total tool errors"},
		{&m.turnsTotal, "insightbot_agent_turns_total", "Total agent turns by role"},
		{&m.runsTotal, "insightbot_team_runs_total", "Total orchestration runs by stop reason"},
		{&m.routerAnomalies, "insightbot_router_anomalies_total", "Turns the router could not classify"},
		{&m.queriesTotal, "insightbot_workbook_queries_total", "Workbook queries by outcome"},
		{&m.httpRequests, "insightbot_http_requests_total", "Total HTTP requests"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", c.name, err)
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCallsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.turnsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

func (m *Metrics) RecordRun(ctx context.Context, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *Metrics) RecordRouterAnomaly(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.routerAnomalies.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

func (m *Metrics) RecordQuery(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}

func SetGlobalMetrics(m *Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the installed metrics, possibly nil.
func GetGlobalMetrics() *Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
