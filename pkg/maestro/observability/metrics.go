package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records workflow run metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error)

	// RecordWorkflowRun records a workflow run completion.
	RecordWorkflowRun(ctx context.Context, success bool, duration time.Duration)

	// RecordLLMCall records a chat completion call against a model.
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, err error)

	// RecordStreamChunk records streamed content chunks delivered to subscribers.
	RecordStreamChunk(ctx context.Context, nodeType string, count int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions  metric.Int64Counter
	nodeLatency     metric.Float64Histogram
	nodeErrors      metric.Int64Counter
	workflowRuns    metric.Int64Counter
	workflowLatency metric.Float64Histogram
	llmCalls        metric.Int64Counter
	llmLatency      metric.Float64Histogram
	streamChunks    metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("maestro")

	nodeExecutions, err := meter.Int64Counter("maestro.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("maestro.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("maestro.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	workflowRuns, err := meter.Int64Counter("maestro.workflow.runs",
		metric.WithDescription("Number of workflow runs"),
	)
	if err != nil {
		return nil, err
	}

	workflowLatency, err := meter.Float64Histogram("maestro.workflow.latency_ms",
		metric.WithDescription("Workflow run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	llmCalls, err := meter.Int64Counter("maestro.llm.calls",
		metric.WithDescription("Number of chat completion calls"),
	)
	if err != nil {
		return nil, err
	}

	llmLatency, err := meter.Float64Histogram("maestro.llm.latency_ms",
		metric.WithDescription("Chat completion latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	streamChunks, err := meter.Int64Counter("maestro.llm.stream_chunks",
		metric.WithDescription("Number of streamed content chunks"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions:  nodeExecutions,
		nodeLatency:     nodeLatency,
		nodeErrors:      nodeErrors,
		workflowRuns:    workflowRuns,
		workflowLatency: workflowLatency,
		llmCalls:        llmCalls,
		llmLatency:      llmLatency,
		streamChunks:    streamChunks,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_type", nodeType),
	}

	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.nodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordWorkflowRun records a workflow run.
func (m *otelMetrics) RecordWorkflowRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.workflowRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.workflowLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordLLMCall records a chat completion call.
func (m *otelMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.Bool("error", err != nil),
	}
	m.llmCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordStreamChunk records streamed content chunks.
func (m *otelMetrics) RecordStreamChunk(ctx context.Context, nodeType string, count int64) {
	attrs := []attribute.KeyValue{
		attribute.String("node_type", nodeType),
	}
	m.streamChunks.Add(ctx, count, metric.WithAttributes(attrs...))
}
