package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a test meter provider and returns a function to collect metrics.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	originalProvider := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordNodeExecution(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records execution count", func(t *testing.T) {
		m.RecordNodeExecution(ctx, "llm_model", 50*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.node.executions")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok, "Expected Sum type")
		require.NotEmpty(t, sum.DataPoints)

		found := false
		for _, dp := range sum.DataPoints {
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "node_type" && attr.Value.AsString() == "llm_model" {
					found = true
					assert.GreaterOrEqual(t, dp.Value, int64(1))
				}
			}
		}
		assert.True(t, found, "Expected to find datapoint for node_type=llm_model")
	})

	t.Run("records latency", func(t *testing.T) {
		m.RecordNodeExecution(ctx, "text_input", 100*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.node.latency_ms")
		require.NotNil(t, metric)

		hist, ok := metric.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "Expected Histogram type")
		require.NotEmpty(t, hist.DataPoints)
	})

	t.Run("records errors when present", func(t *testing.T) {
		testErr := errors.New("node failed")
		m.RecordNodeExecution(ctx, "iterative_llm", 10*time.Millisecond, testErr)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.node.errors")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok, "Expected Sum type")
		require.NotEmpty(t, sum.DataPoints)

		found := false
		for _, dp := range sum.DataPoints {
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "node_type" && attr.Value.AsString() == "iterative_llm" {
					found = true
					assert.GreaterOrEqual(t, dp.Value, int64(1))
				}
			}
		}
		assert.True(t, found, "Expected to find error datapoint")
	})

	t.Run("does not record error when nil", func(t *testing.T) {
		m.RecordNodeExecution(ctx, "success_only", 10*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.node.errors")
		if metric != nil {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if ok {
				for _, dp := range sum.DataPoints {
					for _, attr := range dp.Attributes.ToSlice() {
						if attr.Key == "node_type" && attr.Value.AsString() == "success_only" {
							assert.Equal(t, int64(0), dp.Value, "Expected no errors for success_only type")
						}
					}
				}
			}
		}
	})
}

func TestRecordWorkflowRun(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records successful runs", func(t *testing.T) {
		m.RecordWorkflowRun(ctx, true, 500*time.Millisecond)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.workflow.runs")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.NotEmpty(t, sum.DataPoints)
	})

	t.Run("records failed runs", func(t *testing.T) {
		m.RecordWorkflowRun(ctx, false, 100*time.Millisecond)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.workflow.runs")
		require.NotNil(t, metric)
	})

	t.Run("records run latency", func(t *testing.T) {
		m.RecordWorkflowRun(ctx, true, 200*time.Millisecond)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.workflow.latency_ms")
		require.NotNil(t, metric)

		hist, ok := metric.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "Expected Histogram type")
		require.NotEmpty(t, hist.DataPoints)
	})
}

func TestRecordLLMCall(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records call count and latency per model", func(t *testing.T) {
		m.RecordLLMCall(ctx, "llama3.2", 250*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.llm.calls")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.NotEmpty(t, sum.DataPoints)

		found := false
		for _, dp := range sum.DataPoints {
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "model" && attr.Value.AsString() == "llama3.2" {
					found = true
				}
			}
		}
		assert.True(t, found, "Expected to find datapoint for model=llama3.2")

		assert.NotNil(t, findMetric(rm, "maestro.llm.latency_ms"))
	})

	t.Run("tags failed calls", func(t *testing.T) {
		m.RecordLLMCall(ctx, "mistral", 10*time.Millisecond, errors.New("connection refused"))

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "maestro.llm.calls")
		require.NotNil(t, metric)

		sum, ok := metric.Data.(metricdata.Sum[int64])
		require.True(t, ok)

		found := false
		for _, dp := range sum.DataPoints {
			isError := false
			isModel := false
			for _, attr := range dp.Attributes.ToSlice() {
				if attr.Key == "error" && attr.Value.AsBool() {
					isError = true
				}
				if attr.Key == "model" && attr.Value.AsString() == "mistral" {
					isModel = true
				}
			}
			if isError && isModel {
				found = true
			}
		}
		assert.True(t, found, "Expected error-tagged datapoint for mistral")
	})
}

func TestRecordStreamChunk(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	m.RecordStreamChunk(ctx, "llm_model", 7)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "maestro.llm.stream_chunks")
	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.NotEmpty(t, sum.DataPoints)

	found := false
	for _, dp := range sum.DataPoints {
		for _, attr := range dp.Attributes.ToSlice() {
			if attr.Key == "node_type" && attr.Value.AsString() == "llm_model" {
				found = true
				assert.GreaterOrEqual(t, dp.Value, int64(7))
			}
		}
	}
	assert.True(t, found, "Expected chunk datapoint for llm_model")
}

func TestOtelMetrics_AllMethods(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()

	m.RecordNodeExecution(ctx, "text_input", 25*time.Millisecond, nil)
	m.RecordNodeExecution(ctx, "llm_model", 10*time.Millisecond, errors.New("test"))
	m.RecordWorkflowRun(ctx, true, 100*time.Millisecond)
	m.RecordWorkflowRun(ctx, false, 50*time.Millisecond)
	m.RecordLLMCall(ctx, "llama3.2", 80*time.Millisecond, nil)
	m.RecordStreamChunk(ctx, "llm_model", 3)

	rm := collectMetrics(t, reader)

	assert.NotNil(t, findMetric(rm, "maestro.node.executions"))
	assert.NotNil(t, findMetric(rm, "maestro.node.latency_ms"))
	assert.NotNil(t, findMetric(rm, "maestro.node.errors"))
	assert.NotNil(t, findMetric(rm, "maestro.workflow.runs"))
	assert.NotNil(t, findMetric(rm, "maestro.workflow.latency_ms"))
	assert.NotNil(t, findMetric(rm, "maestro.llm.calls"))
	assert.NotNil(t, findMetric(rm, "maestro.llm.latency_ms"))
	assert.NotNil(t, findMetric(rm, "maestro.llm.stream_chunks"))
}

func TestNewOtelMetrics_Creation(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.NotNil(t, m.nodeExecutions)
	assert.NotNil(t, m.nodeLatency)
	assert.NotNil(t, m.nodeErrors)
	assert.NotNil(t, m.workflowRuns)
	assert.NotNil(t, m.workflowLatency)
	assert.NotNil(t, m.llmCalls)
	assert.NotNil(t, m.llmLatency)
	assert.NotNil(t, m.streamChunks)

	_ = reader
}
