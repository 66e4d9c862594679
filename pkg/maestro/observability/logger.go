// Package observability provides structured logging, metrics, and
// distributed tracing for maestro workflow runs.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with run_id and node_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "3")
//	enriched.Info("doing work") // includes run_id, node_id
func EnrichLogger(logger *slog.Logger, runID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
	)
}

// LogRunStart logs the start of a workflow run.
func LogRunStart(logger *slog.Logger, runID, workflowName string) {
	if logger == nil {
		return
	}
	logger.Info("workflow run starting",
		slog.String("run_id", runID),
		slog.String("workflow", workflowName),
	)
}

// LogRunComplete logs successful workflow run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("workflow run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs workflow run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("workflow run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogUnknownNodeType logs a node whose type is not registered.
// Such nodes are skipped, never fatal.
func LogUnknownNodeType(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Warn("unknown node type, producing no outputs",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogLinkDropped logs a link removed during sanitization.
func LogLinkDropped(logger *slog.Logger, reason string, link any) {
	if logger == nil {
		return
	}
	logger.Warn("dropping invalid link",
		slog.String("reason", reason),
		slog.Any("link", link),
	)
}

// LogCycleBreak logs the forced removal of incoming links from nodes a
// scheduling pass could not unblock.
func LogCycleBreak(logger *slog.Logger, nodeIDs []string) {
	if logger == nil {
		return
	}
	logger.Warn("cycle detected, dropping incoming links of stuck nodes",
		slog.Any("node_ids", nodeIDs),
	)
}

// LogLLMCall logs an outgoing chat completion request.
func LogLLMCall(logger *slog.Logger, nodeID, model string, stream bool) {
	if logger == nil {
		return
	}
	logger.Debug("llm call",
		slog.String("node_id", nodeID),
		slog.String("model", model),
		slog.Bool("stream", stream),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
