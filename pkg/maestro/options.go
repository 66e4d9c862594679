package maestro

import (
	"log/slog"
	"time"

	"github.com/nebuai/maestro/pkg/maestro/event"
	"github.com/nebuai/maestro/pkg/maestro/llm"
	"github.com/nebuai/maestro/pkg/maestro/observability"
	"github.com/nebuai/maestro/pkg/maestro/registry"
)

// Engine executes workflow documents against an LLM backend.
// An Engine is safe for concurrent use; per-run settings go through
// RunOption.
type Engine struct {
	client   llm.Client
	registry *registry.Registry
	bus      event.Bus
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager

	defaultModel   string
	iterationPause time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// NewEngine creates an engine backed by the given LLM client.
// Without options the engine uses the builtin node catalog, no event bus,
// no logging, and no-op metrics and tracing.
func NewEngine(client llm.Client, opts ...EngineOption) *Engine {
	e := &Engine{
		client:         client,
		registry:       registry.Builtin(),
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
		iterationPause: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRegistry sets the node catalog.
func WithRegistry(r *registry.Registry) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithBus sets the event bus run progress is published on.
func WithBus(bus event.Bus) EngineOption {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithSpanManager sets the trace span manager.
func WithSpanManager(sm observability.SpanManager) EngineOption {
	return func(e *Engine) {
		if sm != nil {
			e.spans = sm
		}
	}
}

// WithDefaultModel sets the model used when neither the run nor the node
// pins one.
func WithDefaultModel(model string) EngineOption {
	return func(e *Engine) {
		e.defaultModel = model
	}
}

// WithIterationPause sets the pause between iterative LLM calls.
// Default: 200ms. Zero disables the pause.
func WithIterationPause(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.iterationPause = d
		}
	}
}

// runConfig holds per-run settings.
type runConfig struct {
	runID     string
	prompt    string
	hasPrompt bool
	model     string
	streaming bool
	strict    bool
	workflow  string
}

// RunOption configures a single workflow run.
type RunOption func(*runConfig)

// WithPrompt replaces the value of the workflow's first text input for
// this run. This is how a user request enters a saved workflow.
func WithPrompt(prompt string) RunOption {
	return func(c *runConfig) {
		c.prompt = prompt
		c.hasPrompt = true
	}
}

// WithModel sets the model substituted for the {{SELECTED_MODEL}}
// placeholder. Nodes that pin an explicit model keep it.
func WithModel(model string) RunOption {
	return func(c *runConfig) {
		c.model = model
	}
}

// WithStreaming makes LLM nodes stream their responses, publishing one
// node.chunk event per content fragment. The final node output is
// identical to a blocking run.
func WithStreaming() RunOption {
	return func(c *runConfig) {
		c.streaming = true
	}
}

// WithStrictSchedule makes Run fail with a StructuralError when the
// workflow contains a cycle, instead of repairing it.
func WithStrictSchedule() RunOption {
	return func(c *runConfig) {
		c.strict = true
	}
}

// WithRunID sets the run identifier. Default: a fresh UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithWorkflowName sets the workflow name used in logs and traces.
func WithWorkflowName(name string) RunOption {
	return func(c *runConfig) {
		c.workflow = name
	}
}
