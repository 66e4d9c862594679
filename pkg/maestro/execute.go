package maestro

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/nebuai/maestro/pkg/maestro/config"
	"github.com/nebuai/maestro/pkg/maestro/event"
	"github.com/nebuai/maestro/pkg/maestro/llm"
	"github.com/nebuai/maestro/pkg/maestro/observability"
	"github.com/nebuai/maestro/pkg/maestro/registry"
	"github.com/nebuai/maestro/pkg/maestro/template"
)

// Output is one aggregated run result: the content that reached a text
// output node, labeled with the title of the node that produced it.
type Output struct {
	SourceTitle string `json:"sourceTitle"`
	Content     string `json:"content"`
}

// Result is the outcome of a workflow run.
type Result struct {
	// RunID identifies the run.
	RunID string
	// Outputs lists the aggregated results, one per connected text output
	// node, in declaration order.
	Outputs []Output
	// NodeOutputs maps node id to the value it produced.
	NodeOutputs map[string]string
	// Order is the execution order that was used.
	Order []string
	// Repaired is true when a cycle had to be broken.
	Repaired bool
	// Duration is the total run time.
	Duration time.Duration
}

// Run executes a workflow document and returns its aggregated outputs.
//
// Execution is best-effort: invalid links are dropped, cycles are broken,
// unknown node types are skipped, and a failed LLM call surfaces as the
// node's output text. The run only fails on cancellation, on a streaming
// transport failure, or under WithStrictSchedule when the graph has a
// cycle.
func (e *Engine) Run(ctx context.Context, g *WorkflowGraph, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if g == nil || len(g.Nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.New().String()
	}

	start := time.Now()
	done := observability.TimedOperation()

	ctx, runSpan := e.spans.StartRunSpan(ctx, cfg.workflow, cfg.runID)
	observability.LogRunStart(e.logger, cfg.runID, cfg.workflow)
	e.publish(ctx, event.New(event.TypeRunStarted, cfg.runID))

	c := compile(g, e.logger)
	plan, err := c.schedule(cfg.strict, e.logger)
	if err != nil {
		return nil, e.failRun(ctx, runSpan, cfg.runID, err, done(), "")
	}
	if plan.repaired {
		e.publish(ctx, event.New(event.TypeRepair, cfg.runID).
			WithContent(strings.Join(plan.stuck, ", ")))
	}

	// The run prompt replaces the value of the first text input.
	promptTarget := ""
	if cfg.hasPrompt {
		for _, id := range c.order {
			if c.nodes[id].Type == registry.TypeTextInput {
				promptTarget = id
				break
			}
		}
	}

	outputs := make(map[string]string)
	for _, id := range plan.order {
		if err := ctx.Err(); err != nil {
			return nil, e.failRun(ctx, runSpan, cfg.runID, err, done(), id)
		}
		node := c.nodes[id]

		nodeCtx, nodeSpan := e.spans.StartNodeSpan(ctx, id, node.Type)
		observability.LogNodeStart(e.logger, id, node.Type)
		e.publish(nodeCtx, event.New(event.TypeNodeStarted, cfg.runID).WithNode(id, node.Title))

		nodeStart := time.Now()
		out, produces, err := e.executeNode(nodeCtx, node, c, outputs, cfg, promptTarget)
		e.metrics.RecordNodeExecution(nodeCtx, node.Type, time.Since(nodeStart), err)
		e.spans.EndSpanWithError(nodeSpan, err)
		if err != nil {
			observability.LogNodeError(e.logger, id, err)
			nodeErr := &NodeError{NodeID: id, NodeType: node.Type, Err: err}
			return nil, e.failRun(ctx, runSpan, cfg.runID, nodeErr, done(), id)
		}
		if produces {
			outputs[id] = out
		}

		observability.LogNodeComplete(e.logger, id, float64(time.Since(nodeStart).Milliseconds()))
		e.publish(nodeCtx, event.New(event.TypeNodeFinished, cfg.runID).
			WithNode(id, node.Title).WithContent(out))
	}

	result := &Result{
		RunID:       cfg.runID,
		Outputs:     e.aggregate(c, outputs),
		NodeOutputs: outputs,
		Order:       plan.order,
		Repaired:    plan.repaired,
		Duration:    time.Since(start),
	}

	e.metrics.RecordWorkflowRun(ctx, true, result.Duration)
	observability.LogRunComplete(e.logger, cfg.runID, done(), len(plan.order))
	e.publish(ctx, event.New(event.TypeRunFinished, cfg.runID))
	e.spans.EndSpanWithError(runSpan, nil)
	return result, nil
}

// failRun records a run failure on every observability surface and
// returns the error unchanged.
func (e *Engine) failRun(ctx context.Context, span trace.Span, runID string, err error, durationMs float64, lastNode string) error {
	observability.LogRunError(e.logger, runID, err, durationMs, lastNode)
	e.metrics.RecordWorkflowRun(ctx, false, time.Duration(durationMs)*time.Millisecond)
	e.publish(ctx, event.New(event.TypeRunFailed, runID).WithContent(err.Error()))
	e.spans.EndSpanWithError(span, err)
	return err
}

// executeNode runs one node and returns its output value. produces is
// false for nodes that feed nothing downstream (outputs, unknown types);
// their out value is still published for display.
func (e *Engine) executeNode(ctx context.Context, node *Node, c *compiledGraph, outputs map[string]string, cfg runConfig, promptTarget string) (out string, produces bool, err error) {
	switch node.Type {
	case registry.TypeTextInput:
		value := e.propString(node, "value")
		if cfg.hasPrompt && node.ID == promptTarget {
			value = cfg.prompt
		}
		return value, true, nil

	case registry.TypeLLMModel:
		vars := make(map[string]any)
		for slot, origin := range c.inputs[node.ID] {
			vars[fmt.Sprintf("in_%d", slot+1)] = outputs[origin]
		}
		prompt := template.Substitute(e.propString(node, "prompt"), vars)
		model := e.resolveModel(e.propString(node, "model"), cfg.model)
		observability.LogLLMCall(e.logger, node.ID, model, cfg.streaming)

		if cfg.streaming {
			out, err = e.streamChat(ctx, node, model, prompt, cfg.runID)
			return out, err == nil, err
		}
		text, _, err := e.chat(ctx, model, prompt)
		return text, err == nil, err

	case registry.TypeIterativeLLM:
		return e.runIterations(ctx, node, c, outputs, cfg)

	case registry.TypeTextOutput:
		if origin, ok := firstBoundSource(c, node.ID); ok {
			return outputs[origin], false, nil
		}
		return "", false, nil

	default:
		observability.LogUnknownNodeType(e.logger, node.ID, node.Type)
		return "", false, nil
	}
}

// runIterations executes an iterative LLM node: each response becomes the
// next prompt. Calls are always blocking; a service failure ends the loop
// with the failure text as the node's value.
func (e *Engine) runIterations(ctx context.Context, node *Node, c *compiledGraph, outputs map[string]string, cfg runConfig) (string, bool, error) {
	n := e.propInt(node, "iterations", registry.DefaultIterations)
	if n < 1 {
		n = 1
	}
	model := e.resolveModel(e.propString(node, "model"), cfg.model)

	current := ""
	if origin, ok := firstBoundSource(c, node.ID); ok {
		current = outputs[origin]
	}

	for i := 1; i <= n; i++ {
		e.publish(ctx, event.New(event.TypeNodeProgress, cfg.runID).
			WithNode(node.ID, node.Title).
			WithContent(fmt.Sprintf("Itération %d/%d", i, n)))
		observability.LogLLMCall(e.logger, node.ID, model, false)

		text, failed, err := e.chat(ctx, model, current)
		if err != nil {
			return "", false, err
		}
		current = text
		if failed {
			break
		}

		if i < n && e.iterationPause > 0 {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(e.iterationPause):
			}
		}
	}
	return current, true, nil
}

// chat performs one blocking completion. A service failure is swallowed
// into the returned text with failed=true so the workflow keeps running;
// only cancellation comes back as err.
func (e *Engine) chat(ctx context.Context, model, prompt string) (text string, failed bool, err error) {
	start := time.Now()
	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		Model:    model,
		Messages: llm.UserMessage(prompt),
	})
	e.metrics.RecordLLMCall(ctx, model, time.Since(start), err)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", false, err
		}
		return fmt.Sprintf("Erreur : %v", err), true, nil
	}
	return resp.Content, false, nil
}

// streamChat performs a streaming completion, publishing one node.chunk
// event per fragment. Unlike blocking calls, a failure mid-stream aborts
// the run: the subscriber has already rendered a partial response and
// silently presenting it as complete would be worse than failing.
func (e *Engine) streamChat(ctx context.Context, node *Node, model, prompt, runID string) (string, error) {
	start := time.Now()
	ch, err := e.client.Stream(ctx, llm.ChatRequest{
		Model:    model,
		Messages: llm.UserMessage(prompt),
		Stream:   true,
	})
	if err != nil {
		e.metrics.RecordLLMCall(ctx, model, time.Since(start), err)
		return "", err
	}

	var b strings.Builder
	var chunks int64
	for chunk := range ch {
		if chunk.Error != nil {
			e.metrics.RecordLLMCall(ctx, model, time.Since(start), chunk.Error)
			return "", chunk.Error
		}
		if chunk.Content != "" {
			b.WriteString(chunk.Content)
			chunks++
			e.publish(ctx, event.New(event.TypeNodeChunk, runID).
				WithNode(node.ID, node.Title).WithContent(chunk.Content))
		}
		if chunk.Done {
			break
		}
	}

	e.metrics.RecordStreamChunk(ctx, node.Type, chunks)
	e.metrics.RecordLLMCall(ctx, model, time.Since(start), nil)
	return b.String(), nil
}

// aggregate collects the value feeding each connected text output node,
// in declaration order, labeled with the source node's title.
func (e *Engine) aggregate(c *compiledGraph, outputs map[string]string) []Output {
	var agg []Output
	for _, id := range c.order {
		node := c.nodes[id]
		if node.Type != registry.TypeTextOutput {
			continue
		}
		origin, ok := firstBoundSource(c, id)
		if !ok {
			continue
		}
		src := c.nodes[origin]
		title := src.Title
		if title == "" {
			if def, found := e.registry.Get(src.Type); found {
				title = def.Title
			} else {
				title = src.Type
			}
		}
		agg = append(agg, Output{SourceTitle: title, Content: outputs[origin]})
	}
	return agg
}

// resolveModel picks the model for an LLM call. An empty or sentinel node
// model defers to the run's model, then the engine default. A pinned
// model always wins.
func (e *Engine) resolveModel(nodeModel, runModel string) string {
	if nodeModel == "" || nodeModel == registry.ModelSentinel {
		if runModel != "" {
			return runModel
		}
		return e.defaultModel
	}
	return nodeModel
}

// propString reads a string property, falling back to the catalog default.
func (e *Engine) propString(node *Node, name string) string {
	bag := config.New(node.Properties)
	if bag.Has(name) {
		return bag.String(name, "")
	}
	if def, ok := e.registry.Get(node.Type); ok {
		for _, p := range def.Properties {
			if p.Name == name {
				if s, isStr := p.Default.(string); isStr {
					return s
				}
			}
		}
	}
	return ""
}

// propInt reads an integer property, falling back to the catalog default.
// LLM-generated documents sometimes carry numbers as strings; the bag
// handles the coercion.
func (e *Engine) propInt(node *Node, name string, fallback int) int {
	bag := config.New(node.Properties)
	if bag.Has(name) {
		return bag.Int(name, fallback)
	}
	if def, ok := e.registry.Get(node.Type); ok {
		for _, p := range def.Properties {
			if p.Name == name {
				if n, isInt := p.Default.(int); isInt {
					return n
				}
			}
		}
	}
	return fallback
}

// firstBoundSource returns the origin feeding the lowest bound input slot.
func firstBoundSource(c *compiledGraph, id string) (string, bool) {
	slots := c.inputs[id]
	if len(slots) == 0 {
		return "", false
	}
	best := -1
	for slot := range slots {
		if best == -1 || slot < best {
			best = slot
		}
	}
	return slots[best], true
}

// publish sends an event on the bus, when one is configured.
func (e *Engine) publish(ctx context.Context, evt event.Event) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(ctx, evt)
}
