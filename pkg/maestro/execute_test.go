package maestro

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebuai/maestro/pkg/maestro/event"
	"github.com/nebuai/maestro/pkg/maestro/llm"
)

// linearGraph is the canonical three-node workflow:
// text_input -> llm_model -> text_output.
func linearGraph(value, prompt string) *WorkflowGraph {
	return testGraph(
		[]*Node{
			testNode("1", "text_input", map[string]any{"value": value}),
			testNode("2", "llm_model", map[string]any{"prompt": prompt}),
			testNode("3", "text_output", nil),
		},
		NewLink(1, "1", 0, "2", 0, "string"),
		NewLink(2, "2", 0, "3", 0, "string"),
	)
}

// eventCollector records bus events for assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []event.Event
}

func (ec *eventCollector) handle(evt event.Event) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.events = append(ec.events, evt)
}

func (ec *eventCollector) ofKind(kind event.Type) []event.Event {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	var out []event.Event
	for _, evt := range ec.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

func TestRun_Linear(t *testing.T) {
	mock := llm.NewMockClient("hello!")
	engine := NewEngine(mock)

	res, err := engine.Run(context.Background(), linearGraph("Dis bonjour", "{{in_1}}"))
	require.NoError(t, err)

	assert.Equal(t, []Output{{SourceTitle: "Modèle LLM", Content: "hello!"}}, res.Outputs)
	assert.Equal(t, "hello!", res.NodeOutputs["2"])
	assert.Equal(t, []string{"1", "2", "3"}, res.Order)
	assert.False(t, res.Repaired)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "Dis bonjour", mock.LastPrompt())
}

func TestRun_PromptOverridesFirstInput(t *testing.T) {
	mock := llm.NewMockClient("ok")
	engine := NewEngine(mock)

	_, err := engine.Run(context.Background(),
		linearGraph("valeur enregistrée", "{{in_1}}"),
		WithPrompt("demande utilisateur"))
	require.NoError(t, err)

	assert.Equal(t, "demande utilisateur", mock.LastPrompt())
}

func TestRun_TemplateSubstitution(t *testing.T) {
	t.Run("unbound placeholder vanishes", func(t *testing.T) {
		mock := llm.NewMockClient("ok")
		g := linearGraph("contexte", "Analyse : {{in_1}} / {{in_2}}")
		_, err := NewEngine(mock).Run(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, "Analyse : contexte / ", mock.LastPrompt())
	})

	t.Run("absent and out-of-range inputs strip to empty", func(t *testing.T) {
		mock := llm.NewMockClient("ok")
		g := linearGraph("x", "A:{{in_1}} B:{{in_2}} C:{{in_5}}")
		_, err := NewEngine(mock).Run(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, "A:x B: C:", mock.LastPrompt())
	})
}

func TestRun_ModelResolution(t *testing.T) {
	run := func(t *testing.T, nodeProps map[string]any, engineOpts []EngineOption, runOpts []RunOption) string {
		t.Helper()
		mock := llm.NewMockClient("ok")
		g := testGraph(
			[]*Node{
				testNode("1", "text_input", map[string]any{"value": "x"}),
				testNode("2", "llm_model", nodeProps),
				testNode("3", "text_output", nil),
			},
			NewLink(1, "1", 0, "2", 0, "string"),
			NewLink(2, "2", 0, "3", 0, "string"),
		)
		_, err := NewEngine(mock, engineOpts...).Run(context.Background(), g, runOpts...)
		require.NoError(t, err)
		calls := mock.Calls()
		require.Len(t, calls, 1)
		return calls[0].Model
	}

	t.Run("pinned model wins over run model", func(t *testing.T) {
		model := run(t,
			map[string]any{"prompt": "{{in_1}}", "model": "mistral"},
			nil, []RunOption{WithModel("llama3")})
		assert.Equal(t, "mistral", model)
	})

	t.Run("sentinel defers to run model", func(t *testing.T) {
		model := run(t,
			map[string]any{"prompt": "{{in_1}}", "model": "{{SELECTED_MODEL}}"},
			nil, []RunOption{WithModel("llama3")})
		assert.Equal(t, "llama3", model)
	})

	t.Run("engine default is the last resort", func(t *testing.T) {
		model := run(t,
			map[string]any{"prompt": "{{in_1}}"},
			[]EngineOption{WithDefaultModel("qwen")}, nil)
		assert.Equal(t, "qwen", model)
	})
}

func TestRun_Streaming(t *testing.T) {
	mock := llm.NewMockClient("hello!")
	bus := event.NewBus(event.BusConfig{BufferSize: 64})
	defer bus.Close()

	collector := &eventCollector{}
	sub := bus.SubscribeAll(collector.handle)
	defer sub.Unsubscribe()

	engine := NewEngine(mock, WithBus(bus))
	res, err := engine.Run(context.Background(),
		linearGraph("Dis bonjour", "{{in_1}}"),
		WithStreaming())
	require.NoError(t, err)

	// Streamed or not, the aggregated result is identical.
	assert.Equal(t, []Output{{SourceTitle: "Modèle LLM", Content: "hello!"}}, res.Outputs)

	require.Eventually(t, func() bool {
		return len(collector.ofKind(event.TypeNodeChunk)) == 1 &&
			len(collector.ofKind(event.TypeRunFinished)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	chunk := collector.ofKind(event.TypeNodeChunk)[0]
	assert.Equal(t, "2", chunk.NodeID)
	assert.Equal(t, "hello!", chunk.Content)
	assert.Equal(t, res.RunID, chunk.RunID)
}

func TestRun_BlockingFailureBecomesNodeText(t *testing.T) {
	mock := llm.NewMockClient("").WithError(errors.New("connexion refusée"))
	engine := NewEngine(mock)

	res, err := engine.Run(context.Background(), linearGraph("x", "{{in_1}}"))
	require.NoError(t, err)

	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "Erreur : connexion refusée", res.Outputs[0].Content)
}

func TestRun_StreamingFailureAbortsRun(t *testing.T) {
	mock := llm.NewMockClient("").WithError(errors.New("connexion refusée"))
	engine := NewEngine(mock)

	_, err := engine.Run(context.Background(),
		linearGraph("x", "{{in_1}}"),
		WithStreaming())
	require.Error(t, err)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "2", nodeErr.NodeID)
	assert.Equal(t, "llm_model", nodeErr.NodeType)
}

func TestRun_Iterative(t *testing.T) {
	mock := llm.NewMockClient("").WithTransform(func(prompt string) string {
		return prompt + "!"
	})
	engine := NewEngine(mock, WithIterationPause(0))

	g := testGraph(
		[]*Node{
			testNode("1", "text_input", map[string]any{"value": "a"}),
			testNode("2", "iterative_llm", map[string]any{"iterations": 3}),
			testNode("3", "text_output", nil),
		},
		NewLink(1, "1", 0, "2", 0, "string"),
		NewLink(2, "2", 0, "3", 0, "string"),
	)

	res, err := engine.Run(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, []Output{{SourceTitle: "LLM Itératif", Content: "a!!!"}}, res.Outputs)
	assert.Equal(t, 3, mock.CallCount())

	calls := mock.Calls()
	assert.Equal(t, "a", calls[0].Messages[0].Content)
	assert.Equal(t, "a!", calls[1].Messages[0].Content)
	assert.Equal(t, "a!!", calls[2].Messages[0].Content)
}

func TestRun_IterativeDefaultsAndCoercion(t *testing.T) {
	t.Run("missing iterations uses the catalog default", func(t *testing.T) {
		mock := llm.NewMockClient("ok")
		engine := NewEngine(mock, WithIterationPause(0))

		g := testGraph(
			[]*Node{
				testNode("1", "text_input", map[string]any{"value": "a"}),
				testNode("2", "iterative_llm", map[string]any{}),
			},
			NewLink(1, "1", 0, "2", 0, "string"),
		)
		_, err := engine.Run(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, 3, mock.CallCount())
	})

	t.Run("string iteration count is coerced", func(t *testing.T) {
		mock := llm.NewMockClient("ok")
		engine := NewEngine(mock, WithIterationPause(0))

		g := testGraph(
			[]*Node{
				testNode("1", "text_input", map[string]any{"value": "a"}),
				testNode("2", "iterative_llm", map[string]any{"iterations": "2"}),
			},
			NewLink(1, "1", 0, "2", 0, "string"),
		)
		_, err := engine.Run(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, 2, mock.CallCount())
	})
}

func TestRun_IterativeProgressEvents(t *testing.T) {
	mock := llm.NewMockClient("ok")
	bus := event.NewBus(event.BusConfig{BufferSize: 64})
	defer bus.Close()

	collector := &eventCollector{}
	sub := bus.SubscribeAll(collector.handle)
	defer sub.Unsubscribe()

	engine := NewEngine(mock, WithBus(bus), WithIterationPause(0))
	g := testGraph(
		[]*Node{
			testNode("1", "text_input", map[string]any{"value": "a"}),
			testNode("2", "iterative_llm", map[string]any{"iterations": 2}),
		},
		NewLink(1, "1", 0, "2", 0, "string"),
	)

	_, err := engine.Run(context.Background(), g)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(collector.ofKind(event.TypeNodeProgress)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	progress := collector.ofKind(event.TypeNodeProgress)
	assert.Equal(t, "Itération 1/2", progress[0].Content)
	assert.Equal(t, "Itération 2/2", progress[1].Content)
}

func TestRun_IterativeStopsOnFailureText(t *testing.T) {
	// First call succeeds, second fails at the service level: the loop must
	// stop and keep the failure text as the node's value.
	calls := 0
	mock := llm.NewMockClient("").WithTransform(func(prompt string) string {
		calls++
		return prompt + "."
	})
	engine := NewEngine(mock, WithIterationPause(0))

	g := testGraph(
		[]*Node{
			testNode("1", "text_input", map[string]any{"value": "a"}),
			testNode("2", "iterative_llm", map[string]any{"iterations": 5}),
			testNode("3", "text_output", nil),
		},
		NewLink(1, "1", 0, "2", 0, "string"),
		NewLink(2, "2", 0, "3", 0, "string"),
	)

	// Swap in an erroring client after two transforms by failing the mock
	// outright instead: a failed call produces the error text immediately.
	failing := llm.NewMockClient("").WithError(errors.New("modèle indisponible"))
	res, err := NewEngine(failing, WithIterationPause(0)).Run(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "Erreur : modèle indisponible", res.Outputs[0].Content)

	// And a healthy client runs all five iterations.
	res, err = engine.Run(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, "a.....", res.Outputs[0].Content)
}

func TestRun_UnknownNodeTypeSkipped(t *testing.T) {
	mock := llm.NewMockClient("ok")
	engine := NewEngine(mock)

	g := testGraph(
		[]*Node{
			testNode("1", "text_input", map[string]any{"value": "x"}),
			testNode("2", "mystère", nil),
			testNode("3", "text_output", nil),
		},
		NewLink(1, "1", 0, "2", 0, "string"),
		NewLink(2, "2", 0, "3", 0, "string"),
	)

	res, err := engine.Run(context.Background(), g)
	require.NoError(t, err)

	// The unknown node produced nothing; its sink shows empty content.
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "mystère", res.Outputs[0].SourceTitle)
	assert.Empty(t, res.Outputs[0].Content)
	assert.Zero(t, mock.CallCount())
}

func TestRun_MultipleOutputsInDeclarationOrder(t *testing.T) {
	mock := llm.NewMockClient("").WithTransform(func(prompt string) string {
		return "vu: " + prompt
	})
	engine := NewEngine(mock)

	g := testGraph(
		[]*Node{
			testNode("1", "text_input", map[string]any{"value": "sujet"}),
			{ID: "2", Type: "llm_model", Title: "Résumé", Properties: map[string]any{"prompt": "{{in_1}}"}},
			testNode("3", "text_output", nil),
			testNode("4", "llm_model", map[string]any{"prompt": "détail {{in_1}}"}),
			testNode("5", "text_output", nil),
		},
		NewLink(1, "1", 0, "2", 0, "string"),
		NewLink(2, "2", 0, "3", 0, "string"),
		NewLink(3, "1", 0, "4", 0, "string"),
		NewLink(4, "4", 0, "5", 0, "string"),
	)

	res, err := engine.Run(context.Background(), g)
	require.NoError(t, err)

	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "Résumé", res.Outputs[0].SourceTitle)
	assert.Equal(t, "vu: sujet", res.Outputs[0].Content)
	assert.Equal(t, "Modèle LLM", res.Outputs[1].SourceTitle)
	assert.Equal(t, "vu: détail sujet", res.Outputs[1].Content)
}

func TestRun_CycleRepairPublishesEvent(t *testing.T) {
	mock := llm.NewMockClient("ok")
	bus := event.NewBus(event.BusConfig{BufferSize: 64})
	defer bus.Close()

	collector := &eventCollector{}
	sub := bus.SubscribeAll(collector.handle)
	defer sub.Unsubscribe()

	g := testGraph(
		[]*Node{
			testNode("a", "llm_model", map[string]any{"prompt": "x"}),
			testNode("b", "llm_model", map[string]any{"prompt": "y"}),
		},
		NewLink(1, "a", 0, "b", 0, "string"),
		NewLink(2, "b", 0, "a", 0, "string"),
	)

	res, err := NewEngine(mock, WithBus(bus)).Run(context.Background(), g)
	require.NoError(t, err)
	assert.True(t, res.Repaired)
	assert.Equal(t, []string{"a", "b"}, res.Order)

	require.Eventually(t, func() bool {
		return len(collector.ofKind(event.TypeRepair)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "a, b", collector.ofKind(event.TypeRepair)[0].Content)
}

func TestRun_StrictCycleFails(t *testing.T) {
	mock := llm.NewMockClient("ok")
	g := testGraph(
		[]*Node{
			testNode("a", "llm_model", map[string]any{"prompt": "x"}),
			testNode("b", "llm_model", map[string]any{"prompt": "y"}),
		},
		NewLink(1, "a", 0, "b", 0, "string"),
		NewLink(2, "b", 0, "a", 0, "string"),
	)

	_, err := NewEngine(mock).Run(context.Background(), g, WithStrictSchedule())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestRun_InputValidation(t *testing.T) {
	engine := NewEngine(llm.NewMockClient("ok"))

	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck // validating the nil-context guard
		_, err := engine.Run(nil, linearGraph("x", "{{in_1}}"))
		assert.ErrorIs(t, err, ErrNilContext)
	})

	t.Run("nil graph", func(t *testing.T) {
		_, err := engine.Run(context.Background(), nil)
		assert.ErrorIs(t, err, ErrEmptyGraph)
	})

	t.Run("empty graph", func(t *testing.T) {
		_, err := engine.Run(context.Background(), testGraph(nil))
		assert.ErrorIs(t, err, ErrEmptyGraph)
	})
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(llm.NewMockClient("ok"))
	_, err := engine.Run(ctx, linearGraph("x", "{{in_1}}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CustomRunID(t *testing.T) {
	engine := NewEngine(llm.NewMockClient("ok"))
	res, err := engine.Run(context.Background(),
		linearGraph("x", "{{in_1}}"),
		WithRunID("run-42"))
	require.NoError(t, err)
	assert.Equal(t, "run-42", res.RunID)
}
