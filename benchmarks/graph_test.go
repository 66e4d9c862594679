package benchmarks

import (
	"fmt"
	"testing"

	"github.com/nebuai/maestro/pkg/maestro"
)

// buildLinearGraph builds input -> n llm nodes -> output.
func buildLinearGraph(n int) *maestro.WorkflowGraph {
	g := &maestro.WorkflowGraph{}
	g.Nodes = append(g.Nodes, &maestro.Node{
		ID:         "1",
		Type:       "text_input",
		Properties: map[string]any{"value": "x"},
	})
	for i := 0; i < n; i++ {
		g.Nodes = append(g.Nodes, &maestro.Node{
			ID:         fmt.Sprintf("%d", i+2),
			Type:       "llm_model",
			Properties: map[string]any{"prompt": "{{in_1}}"},
		})
	}
	g.Nodes = append(g.Nodes, &maestro.Node{
		ID:   fmt.Sprintf("%d", n+2),
		Type: "text_output",
	})
	for i := 0; i <= n; i++ {
		g.Links = append(g.Links, maestro.NewLink(i+1,
			fmt.Sprintf("%d", i+1), 0,
			fmt.Sprintf("%d", i+2), 0, "string"))
	}
	g.LastNodeID = n + 2
	g.LastLinkID = n + 1
	return g
}

// buildFanGraph builds one input feeding n parallel llm nodes, all
// joined into one output.
func buildFanGraph(n int) *maestro.WorkflowGraph {
	g := &maestro.WorkflowGraph{}
	g.Nodes = append(g.Nodes, &maestro.Node{
		ID:         "1",
		Type:       "text_input",
		Properties: map[string]any{"value": "x"},
	})
	sinkID := fmt.Sprintf("%d", n+2)
	linkID := 0
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%d", i+2)
		g.Nodes = append(g.Nodes, &maestro.Node{
			ID:         id,
			Type:       "llm_model",
			Properties: map[string]any{"prompt": "{{in_1}}"},
		})
		linkID++
		g.Links = append(g.Links, maestro.NewLink(linkID, "1", 0, id, 0, "string"))
	}
	g.Nodes = append(g.Nodes, &maestro.Node{ID: sinkID, Type: "text_output"})
	for i := 0; i < n; i++ {
		linkID++
		g.Links = append(g.Links, maestro.NewLink(linkID,
			fmt.Sprintf("%d", i+2), 0, sinkID, i, "string"))
	}
	g.LastNodeID = n + 2
	g.LastLinkID = linkID
	return g
}

// BenchmarkParse measures document decoding overhead.
func BenchmarkParse(b *testing.B) {
	data, err := buildLinearGraph(20).Serialize()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := maestro.Parse(data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSerialize measures document encoding overhead.
func BenchmarkSerialize(b *testing.B) {
	g := buildLinearGraph(20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Serialize(); err != nil {
			b.Fatal(err)
		}
	}
}
