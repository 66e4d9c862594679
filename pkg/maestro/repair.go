package maestro

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nebuai/maestro/pkg/maestro/registry"
)

// AutoCorrect fixes the structural mistakes LLM planners make most:
// processing nodes whose result goes nowhere. Each dangling processing
// output receives a synthesized text output sink, placed to the right of
// its source. Port caches are rebuilt from the canonical link list.
//
// AutoCorrect is idempotent: a corrected document passes through
// unchanged. Returns the number of sinks added.
func AutoCorrect(g *WorkflowGraph, reg *registry.Registry, logger *slog.Logger) int {
	syncCounters(g)

	hasOutgoing := make(map[string]bool)
	for _, l := range g.Links {
		if l != nil && !l.Malformed() {
			hasOutgoing[l.OriginID] = true
		}
	}

	existing := make([]*Node, len(g.Nodes))
	copy(existing, g.Nodes)

	added := 0
	for _, n := range existing {
		if !registry.IsProcessing(n.Type) || hasOutgoing[n.ID] {
			continue
		}
		sink := synthesizeSink(g, reg, n, added)
		g.Nodes = append(g.Nodes, sink)
		g.LastLinkID++
		g.Links = append(g.Links, NewLink(g.LastLinkID, n.ID, 0, sink.ID, 0, "string"))
		added++
	}

	if added > 0 && logger != nil {
		logger.Warn("dangling processing outputs detected, adding output sinks",
			slog.Int("count", added))
	}

	RebuildPortCaches(g, reg)
	return added
}

// syncCounters raises the id counters above every id already present, so
// synthesized nodes and links never collide with planner-chosen ids.
func syncCounters(g *WorkflowGraph) {
	for _, n := range g.Nodes {
		if num, err := strconv.Atoi(n.ID); err == nil && num > g.LastNodeID {
			g.LastNodeID = num
		}
	}
	for _, l := range g.Links {
		if l != nil && l.ID > g.LastLinkID {
			g.LastLinkID = l.ID
		}
	}
}

// synthesizeSink builds a text output node displaying src's result.
func synthesizeSink(g *WorkflowGraph, reg *registry.Registry, src *Node, idx int) *Node {
	var id string
	for {
		g.LastNodeID++
		id = strconv.Itoa(g.LastNodeID)
		if g.Node(id) == nil {
			break
		}
	}

	pos := []float64{300, float64(idx) * 100}
	if len(src.Pos) >= 2 {
		pos = []float64{src.Pos[0] + 300, src.Pos[1] + float64(idx)*100}
	}

	sink := &Node{
		ID:         id,
		Type:       registry.TypeTextOutput,
		Pos:        pos,
		Size:       []float64{180, 60},
		Properties: map[string]any{},
	}
	if def, ok := reg.Get(registry.TypeTextOutput); ok {
		sink.Title = def.Title
		sink.Color = def.Color
	}
	return sink
}

// RebuildPortCaches recomputes every node's input/output port arrays from
// the catalog and the canonical link list. Editors read these caches; the
// engine never does.
func RebuildPortCaches(g *WorkflowGraph, reg *registry.Registry) {
	byID := make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		var inSlots, outSlots []registry.Slot
		if def, ok := reg.Get(n.Type); ok {
			inSlots, outSlots = def.Inputs, def.Outputs
		}
		n.Inputs = make([]InputPort, len(inSlots))
		for i, s := range inSlots {
			n.Inputs[i] = InputPort{Name: s.Name, Type: s.Type}
		}
		n.Outputs = make([]OutputPort, len(outSlots))
		for i, s := range outSlots {
			n.Outputs[i] = OutputPort{Name: s.Name, Type: s.Type}
		}
		byID[n.ID] = n
	}

	for _, l := range g.Links {
		if l == nil || l.Malformed() {
			continue
		}
		if src, ok := byID[l.OriginID]; ok && l.OriginSlot >= 0 {
			for len(src.Outputs) <= l.OriginSlot {
				src.Outputs = append(src.Outputs, OutputPort{
					Name: fmt.Sprintf("out_%d", len(src.Outputs)+1),
					Type: "string",
				})
			}
			src.Outputs[l.OriginSlot].Links = append(src.Outputs[l.OriginSlot].Links, l.ID)
		}
		if dst, ok := byID[l.TargetID]; ok && l.TargetSlot >= 0 {
			for len(dst.Inputs) <= l.TargetSlot {
				dst.Inputs = append(dst.Inputs, InputPort{
					Name: fmt.Sprintf("in_%d", len(dst.Inputs)+1),
					Type: "string",
				})
			}
			linkID := l.ID
			dst.Inputs[l.TargetSlot].Link = &linkID
		}
	}
}

// Enhance fills in the presentation fields a planner routinely omits:
// titles, colors, sizes, and property defaults from the catalog. Nodes of
// unknown types are left untouched.
func Enhance(g *WorkflowGraph, reg *registry.Registry) {
	for _, n := range g.Nodes {
		def, ok := reg.Get(n.Type)
		if !ok {
			continue
		}
		if n.Title == "" {
			n.Title = def.Title
		}
		if n.Color == "" {
			n.Color = def.Color
		}
		if len(n.Size) < 2 {
			n.Size = []float64{210, 80}
		}
		if n.Properties == nil {
			n.Properties = make(map[string]any)
		}
		for _, p := range def.Properties {
			if _, has := n.Properties[p.Name]; !has && p.Default != nil {
				n.Properties[p.Name] = p.Default
			}
		}
	}
}

// Beautify lays nodes out in depth-ordered columns: sources on the left,
// each node one column right of its deepest predecessor.
func Beautify(g *WorkflowGraph) {
	c := compile(g, nil)
	plan, err := c.schedule(false, nil)
	if err != nil {
		return
	}

	depth := make(map[string]int, len(plan.order))
	for _, id := range plan.order {
		d := 0
		for _, origin := range c.inputs[id] {
			if depth[origin]+1 > d {
				d = depth[origin] + 1
			}
		}
		depth[id] = d
	}

	row := make(map[int]int)
	for _, id := range plan.order {
		d := depth[id]
		c.nodes[id].Pos = []float64{80 + float64(d)*320, 80 + float64(row[d])*140}
		row[d]++
	}
}

// Validate checks the document's nodes against the catalog. The returned
// problems are advisory; runs proceed best-effort.
func Validate(g *WorkflowGraph, reg *registry.Registry) []string {
	infos := make([]registry.NodeInfo, len(g.Nodes))
	for i, n := range g.Nodes {
		infos[i] = registry.NodeInfo{ID: n.ID, Type: n.Type, Properties: n.Properties}
	}
	return reg.Validate(infos)
}
