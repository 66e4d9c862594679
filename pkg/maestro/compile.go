package maestro

import (
	"log/slog"

	"github.com/nebuai/maestro/pkg/maestro/observability"
)

// compiledGraph is the execution plan derived from a workflow document.
// It holds sanitized links, the dependency structure, and the input
// resolution table. The source document is never modified.
type compiledGraph struct {
	nodes map[string]*Node
	// order lists node ids in declaration order. All scheduling is seeded
	// from this list so identical documents always run identically.
	order []string
	links []*Link
	// adjacency maps an origin node to its targets, one entry per link,
	// in link order.
	adjacency map[string][]string
	indegree  map[string]int
	// inputs maps target node -> input slot -> origin node. When several
	// links feed the same slot the last one in the document wins.
	inputs map[string]map[int]string
}

// compile sanitizes the document's links and builds the execution plan.
// Invalid links are dropped with a warning, never an error: documents come
// from an LLM planner and a best-effort run beats a rejection.
func compile(g *WorkflowGraph, logger *slog.Logger) *compiledGraph {
	c := &compiledGraph{
		nodes:     make(map[string]*Node, len(g.Nodes)),
		order:     make([]string, 0, len(g.Nodes)),
		adjacency: make(map[string][]string),
		indegree:  make(map[string]int),
		inputs:    make(map[string]map[int]string),
	}

	for _, n := range g.Nodes {
		if _, seen := c.nodes[n.ID]; seen {
			observability.LogLinkDropped(logger, "duplicate node id", n.ID)
			continue
		}
		c.nodes[n.ID] = n
		c.order = append(c.order, n.ID)
	}

	for _, l := range g.Links {
		if l == nil || l.Malformed() {
			observability.LogLinkDropped(logger, "malformed link", l)
			continue
		}
		if l.OriginID == l.TargetID {
			observability.LogLinkDropped(logger, "self-loop", l)
			continue
		}
		if _, ok := c.nodes[l.OriginID]; !ok {
			observability.LogLinkDropped(logger, "unknown origin node", l)
			continue
		}
		if _, ok := c.nodes[l.TargetID]; !ok {
			observability.LogLinkDropped(logger, "unknown target node", l)
			continue
		}
		c.links = append(c.links, l)
	}

	c.rebuild()
	return c
}

// rebuild recomputes adjacency, indegree, and input resolution from the
// current link list. Called again after a scheduling repair drops links.
func (c *compiledGraph) rebuild() {
	c.adjacency = make(map[string][]string)
	c.indegree = make(map[string]int)
	c.inputs = make(map[string]map[int]string)

	for _, l := range c.links {
		c.adjacency[l.OriginID] = append(c.adjacency[l.OriginID], l.TargetID)
		c.indegree[l.TargetID]++

		if c.inputs[l.TargetID] == nil {
			c.inputs[l.TargetID] = make(map[int]string)
		}
		// Last write wins on slot collisions.
		c.inputs[l.TargetID][l.TargetSlot] = l.OriginID
	}
}

// dropIncoming removes every link targeting one of the given nodes and
// rebuilds the plan. Used to break cycles.
func (c *compiledGraph) dropIncoming(stuck map[string]bool) {
	kept := c.links[:0]
	for _, l := range c.links {
		if !stuck[l.TargetID] {
			kept = append(kept, l)
		}
	}
	c.links = kept
	c.rebuild()
}

// linked reports whether a node participates in at least one link.
func (c *compiledGraph) linked(id string) bool {
	if c.indegree[id] > 0 {
		return true
	}
	return len(c.adjacency[id]) > 0
}
