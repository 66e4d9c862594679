package maestro

import (
	"log/slog"

	"github.com/nebuai/maestro/pkg/maestro/observability"
)

// scheduleResult is the outcome of ordering a compiled graph.
type scheduleResult struct {
	// order lists node ids in execution order.
	order []string
	// repaired is true when a cycle was broken to produce the order.
	repaired bool
	// stuck lists the nodes whose incoming links were dropped.
	stuck []string
}

// schedule produces the execution order via Kahn's algorithm.
//
// The ready queue is seeded in declaration order and successors are
// released in link order, so the result is deterministic. When a pass
// cannot unblock every linked node, the graph contains a cycle: under
// strict scheduling this is a StructuralError; otherwise the incoming
// links of the stuck nodes are dropped and the plan is rebuilt once,
// which always completes. Nodes with no links at all run last, in
// declaration order.
func (c *compiledGraph) schedule(strict bool, logger *slog.Logger) (*scheduleResult, error) {
	members := make(map[string]bool, len(c.order))
	for _, id := range c.order {
		if c.linked(id) {
			members[id] = true
		}
	}

	res := &scheduleResult{}
	res.order, res.stuck = c.kahn(members)

	if len(res.stuck) > 0 {
		if strict {
			return nil, &StructuralError{Stuck: res.stuck}
		}
		observability.LogCycleBreak(logger, res.stuck)

		stuckSet := make(map[string]bool, len(res.stuck))
		for _, id := range res.stuck {
			stuckSet[id] = true
		}
		c.dropIncoming(stuckSet)

		res.order, _ = c.kahn(members)
		res.repaired = true
	}

	for _, id := range c.order {
		if !members[id] {
			res.order = append(res.order, id)
		}
	}
	return res, nil
}

// kahn runs one topological ordering pass over the member nodes.
// Returns the ordered ids and the ids left blocked by a cycle, both in
// deterministic order.
func (c *compiledGraph) kahn(members map[string]bool) (order, stuck []string) {
	indeg := make(map[string]int, len(members))
	for id := range members {
		indeg[id] = c.indegree[id]
	}

	var queue []string
	for _, id := range c.order {
		if members[id] && indeg[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := make(map[string]bool, len(members))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, id)

		for _, target := range c.adjacency[id] {
			indeg[target]--
			if indeg[target] == 0 {
				queue = append(queue, target)
			}
		}
	}

	for _, id := range c.order {
		if members[id] && !visited[id] {
			stuck = append(stuck, id)
		}
	}
	return order, stuck
}
