package engine

import "github.com/reelforge/reelforge/pkg/types"

// TopoSort orders the graph's nodes so every dependency precedes its
// dependents, using Kahn's algorithm with a FIFO queue seeded in node
// declaration order so ties resolve deterministically. Edges referencing
// unknown nodes are ignored. The second return value holds nodes that
// could not be scheduled because they sit on a cycle.
func TopoSort(g *types.Graph) (order, unscheduled []types.Node) {
	nodeByID := make(map[string]types.Node, len(g.Nodes))
	inDegree := make(map[string]int, len(g.Nodes))
	adjacency := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeByID[n.ID] = n
		inDegree[n.ID] = 0
	}

	for _, e := range g.Edges {
		if _, ok := nodeByID[e.Source]; !ok {
			continue
		}
		if _, ok := nodeByID[e.Target]; !ok {
			continue
		}
		inDegree[e.Target]++
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	var queue []string
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order = make([]types.Node, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, nodeByID[id])

		for _, target := range adjacency[id] {
			inDegree[target]--
			if inDegree[target] == 0 {
				queue = append(queue, target)
			}
		}
	}

	if len(order) < len(g.Nodes) {
		scheduled := make(map[string]struct{}, len(order))
		for _, n := range order {
			scheduled[n.ID] = struct{}{}
		}
		for _, n := range g.Nodes {
			if _, ok := scheduled[n.ID]; !ok {
				unscheduled = append(unscheduled, n)
			}
		}
	}

	return order, unscheduled
}

// Waves groups a topological order into execution waves: every node in a
// wave depends only on nodes in earlier waves, so a wave can run in
// parallel.
func Waves(g *types.Graph, order []types.Node) [][]types.Node {
	depth := make(map[string]int, len(order))
	incoming := make(map[string][]string)
	known := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n.ID] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := known[e.Source]; !ok {
			continue
		}
		if _, ok := known[e.Target]; !ok {
			continue
		}
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	maxDepth := 0
	for _, n := range order {
		d := 0
		for _, src := range incoming[n.ID] {
			if sd, ok := depth[src]; ok && sd+1 > d {
				d = sd + 1
			}
		}
		depth[n.ID] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	waves := make([][]types.Node, maxDepth+1)
	for _, n := range order {
		d := depth[n.ID]
		waves[d] = append(waves[d], n)
	}
	return waves
}

// TerminalNodes returns the nodes with no outgoing edges; their outputs
// form the run result.
func TerminalNodes(g *types.Graph) []types.Node {
	known := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n.ID] = struct{}{}
	}

	hasOutgoing := make(map[string]struct{})
	for _, e := range g.Edges {
		if _, ok := known[e.Source]; ok {
			hasOutgoing[e.Source] = struct{}{}
		}
	}

	var terminals []types.Node
	for _, n := range g.Nodes {
		if _, ok := hasOutgoing[n.ID]; !ok {
			terminals = append(terminals, n)
		}
	}
	return terminals
}
