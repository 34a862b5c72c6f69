package graph

import (
	"fmt"
	"sort"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

// DetectCycles walks the graph depth-first from every unvisited node,
// maintaining a recursion stack. A back-edge into the active stack reports the
// path slice from that ancestor forward plus the closing edge as one cycle.
// All independent cycles are reported in a single pass.
func DetectCycles(g *Graph) [][]string {
	_, dependents := g.dependencyIndex()

	visited := make(map[string]struct{}, len(g.Nodes))
	onStack := make(map[string]int, len(g.Nodes))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		if _, done := visited[id]; done {
			return
		}
		if pos, active := onStack[id]; active {
			cycle := append([]string(nil), stack[pos:]...)
			cycle = append(cycle, id)
			cycles = append(cycles, cycle)
			return
		}

		onStack[id] = len(stack)
		stack = append(stack, id)

		next := append([]string(nil), dependents[id]...)
		sort.Strings(next)
		for _, dependent := range next {
			visit(dependent)
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		visited[id] = struct{}{}
	}

	for _, id := range g.NodeIDs() {
		visit(id)
	}
	return cycles
}

// TopologicalSort orders the nodes with Kahn's algorithm. The ready queue is
// sorted before each pop so ties break on the lexicographically smallest id,
// making the output deterministic. A short output means the graph has a
// cycle and the operation fails rather than silently dropping nodes.
func TopologicalSort(g *Graph) ([]string, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, fmt.Errorf("%w: graph has no nodes", domain.ErrGraphInvalid)
	}

	deps, dependents := g.dependencyIndex()

	inDegree := make(map[string]int, len(g.Nodes))
	var ready []string
	for id := range g.Nodes {
		inDegree[id] = len(deps[id])
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) < len(g.Nodes) {
		return nil, fmt.Errorf("%w: topological sort covered %d of %d nodes",
			domain.ErrCycleDetected, len(order), len(g.Nodes))
	}
	return order, nil
}

// ExecutionLevels assigns each node a level for parallel scheduling. An
// independent-source ingress node is pinned to level 0; a signal-ingress node
// is level 0 unless it depends on an independent source, then level 1. Every
// other node sits at max(level of dependencies)+1 with a floor of 1. Nodes
// sharing a level may run concurrently. Leading empty levels are trimmed.
func ExecutionLevels(g *Graph) ([][]string, error) {
	order, err := TopologicalSort(g)
	if err != nil {
		return nil, err
	}

	deps, _ := g.dependencyIndex()
	levels := make(map[string]int, len(order))

	for _, id := range order {
		node := g.Nodes[id]
		if node.Category == domain.CategoryIngress {
			switch node.Role() {
			case domain.PluginMarketData:
				levels[id] = 0
				continue
			case domain.PluginSignalIngress:
				level := 0
				for _, dep := range deps[id] {
					if g.Nodes[dep].Role() == domain.PluginMarketData {
						level = 1
						break
					}
				}
				levels[id] = level
				continue
			}
		}

		level := 1
		for _, dep := range deps[id] {
			if depLevel := levels[dep] + 1; depLevel > level {
				level = depLevel
			}
		}
		levels[id] = level
	}

	maxLevel := 0
	for _, level := range levels {
		if level > maxLevel {
			maxLevel = level
		}
	}

	grouped := make([][]string, maxLevel+1)
	for _, id := range order {
		grouped[levels[id]] = append(grouped[levels[id]], id)
	}
	for _, level := range grouped {
		sort.Strings(level)
	}

	for len(grouped) > 0 && len(grouped[0]) == 0 {
		grouped = grouped[1:]
	}
	return grouped, nil
}
