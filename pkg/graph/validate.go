package graph

import "strings"

// Validate runs the structural checks on a built graph. Self-dependencies and
// cycles are hard errors; duplicate edges and dangling dependency references
// are warnings (a dangling dependent is unreachable, which the build step
// already surfaced).
func Validate(g *Graph) Report {
	var report Report

	if g == nil || len(g.Nodes) == 0 {
		report.errorf("graph has no nodes")
		return report
	}

	for _, id := range g.NodeIDs() {
		for _, dep := range g.Nodes[id].Dependencies {
			if dep == id {
				report.errorf("node %q depends on itself", id)
			}
		}
	}

	edgeSeen := make(map[Edge]int, len(g.Edges))
	for _, e := range g.Edges {
		edgeSeen[e]++
		if e.From == e.To {
			report.errorf("self-loop edge on node %q", e.From)
		}
		if _, ok := g.Nodes[e.From]; !ok {
			report.warnf("edge references unknown node %q", e.From)
		}
		if _, ok := g.Nodes[e.To]; !ok {
			report.warnf("edge references unknown node %q", e.To)
		}
	}
	for e, count := range edgeSeen {
		if count > 1 {
			report.warnf("duplicate edge %s -> %s", e.From, e.To)
		}
	}

	for _, id := range g.NodeIDs() {
		warned := make(map[string]struct{})
		for _, dep := range g.Nodes[id].Dependencies {
			if _, known := g.Nodes[dep]; known {
				continue
			}
			if _, done := warned[dep]; done {
				continue
			}
			warned[dep] = struct{}{}
			report.warnf("node %q references unknown dependency %q", id, dep)
		}
	}

	for _, cycle := range DetectCycles(g) {
		report.errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
	}

	return report
}
