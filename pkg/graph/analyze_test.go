package graph

import (
	"errors"
	"testing"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine/runtime"
)

// rawGraph builds a Graph directly, bypassing the builder, so structural
// operations can be exercised on shapes the builder would reject.
func rawGraph(nodes map[string][]string) *Graph {
	g := &Graph{PipelineID: "test", Nodes: make(map[string]*Node, len(nodes))}
	for id, deps := range nodes {
		g.Nodes[id] = &Node{
			NodeConfig: domain.NodeConfig{ID: id, Category: domain.CategoryEnrichment, Enabled: true},
			Plugin: &runtime.Func{
				Name: id, Kind: domain.CategoryEnrichment, Impl: id,
			},
			Dependencies: deps,
		}
	}
	for id, deps := range nodes {
		for _, dep := range deps {
			g.Edges = append(g.Edges, Edge{From: dep, To: id})
		}
	}
	return g
}

func ingressGraph(roles map[string]string, deps map[string][]string) *Graph {
	g := &Graph{PipelineID: "test", Nodes: make(map[string]*Node)}
	for id, role := range roles {
		category := domain.CategoryIngress
		if role == "" {
			category = domain.CategoryEnrichment
			role = id
		}
		g.Nodes[id] = &Node{
			NodeConfig: domain.NodeConfig{ID: id, Category: category, Enabled: true},
			Plugin: &runtime.Func{
				Name: id, Kind: category, Impl: role,
			},
			Dependencies: deps[id],
		}
	}
	return g
}

func TestTopologicalSortLexicographicTieBreak(t *testing.T) {
	g := rawGraph(map[string][]string{"c": nil, "a": nil, "b": nil})

	order, err := TopologicalSort(g)
	if err != nil {
		t.Fatalf("topological sort: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("tie-break violated: got %v, want %v", order, want)
		}
	}
}

func TestTopologicalSortFailsOnCycle(t *testing.T) {
	g := rawGraph(map[string][]string{
		"A": {"C"},
		"B": {"A"},
		"C": {"B"},
	})

	if _, err := TopologicalSort(g); !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestTopologicalSortEmptyGraph(t *testing.T) {
	if _, err := TopologicalSort(&Graph{Nodes: map[string]*Node{}}); !errors.Is(err, domain.ErrGraphInvalid) {
		t.Fatalf("expected ErrGraphInvalid, got %v", err)
	}
}

func TestDetectCyclesReportsSingleThreeNodeCycle(t *testing.T) {
	g := rawGraph(map[string][]string{
		"A": {"C"},
		"B": {"A"},
		"C": {"B"},
	})

	cycles := DetectCycles(g)
	if len(cycles) != 1 {
		t.Fatalf("expected exactly one cycle, got %v", cycles)
	}

	members := make(map[string]struct{})
	for _, id := range cycles[0] {
		members[id] = struct{}{}
	}
	for _, id := range []string{"A", "B", "C"} {
		if _, ok := members[id]; !ok {
			t.Fatalf("cycle missing %s: %v", id, cycles[0])
		}
	}
	// The closing edge repeats the entry node.
	if cycles[0][0] != cycles[0][len(cycles[0])-1] {
		t.Fatalf("cycle should close on its entry node: %v", cycles[0])
	}
}

func TestDetectCyclesMultipleIndependentCycles(t *testing.T) {
	g := rawGraph(map[string][]string{
		"a1": {"a2"}, "a2": {"a1"},
		"b1": {"b2"}, "b2": {"b1"},
		"c":  nil,
	})

	cycles := DetectCycles(g)
	if len(cycles) != 2 {
		t.Fatalf("expected two cycles, got %v", cycles)
	}
}

func TestDetectCyclesAcyclicGraph(t *testing.T) {
	g := rawGraph(map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"A", "B"},
	})

	if cycles := DetectCycles(g); len(cycles) != 0 {
		t.Fatalf("expected no cycles, got %v", cycles)
	}
}

func TestExecutionLevelsIndependentSourcePinnedToZero(t *testing.T) {
	g := ingressGraph(
		map[string]string{
			"feed":   domain.PluginMarketData,
			"intake": domain.PluginSignalIngress,
			"stage":  "",
		},
		map[string][]string{
			"intake": {"feed"},
			"stage":  {"intake"},
		},
	)

	levels, err := ExecutionLevels(g)
	if err != nil {
		t.Fatalf("execution levels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %v", levels)
	}
	if levels[0][0] != "feed" {
		t.Fatalf("independent source must be level 0, got %v", levels)
	}
	if levels[1][0] != "intake" {
		t.Fatalf("signal ingress depending on a source must be level 1, got %v", levels)
	}
	if levels[2][0] != "stage" {
		t.Fatalf("enrichment must follow its dependencies, got %v", levels)
	}
}

func TestExecutionLevelsSignalIngressWithoutSourceIsZero(t *testing.T) {
	g := ingressGraph(
		map[string]string{
			"intake": domain.PluginSignalIngress,
			"stage":  "",
		},
		map[string][]string{
			"stage": {"intake"},
		},
	)

	levels, err := ExecutionLevels(g)
	if err != nil {
		t.Fatalf("execution levels: %v", err)
	}
	if levels[0][0] != "intake" {
		t.Fatalf("signal ingress without a source must be level 0, got %v", levels)
	}
}

func TestExecutionLevelsTrimLeadingEmpty(t *testing.T) {
	// Pure enrichment graphs have nothing at level 0; the empty leading
	// level must be trimmed.
	g := rawGraph(map[string][]string{
		"A": nil,
		"B": {"A"},
	})

	levels, err := ExecutionLevels(g)
	if err != nil {
		t.Fatalf("execution levels: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels after trimming, got %v", levels)
	}
	if levels[0][0] != "A" {
		t.Fatalf("first level should hold A, got %v", levels)
	}
}

func TestExecutionLevelsStrictlyAboveDependencies(t *testing.T) {
	g := rawGraph(map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"A"},
		"D": {"B", "C"},
		"E": {"A", "D"},
	})

	levels, err := ExecutionLevels(g)
	if err != nil {
		t.Fatalf("execution levels: %v", err)
	}

	levelOf := make(map[string]int)
	for i, level := range levels {
		for _, id := range level {
			levelOf[id] = i
		}
	}
	for id := range g.Nodes {
		for _, dep := range g.DirectDependencies(id) {
			if levelOf[id] <= levelOf[dep] {
				t.Fatalf("node %s (level %d) not above dependency %s (level %d)",
					id, levelOf[id], dep, levelOf[dep])
			}
		}
	}
}
