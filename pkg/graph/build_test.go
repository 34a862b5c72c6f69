package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine/runtime"
	"github.com/sigflowai/sigflow-oss/pkg/registry"
)

func passThrough(_ context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	return state, nil
}

func enrichmentPlugin(id string) *runtime.Func {
	return &runtime.Func{Name: id, Kind: domain.CategoryEnrichment, Impl: id, Concurrent: true, Fn: passThrough}
}

// aggregator implements DependencyExpander: it runs after every other
// enabled node.
type aggregator struct {
	runtime.Func
}

func newAggregator(id string) *aggregator {
	return &aggregator{Func: runtime.Func{
		Name: id, Kind: domain.CategoryEnrichment, Impl: id, Fn: passThrough,
	}}
}

func (a *aggregator) ExpandDependencies(enabledIDs []string) []string {
	var deps []string
	for _, id := range enabledIDs {
		if id != a.Name {
			deps = append(deps, id)
		}
	}
	return deps
}

func testRegistry(t *testing.T, plugins ...runtime.Plugin) *registry.Registry {
	t.Helper()
	reg := registry.New()
	defaults := []runtime.Plugin{
		&runtime.Func{Name: "source", Kind: domain.CategoryIngress, Impl: domain.PluginMarketData, Concurrent: true, Fn: passThrough},
		&runtime.Func{Name: "intake", Kind: domain.CategoryIngress, Impl: domain.PluginSignalIngress, Concurrent: true, Fn: passThrough},
		enrichmentPlugin("enrich"),
	}
	for _, p := range append(defaults, plugins...) {
		if err := reg.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.ID(), err)
		}
	}
	return reg
}

func node(id, plugin string, category domain.NodeCategory, deps ...string) domain.NodeConfig {
	return domain.NodeConfig{
		ID:        id,
		Category:  category,
		Plugin:    plugin,
		Enabled:   true,
		DependsOn: deps,
	}
}

func enrichNode(id string, deps ...string) domain.NodeConfig {
	return node(id, "enrich", domain.CategoryEnrichment, deps...)
}

func TestBuildSimpleChain(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	g, report, err := builder.Build(domain.PipelineConfig{
		ID: "chain",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			enrichNode("B", "A"),
			enrichNode("C", "A"),
		},
	})
	if err != nil {
		t.Fatalf("build failed: %v (errors: %v)", err, report.Errors)
	}
	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(g.Nodes))
	}
	if len(g.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(g.Edges))
	}

	order, err := TopologicalSort(g)
	if err != nil {
		t.Fatalf("topological sort: %v", err)
	}
	want := []string{"A", "B", "C"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, order, want)
		}
	}

	levels, err := ExecutionLevels(g)
	if err != nil {
		t.Fatalf("execution levels: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %v", levels)
	}
	if len(levels[0]) != 1 || levels[0][0] != "A" {
		t.Fatalf("level 0 mismatch: %v", levels[0])
	}
	if len(levels[1]) != 2 || levels[1][0] != "B" || levels[1][1] != "C" {
		t.Fatalf("level 1 mismatch: %v", levels[1])
	}
}

func TestBuildRejectsSelfDependency(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	g, report, err := builder.Build(domain.PipelineConfig{
		ID:    "self",
		Nodes: []domain.NodeConfig{enrichNode("X", "X")},
	})
	if err == nil {
		t.Fatal("expected build to fail")
	}
	if g != nil {
		t.Fatal("expected no graph on failure")
	}
	if !errors.Is(err, domain.ErrGraphInvalid) {
		t.Fatalf("expected ErrGraphInvalid, got %v", err)
	}
	if len(report.Errors) == 0 {
		t.Fatal("expected structural errors in report")
	}
}

func TestBuildRejectsIndependentSourceWithDependency(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	_, report, err := builder.Build(domain.PipelineConfig{
		ID: "bad-source",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			node("feed", "source", domain.CategoryIngress, "A"),
		},
	})
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if !containsSubstring(report.Errors, "must not declare dependencies") {
		t.Fatalf("expected independent-source error, got %v", report.Errors)
	}
}

func TestBuildRejectsEnrichmentDependingOnIndependentSource(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	_, report, err := builder.Build(domain.PipelineConfig{
		ID: "bad-dep",
		Nodes: []domain.NodeConfig{
			node("feed", "source", domain.CategoryIngress),
			enrichNode("A", "feed"),
		},
	})
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if !containsSubstring(report.Errors, "must not depend on independent-source") {
		t.Fatalf("expected positional-rule error, got %v", report.Errors)
	}
}

func TestBuildCollectsAllMissingPlugins(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	_, report, err := builder.Build(domain.PipelineConfig{
		ID: "missing",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			node("B", "nope", domain.CategoryEnrichment),
			node("C", "also-nope", domain.CategoryEnrichment),
		},
	})
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if !containsSubstring(report.Errors, `unknown plugin "nope"`) ||
		!containsSubstring(report.Errors, `unknown plugin "also-nope"`) {
		t.Fatalf("expected both missing plugins reported, got %v", report.Errors)
	}
}

func TestBuildSkipsDisabledNodesWithWarning(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	disabled := enrichNode("off", "A")
	disabled.Enabled = false

	g, report, err := builder.Build(domain.PipelineConfig{
		ID:    "disabled",
		Nodes: []domain.NodeConfig{enrichNode("A"), disabled},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, present := g.Nodes["off"]; present {
		t.Fatal("disabled node should not be in the graph")
	}
	if !containsSubstring(report.Warnings, "disabled") {
		t.Fatalf("expected disabled warning, got %v", report.Warnings)
	}
}

func TestBuildWarnsOnDuplicateDependency(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	g, report, err := builder.Build(domain.PipelineConfig{
		ID: "dups",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			enrichNode("B", "A", "A"),
		},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !containsSubstring(report.Warnings, "duplicate dependency") {
		t.Fatalf("expected duplicate-dependency warning, got %v", report.Warnings)
	}
	// The edge set is deduplicated even though the declaration is preserved.
	if len(g.Edges) != 1 {
		t.Fatalf("expected a single edge, got %v", g.Edges)
	}
}

func TestBuildDuplicateWarningOrderIsDeterministic(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)
	cfg := domain.PipelineConfig{
		ID: "dup-order",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			enrichNode("B"),
			enrichNode("C", "B", "A", "B", "A"),
		},
	}

	duplicateWarnings := func(report Report) []string {
		var out []string
		for _, w := range report.Warnings {
			if strings.Contains(w, "duplicate dependency") {
				out = append(out, w)
			}
		}
		return out
	}

	_, first, err := builder.Build(cfg)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	want := []string{
		`node "C" declares duplicate dependency "B"`,
		`node "C" declares duplicate dependency "A"`,
	}
	got := duplicateWarnings(first)
	if len(got) != len(want) {
		t.Fatalf("expected %d duplicate warnings, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("warning %d: got %q, want %q", i, got[i], want[i])
		}
	}

	_, second, err := builder.Build(cfg)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	repeat := duplicateWarnings(second)
	for i := range got {
		if repeat[i] != got[i] {
			t.Fatalf("warning order changed across builds: %v vs %v", got, repeat)
		}
	}
}

func TestBuildDanglingDependencyIsWarningOnly(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	g, report, err := builder.Build(domain.PipelineConfig{
		ID: "dangling",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			enrichNode("B", "ghost"),
		},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !containsSubstring(report.Warnings, "never become ready") {
		t.Fatalf("expected dangling warning, got %v", report.Warnings)
	}
	if len(g.Edges) != 0 {
		t.Fatalf("expected no edges, got %v", g.Edges)
	}
}

func TestBuildExpandsAggregatorDependencies(t *testing.T) {
	builder := NewBuilder(testRegistry(t, newAggregator("agg")), nil)

	g, _, err := builder.Build(domain.PipelineConfig{
		ID: "agg",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			enrichNode("B"),
			node("agg", "agg", domain.CategoryEnrichment),
		},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	deps := g.DirectDependencies("agg")
	if len(deps) != 2 {
		t.Fatalf("expected aggregator to depend on A and B, got %v", deps)
	}

	levels, err := ExecutionLevels(g)
	if err != nil {
		t.Fatalf("execution levels: %v", err)
	}
	last := levels[len(levels)-1]
	if len(last) != 1 || last[0] != "agg" {
		t.Fatalf("aggregator should sit alone in the final level, got %v", levels)
	}
}

func TestBuildRequiresEnabledEnrichment(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	_, report, err := builder.Build(domain.PipelineConfig{
		ID:    "no-enrichment",
		Nodes: []domain.NodeConfig{node("feed", "source", domain.CategoryIngress)},
	})
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if !containsSubstring(report.Errors, "no enabled enrichment node") {
		t.Fatalf("expected enrichment-requirement error, got %v", report.Errors)
	}
}

func TestBuildRejectsInvalidCategory(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)

	_, report, err := builder.Build(domain.PipelineConfig{
		ID: "bad-category",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			node("B", "enrich", domain.CategoryRequired),
		},
	})
	if !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if !containsSubstring(report.Errors, "invalid category") {
		t.Fatalf("expected category error, got %v", report.Errors)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	builder := NewBuilder(testRegistry(t), nil)
	cfg := domain.PipelineConfig{
		ID: "repeat",
		Nodes: []domain.NodeConfig{
			enrichNode("A"),
			enrichNode("B", "A"),
			enrichNode("C", "A", "B"),
		},
	}

	g1, _, err := builder.Build(cfg)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	g2, _, err := builder.Build(cfg)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}

	order1, _ := TopologicalSort(g1)
	order2, _ := TopologicalSort(g2)
	if len(order1) != len(order2) {
		t.Fatalf("order lengths differ: %v vs %v", order1, order2)
	}
	for i := range order1 {
		if order1[i] != order2[i] {
			t.Fatalf("orders differ: %v vs %v", order1, order2)
		}
	}
}

func containsSubstring(list []string, substr string) bool {
	for _, s := range list {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
