// Package runtime defines the core contracts shared by the pipeline executor and
// plugin implementations, keeping enrichment logic decoupled from execution
// mechanics.
package runtime

import (
	"context"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

// Plugin is the capability contract every unit of pipeline work must satisfy.
// Satisfying the interface is a compile-time guarantee; the registry performs
// only a minimal runtime check (non-nil, non-empty id, known category) at its
// boundary.
//
// Execute receives the shared state as of the start of the node's execution
// level and returns an updated state. Plugins must not mutate prior nodes'
// outputs in place; the executor owns merging results back into the canonical
// state.
type Plugin interface {
	// ID is the registry key node configurations reference.
	ID() string
	// Category classifies the plugin's role.
	Category() domain.NodeCategory
	// PluginName is the human-readable implementation name. The two
	// designated ingress roles (domain.PluginMarketData,
	// domain.PluginSignalIngress) are recognised by name.
	PluginName() string
	// Parallel reports whether the plugin may run concurrently with other
	// nodes of its execution level.
	Parallel() bool
	// Dependencies lists node ids this plugin must always run after,
	// independent of per-node configuration.
	Dependencies() []string
	// Execute runs the plugin against the shared state.
	Execute(ctx context.Context, state *domain.PipelineState) (*domain.PipelineState, error)
}

// DependencyExpander is an optional extension for plugins whose intrinsic
// dependencies are computed from the set of enabled node ids, e.g. an
// aggregation plugin that must run after every other enabled node. When a
// resolved plugin implements it, the graph builder merges the expanded list
// instead of the static Dependencies result.
type DependencyExpander interface {
	ExpandDependencies(enabledIDs []string) []string
}

// Func adapts a plain function into a Plugin; used heavily by tests.
type Func struct {
	Name       string
	Kind       domain.NodeCategory
	Impl       string
	Concurrent bool
	DependsOn  []string
	Fn         func(ctx context.Context, state *domain.PipelineState) (*domain.PipelineState, error)
}

func (f *Func) ID() string                    { return f.Name }
func (f *Func) Category() domain.NodeCategory { return f.Kind }
func (f *Func) PluginName() string            { return f.Impl }
func (f *Func) Parallel() bool                { return f.Concurrent }
func (f *Func) Dependencies() []string        { return f.DependsOn }

func (f *Func) Execute(ctx context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	return f.Fn(ctx, state)
}
