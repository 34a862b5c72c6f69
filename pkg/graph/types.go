package graph

import (
	"sort"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine/runtime"
)

// Node is a configured pipeline stage with its plugin resolved. Dependencies
// holds the union of the configured dependency list and the plugin's intrinsic
// dependencies; duplicates survive the merge (the build step warns on them)
// and consumers deduplicate.
type Node struct {
	domain.NodeConfig
	Plugin       runtime.Plugin
	Dependencies []string
}

// Role returns the resolved plugin's implementation name, used for the
// ingress placement rules.
func (n *Node) Role() string {
	if n.Plugin == nil {
		return n.NodeConfig.Plugin
	}
	return n.Plugin.PluginName()
}

// Edge is a directed dependency edge: To runs after From.
type Edge struct {
	From string
	To   string
}

// Graph is a validated pipeline dependency graph. Insertion order of the node
// map is irrelevant; analysis operations derive deterministic orderings.
type Graph struct {
	PipelineID string
	Version    string
	Nodes      map[string]*Node
	Edges      []Edge
}

// NodeIDs returns the node ids in lexicographic order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DirectDependencies returns the deduplicated dependencies of a node that
// reference known nodes. Dangling references are excluded; the build step
// already warned about them.
func (g *Graph) DirectDependencies(id string) []string {
	node, ok := g.Nodes[id]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(node.Dependencies))
	var deps []string
	for _, dep := range node.Dependencies {
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		if _, known := g.Nodes[dep]; known {
			deps = append(deps, dep)
		}
	}
	return deps
}

// dependencyIndex derives the direct-dependency and direct-dependent maps.
// It is rebuilt per analysis call rather than cached; graphs are small and
// rebuilt rarely relative to execution time.
func (g *Graph) dependencyIndex() (deps map[string][]string, dependents map[string][]string) {
	deps = make(map[string][]string, len(g.Nodes))
	dependents = make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		direct := g.DirectDependencies(id)
		deps[id] = direct
		for _, dep := range direct {
			dependents[dep] = append(dependents[dep], id)
		}
	}
	return deps, dependents
}
