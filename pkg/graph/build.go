package graph

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine/runtime"
	"github.com/sigflowai/sigflow-oss/pkg/registry"
)

// Report accumulates human-readable build/validation findings. Errors reject
// the configuration; warnings are surfaced for operator visibility only.
type Report struct {
	Errors   []string
	Warnings []string
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) merge(other Report) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Builder turns declarative node lists into validated graphs. Building is a
// pure function of the configuration plus registry state: the same input
// yields structurally equal graphs.
type Builder struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewBuilder creates a builder resolving plugin references against reg.
func NewBuilder(reg *registry.Registry, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{registry: reg, logger: logger}
}

// Build resolves, assembles, and validates the graph for cfg. On any hard
// error no partial graph is produced; the report carries every finding.
func (b *Builder) Build(cfg domain.PipelineConfig) (*Graph, Report, error) {
	var report Report

	b.validateShell(cfg, &report)
	if len(report.Errors) > 0 {
		return nil, report, fmt.Errorf("%w: pipeline %q: %d error(s)", domain.ErrConfigInvalid, cfg.ID, len(report.Errors))
	}

	g := &Graph{
		PipelineID: cfg.ID,
		Version:    cfg.Version,
		Nodes:      make(map[string]*Node),
	}

	var enabledIDs []string
	for _, nc := range cfg.Nodes {
		if !nc.Enabled {
			report.warnf("node %q is disabled; skipping", nc.ID)
			continue
		}
		enabledIDs = append(enabledIDs, nc.ID)
	}
	sort.Strings(enabledIDs)

	// Resolve every enabled node before aborting so the report names all
	// missing plugins at once.
	resolved := make(map[string]runtime.Plugin, len(enabledIDs))
	for _, nc := range cfg.Nodes {
		if !nc.Enabled {
			continue
		}
		plugin, ok := b.registry.Get(nc.Plugin)
		if !ok {
			report.errorf("node %q references unknown plugin %q", nc.ID, nc.Plugin)
			continue
		}
		resolved[nc.ID] = plugin
	}
	if len(report.Errors) > 0 {
		return nil, report, fmt.Errorf("%w: pipeline %q: unresolved plugins", domain.ErrConfigInvalid, cfg.ID)
	}

	for _, nc := range cfg.Nodes {
		if !nc.Enabled {
			continue
		}
		plugin := resolved[nc.ID]
		merged := mergeDependencies(nc, plugin, enabledIDs, &report)
		g.Nodes[nc.ID] = &Node{
			NodeConfig:   nc,
			Plugin:       plugin,
			Dependencies: merged,
		}
	}

	for _, id := range g.NodeIDs() {
		node := g.Nodes[id]
		seen := make(map[string]struct{})
		for _, dep := range node.Dependencies {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			if _, known := g.Nodes[dep]; !known {
				report.warnf("node %q depends on unknown node %q; it will never become ready", id, dep)
				continue
			}
			g.Edges = append(g.Edges, Edge{From: dep, To: id})
		}
	}

	report.merge(Validate(g))
	if len(report.Errors) > 0 {
		return nil, report, fmt.Errorf("%w: pipeline %q: %d structural error(s)", domain.ErrGraphInvalid, cfg.ID, len(report.Errors))
	}

	b.logger.Debug("graph built",
		"pipeline_id", g.PipelineID,
		"nodes", len(g.Nodes),
		"edges", len(g.Edges),
		"warnings", len(report.Warnings),
	)
	return g, report, nil
}

// validateShell checks the configuration before any resolution happens.
// Violations here are hard errors and no partial graph is produced.
func (b *Builder) validateShell(cfg domain.PipelineConfig, report *Report) {
	if cfg.ID == "" {
		report.errorf("pipeline id is required")
	}
	if len(cfg.Nodes) == 0 {
		report.errorf("pipeline %q has no nodes", cfg.ID)
		return
	}

	seen := make(map[string]struct{}, len(cfg.Nodes))
	independent := make(map[string]struct{})
	enabledEnrichment := 0

	for _, nc := range cfg.Nodes {
		if nc.ID == "" {
			report.errorf("pipeline %q contains a node without an id", cfg.ID)
			continue
		}
		if _, dup := seen[nc.ID]; dup {
			report.errorf("duplicate node id %q", nc.ID)
		}
		seen[nc.ID] = struct{}{}

		switch nc.Category {
		case domain.CategoryEnrichment:
			if nc.Enabled {
				enabledEnrichment++
			}
		case domain.CategoryIngress:
		default:
			report.errorf("node %q has invalid category %q (want enrichment or ingress)", nc.ID, nc.Category)
		}

		if nc.Plugin == "" {
			report.errorf("node %q has no plugin reference", nc.ID)
			continue
		}

		if b.pluginRole(nc.Plugin) == domain.PluginMarketData {
			independent[nc.ID] = struct{}{}
			if nc.Category == domain.CategoryIngress && len(nc.DependsOn) > 0 {
				report.errorf("independent-source node %q must not declare dependencies", nc.ID)
			}
		}
	}

	if enabledEnrichment == 0 {
		report.errorf("pipeline %q has no enabled enrichment node", cfg.ID)
	}

	for _, nc := range cfg.Nodes {
		if nc.Category != domain.CategoryEnrichment {
			continue
		}
		for _, dep := range nc.DependsOn {
			if _, isIndependent := independent[dep]; isIndependent {
				report.errorf("enrichment node %q must not depend on independent-source node %q", nc.ID, dep)
			}
		}
	}
}

// pluginRole resolves a plugin reference to its implementation name so the
// positional rules can run before the resolution step. Unresolvable
// references fall back to the reference string itself.
func (b *Builder) pluginRole(ref string) string {
	if p, ok := b.registry.Get(ref); ok {
		return p.PluginName()
	}
	return ref
}

// mergeDependencies unions the configured dependency list with the plugin's
// intrinsic dependencies. Exact duplicates are tolerated with a warning and
// preserved; consumers deduplicate.
func mergeDependencies(nc domain.NodeConfig, plugin runtime.Plugin, enabledIDs []string, report *Report) []string {
	merged := append([]string(nil), nc.DependsOn...)

	var intrinsic []string
	if expander, ok := plugin.(runtime.DependencyExpander); ok {
		intrinsic = expander.ExpandDependencies(enabledIDs)
	} else {
		intrinsic = plugin.Dependencies()
	}
	merged = append(merged, intrinsic...)

	// Duplicate warnings follow declaration order; identical configs produce
	// identical reports.
	seen := make(map[string]struct{}, len(merged))
	warned := make(map[string]struct{})
	for _, dep := range merged {
		if _, dup := seen[dep]; !dup {
			seen[dep] = struct{}{}
			continue
		}
		if _, done := warned[dep]; !done {
			warned[dep] = struct{}{}
			report.warnf("node %q declares duplicate dependency %q", nc.ID, dep)
		}
	}
	return merged
}
