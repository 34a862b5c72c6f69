package domain

// NodeCategory classifies a pipeline node by its role in the enrichment flow.
type NodeCategory string

const (
	// CategoryRequired marks plugins that every pipeline must carry. Node
	// configurations may not use it directly; it exists for plugin metadata.
	CategoryRequired NodeCategory = "required"
	// CategoryEnrichment marks analysis/enrichment stages.
	CategoryEnrichment NodeCategory = "enrichment"
	// CategoryIngress marks signal-source stages subject to placement rules.
	CategoryIngress NodeCategory = "ingress"
)

// Designated ingress plugin roles with special execution-level placement.
const (
	// PluginMarketData is the independent-source role: always level 0 and
	// never allowed to declare dependencies.
	PluginMarketData = "market_data"
	// PluginSignalIngress is the signal-intake role: level 0 unless it
	// depends on an independent source, in which case level 1.
	PluginSignalIngress = "signal_ingress"
)

// ValidCategory reports whether c is one of the known plugin categories.
func ValidCategory(c NodeCategory) bool {
	switch c {
	case CategoryRequired, CategoryEnrichment, CategoryIngress:
		return true
	}
	return false
}

// NodeConfig is the declarative description of one pipeline node. It is
// immutable input to the graph builder.
type NodeConfig struct {
	ID        string         `yaml:"id" json:"id"`
	Category  NodeCategory   `yaml:"category" json:"category"`
	Plugin    string         `yaml:"plugin" json:"plugin"`
	Enabled   bool           `yaml:"enabled" json:"enabled"`
	Optional  bool           `yaml:"optional" json:"optional"`
	Parallel  bool           `yaml:"parallel" json:"parallel"`
	DependsOn []string       `yaml:"depends_on" json:"depends_on"`
	Config    map[string]any `yaml:"config" json:"config"`
}

// PipelineConfig is the declarative node list for one pipeline.
type PipelineConfig struct {
	ID      string           `yaml:"id" json:"id"`
	Version string           `yaml:"version" json:"version"`
	Analyst map[string]any   `yaml:"analyst" json:"analyst"`
	Nodes   []NodeConfig     `yaml:"nodes" json:"nodes"`
}

// RunStatus tracks the lifecycle of one pipeline execution.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// NodeStatus tracks the outcome of one node within a run.
type NodeStatus string

const (
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)
