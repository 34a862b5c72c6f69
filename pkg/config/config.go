// Package config provides configuration structures and loading logic for
// sigflow services, including hot reload of pipeline definitions.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine"
)

// Config holds the global configuration for a sigflow service.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Execution ExecutionConfig `yaml:"execution" json:"execution"`
	Policy    PolicyConfig    `yaml:"policy" json:"policy"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`

	Pipelines []domain.PipelineConfig `yaml:"pipelines" json:"pipelines"`
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
}

// TelemetryConfig holds configuration for OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure" json:"insecure"`
	Environment  string `yaml:"environment" json:"environment"`
}

// ExecutionConfig holds the default execution policy applied to runs.
type ExecutionConfig struct {
	TimeoutMS       int    `yaml:"timeout_ms" json:"timeout_ms"`
	MaxRetries      int    `yaml:"max_retries" json:"max_retries"`
	RetryDelayMS    int    `yaml:"retry_delay_ms" json:"retry_delay_ms"`
	ContinueOnError *bool  `yaml:"continue_on_error" json:"continue_on_error"`
	FailFast        bool   `yaml:"fail_fast" json:"fail_fast"`
	Mode            string `yaml:"mode" json:"mode"`
	MaxConcurrent   int    `yaml:"max_concurrent" json:"max_concurrent"`
}

// PolicyConfig holds configuration for the signal-admission gate.
type PolicyConfig struct {
	Entrypoint      string `yaml:"entrypoint" json:"entrypoint"`
	ModuleDir       string `yaml:"module_dir" json:"module_dir"`
	CacheMaxEntries int    `yaml:"cache_max_entries" json:"cache_max_entries"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server:  ServerConfig{ListenAddress: ":8090"},
		Logging: LoggingConfig{Level: "info"},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("SIGFLOW_LISTEN_ADDR"); val != "" {
		cfg.Server.ListenAddress = val
	}

	if val := os.Getenv("SIGFLOW_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("SIGFLOW_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("SIGFLOW_ENVIRONMENT"); val != "" {
		cfg.Telemetry.Environment = val
	}

	if val := os.Getenv("SIGFLOW_EXEC_MODE"); val != "" {
		cfg.Execution.Mode = val
	}

	if val := os.Getenv("SIGFLOW_POLICY_DIR"); val != "" {
		cfg.Policy.ModuleDir = val
	}

	if val := os.Getenv("SIGFLOW_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate checks the configuration for structural errors. Per-node pipeline
// validation is the graph builder's job; this only rejects shapes the builder
// could never accept.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Execution.Mode) {
	case "", string(engine.ModeSequential), string(engine.ModeParallel), string(engine.ModeAdaptive):
	default:
		return fmt.Errorf("execution.mode: unknown mode %q", c.Execution.Mode)
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries: must be >= 0, got %d", c.Execution.MaxRetries)
	}
	if c.Execution.MaxConcurrent < 0 {
		return fmt.Errorf("execution.max_concurrent: must be >= 0, got %d", c.Execution.MaxConcurrent)
	}

	seen := make(map[string]struct{}, len(c.Pipelines))
	for i, pipeline := range c.Pipelines {
		if strings.TrimSpace(pipeline.ID) == "" {
			return fmt.Errorf("pipelines[%d]: missing id", i)
		}
		if _, dup := seen[pipeline.ID]; dup {
			return fmt.Errorf("pipelines[%d]: duplicate pipeline id %q", i, pipeline.ID)
		}
		seen[pipeline.ID] = struct{}{}
		if len(pipeline.Nodes) == 0 {
			return fmt.Errorf("pipeline %q: no nodes defined", pipeline.ID)
		}
	}
	return nil
}

// Pipeline returns the pipeline definition with the given id.
func (c *Config) Pipeline(id string) (domain.PipelineConfig, bool) {
	for _, pipeline := range c.Pipelines {
		if pipeline.ID == id {
			return pipeline, true
		}
	}
	return domain.PipelineConfig{}, false
}

// ExecutionOptions converts the configured execution policy to engine options.
func (c *Config) ExecutionOptions() engine.Options {
	opts := engine.DefaultOptions()
	if c.Execution.TimeoutMS > 0 {
		opts.Timeout = time.Duration(c.Execution.TimeoutMS) * time.Millisecond
	}
	if c.Execution.MaxRetries > 0 {
		opts.MaxRetries = c.Execution.MaxRetries
	}
	if c.Execution.RetryDelayMS > 0 {
		opts.RetryDelay = time.Duration(c.Execution.RetryDelayMS) * time.Millisecond
	}
	if c.Execution.ContinueOnError != nil {
		opts.ContinueOnError = *c.Execution.ContinueOnError
	}
	opts.FailFast = c.Execution.FailFast
	if c.Execution.Mode != "" {
		opts.Mode = engine.ExecutionMode(strings.ToLower(c.Execution.Mode))
	}
	if c.Execution.MaxConcurrent > 0 {
		opts.MaxConcurrent = c.Execution.MaxConcurrent
	}
	return opts
}
