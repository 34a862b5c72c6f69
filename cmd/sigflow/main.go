// Package main is the entry point for the sigflow CLI.
// It provides one-shot pipeline execution and graph inspection without
// running the serving surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigflowai/sigflow-oss/pkg/config"
	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine"
	"github.com/sigflowai/sigflow-oss/pkg/graph"
	"github.com/sigflowai/sigflow-oss/pkg/logging"
	"github.com/sigflowai/sigflow-oss/pkg/registry"
)

const defaultLogLevel = "warn"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sigflow",
		Short: "Signal enrichment pipeline runner",
		Long: `Run and inspect signal-enrichment pipelines defined in a configuration file.

Example:
  sigflow run --config config.yaml --pipeline momentum-scan --input signal.json`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newGraphCmd())

	return rootCmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline against one signal and print the result",
		RunE:  runPipeline,
	}
	cmd.Flags().StringP("pipeline", "p", "", "Pipeline id to execute")
	cmd.Flags().StringP("input", "i", "", "Path to JSON file with the raw signal payload")
	cmd.Flags().String("signal-id", "", "Signal id (generated when empty)")
	_ = cmd.MarkFlagRequired("pipeline")
	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Build every configured pipeline and report errors and warnings",
		RunE:  validatePipelines,
	}
	return cmd
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the execution order and levels of a pipeline",
		RunE:  showGraph,
	}
	cmd.Flags().StringP("pipeline", "p", "", "Pipeline id to inspect")
	_ = cmd.MarkFlagRequired("pipeline")
	return cmd
}

// cliComponents bundles everything a subcommand needs.
type cliComponents struct {
	cfg      *config.Config
	registry *registry.Registry
	builder  *graph.Builder
	logger   *slog.Logger
}

// setup loads the configuration and assembles the shared components.
func setup(cmd *cobra.Command) (*cliComponents, error) {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")

	logger := logging.NewLogger(logging.Config{Level: logLevel, Pretty: true})
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	for _, plugin := range builtinPlugins() {
		if err := reg.Register(plugin); err != nil {
			return nil, err
		}
	}

	return &cliComponents{
		cfg:      cfg,
		registry: reg,
		builder:  graph.NewBuilder(reg, logger),
		logger:   logger,
	}, nil
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	components, err := setup(cmd)
	if err != nil {
		return err
	}

	pipelineID, _ := cmd.Flags().GetString("pipeline")
	inputPath, _ := cmd.Flags().GetString("input")
	signalID, _ := cmd.Flags().GetString("signal-id")

	pipeline, ok := components.cfg.Pipeline(pipelineID)
	if !ok {
		return fmt.Errorf("unknown pipeline %q", pipelineID)
	}

	raw := map[string]any{}
	if inputPath != "" {
		//nolint:gosec // Input path is supplied by the operator
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return fmt.Errorf("read input file: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parse input file: %w", err)
		}
	}
	if signalID == "" {
		signalID = fmt.Sprintf("cli-%d", os.Getpid())
	}

	g, report, err := components.builder.Build(pipeline)
	if err != nil {
		printReport(report)
		return err
	}
	for _, warning := range report.Warnings {
		components.logger.Warn(warning)
	}

	executor := engine.NewExecutor(engine.Config{
		Registry: components.registry,
		Logger:   components.logger,
	})
	result, err := executor.Run(context.Background(), g,
		domain.NewPipelineState(signalID, raw), components.cfg.ExecutionOptions())
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("run %s finished with status %s", result.ExecutionID, result.Status)
	}
	return nil
}

func validatePipelines(cmd *cobra.Command, _ []string) error {
	components, err := setup(cmd)
	if err != nil {
		return err
	}
	if len(components.cfg.Pipelines) == 0 {
		return fmt.Errorf("no pipelines defined")
	}

	failed := 0
	for _, pipeline := range components.cfg.Pipelines {
		_, report, err := components.builder.Build(pipeline)
		if err != nil {
			failed++
			fmt.Printf("pipeline %s: INVALID\n", pipeline.ID)
		} else {
			fmt.Printf("pipeline %s: ok\n", pipeline.ID)
		}
		printReport(report)
	}
	if failed > 0 {
		return fmt.Errorf("%d pipeline(s) failed validation", failed)
	}
	return nil
}

func showGraph(cmd *cobra.Command, _ []string) error {
	components, err := setup(cmd)
	if err != nil {
		return err
	}

	pipelineID, _ := cmd.Flags().GetString("pipeline")
	pipeline, ok := components.cfg.Pipeline(pipelineID)
	if !ok {
		return fmt.Errorf("unknown pipeline %q", pipelineID)
	}

	g, report, err := components.builder.Build(pipeline)
	if err != nil {
		printReport(report)
		return err
	}

	order, err := graph.TopologicalSort(g)
	if err != nil {
		return err
	}
	levels, err := graph.ExecutionLevels(g)
	if err != nil {
		return err
	}

	fmt.Printf("pipeline: %s\n", g.PipelineID)
	fmt.Printf("order:    %v\n", order)
	for i, level := range levels {
		fmt.Printf("level %d:  %v\n", i, level)
	}
	return nil
}

func printReport(report graph.Report) {
	for _, e := range report.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
