// Package main is the entry point for the sigflow-core binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sigflowai/sigflow-oss/pkg/config"
	"github.com/sigflowai/sigflow-oss/pkg/engine"
	"github.com/sigflowai/sigflow-oss/pkg/logging"
	"github.com/sigflowai/sigflow-oss/pkg/policy"
	"github.com/sigflowai/sigflow-oss/pkg/registry"
	"github.com/sigflowai/sigflow-oss/pkg/storage"
	"github.com/sigflowai/sigflow-oss/pkg/telemetry"
)

const (
	defaultConfigPath = "config.yaml"
	defaultListenAddr = ":8090"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listenAddr := flag.String("listen", "", "Address to listen on (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	prettyLogs := flag.Bool("pretty", false, "Enable pretty console logging")
	flag.Parse()

	bootCfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	level := bootCfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger := logging.NewLogger(logging.Config{
		Level:  level,
		Pretty: *prettyLogs || bootCfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	logger.Info("Starting sigflow-core", "config", *configPath)

	cfgProvider, err := config.NewFileConfigProvider(*configPath, logger)
	if err != nil {
		logger.Error("Failed to initialize config provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cfgProvider.Close(); err != nil {
			logger.Error("Failed to close config provider", "error", err)
		}
	}()

	ctx := context.Background()

	if endpoint := bootCfg.Telemetry.OTLPEndpoint; endpoint != "" {
		shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
			ServiceName: "sigflow-core",
			Endpoint:    endpoint,
			Environment: bootCfg.Telemetry.Environment,
			Insecure:    bootCfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Error("Failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("Telemetry shutdown error", "error", err)
			}
		}()
	}

	pluginRegistry := registry.New()
	if err := registerBuiltins(ctx, pluginRegistry, bootCfg, logger); err != nil {
		logger.Error("Failed to register plugins", "error", err)
		os.Exit(1)
	}

	executor := engine.NewExecutor(engine.Config{
		Registry: pluginRegistry,
		Logger:   logger,
	})
	runStore := storage.NewMemoryRunStore(0)
	serverMetrics := telemetry.NewServerMetrics()

	srv := newServer(serverConfig{
		provider: cfgProvider,
		registry: pluginRegistry,
		executor: executor,
		store:    runStore,
		metrics:  serverMetrics,
		logger:   logger,
	})

	go watchConfig(cfgProvider, serverMetrics, logger)

	addr := bootCfg.Server.ListenAddress
	if *listenAddr != "" {
		addr = *listenAddr
	}
	if addr == "" {
		addr = defaultListenAddr
	}
	httpServer := srv.start(addr)

	waitForShutdown(httpServer, logger)
}

// registerBuiltins wires the built-in plugin set. The admission gate is only
// registered when a policy module directory is configured.
func registerBuiltins(ctx context.Context, reg *registry.Registry, cfg *config.Config, logger *slog.Logger) error {
	plugins := builtinPlugins()

	if cfg.Policy.ModuleDir != "" {
		modules, err := loadRegoModules(cfg.Policy.ModuleDir)
		if err != nil {
			return err
		}
		policyEngine, err := policy.NewEngine(ctx, policy.EngineOptions{
			Entrypoint:      cfg.Policy.Entrypoint,
			Modules:         modules,
			CacheMaxEntries: cfg.Policy.CacheMaxEntries,
		})
		if err != nil {
			return err
		}
		plugins = append(plugins, newGatePlugin(policyEngine))
		logger.Info("Admission gate enabled", "modules", len(modules))
	}

	for _, plugin := range plugins {
		if err := reg.Register(plugin); err != nil {
			return err
		}
		logger.Debug("Plugin registered", "plugin_id", plugin.ID(), "category", string(plugin.Category()))
	}
	return nil
}

// loadRegoModules reads every .rego file in dir, keyed by filename.
func loadRegoModules(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		//nolint:gosec // Module directory is controlled by the operator
		src, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(src)
	}
	return modules, nil
}

func watchConfig(provider *config.FileConfigProvider, metrics *telemetry.ServerMetrics, logger *slog.Logger) {
	updates := provider.Subscribe()
	var lastGeneration int64
	for snapshot := range updates {
		if snapshot.Generation == lastGeneration {
			continue
		}
		lastGeneration = snapshot.Generation
		metrics.ConfigReload(true)
		logger.Info("Configuration update received",
			"generation", snapshot.Generation,
			"pipelines", len(snapshot.Config.Pipelines))
		for _, pipeline := range snapshot.Config.Pipelines {
			logger.Info("Pipeline active", "id", pipeline.ID, "nodes", len(pipeline.Nodes))
		}
	}
}

func waitForShutdown(server interface {
	Shutdown(ctx context.Context) error
}, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
}
