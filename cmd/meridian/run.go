package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/modelcache"
	"meridian-hq/meridian/pkg/server"
	"meridian-hq/meridian/pkg/store"
	"meridian-hq/meridian/pkg/telemetry/logging"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

// temporaryChatMaxAge is how long unsaved transcripts are kept before
// the hourly sweep removes them.
const temporaryChatMaxAge = 24 * time.Hour

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Meridian gateway",
	Long: `Start the Meridian gateway with the specified configuration.

The gateway listens on the configured address and routes completion
requests across the configured providers, rotating keys and failing
over automatically. Model discovery runs in the background and the
configuration file is watched for provider changes.

Examples:
  # Start with default config
  meridian run

  # Start with custom config
  meridian run --config /etc/meridian/config.yaml

  # Override listen address
  meridian run --listen 0.0.0.0:8080

  # Validate config without starting the gateway
  meridian run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		fmt.Printf("  providers: %d\n", len(cfg.Providers))
		return nil
	}

	fmt.Printf("Meridian v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	registry, err := gateway.NewRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}
	fmt.Printf("✓ Providers initialized (%d providers)\n", len(registry.Candidates()))

	cache := modelcache.New()
	if cfg.ModelCache.SnapshotPath != "" && cache.LoadSnapshot(cfg.ModelCache.SnapshotPath) {
		fmt.Printf("✓ Model cache restored (%d models)\n", len(cache.Models()))
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.IsEnabled() {
		collector = metrics.NewCollector(cfg.Telemetry.Metrics, nil)
	}

	engine := gateway.NewEngine(registry, cache, collector)

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open chat store: %w", err)
	}
	defer st.Close()
	fmt.Printf("✓ Chat store initialized (%s)\n", cfg.Store.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background model discovery keeps the cache fresh.
	refresher := modelcache.NewRefresher(cache, func(ctx context.Context) ([]modelcache.Entry, error) {
		return gateway.DiscoverModels(ctx, registry)
	}, cfg.ModelCache.RefreshInterval, cfg.ModelCache.SnapshotPath)
	if err := refresher.Start(ctx); err != nil {
		logger.Warn("model discovery disabled", "error", err)
	} else {
		defer refresher.Stop()
	}

	// Watch the config file and apply provider changes without a restart.
	watcher, err := config.NewWatcher(cfgFile, func(next *config.Config) {
		if err := registry.ApplyConfig(next); err != nil {
			logger.Error("config reload failed", "error", err)
		}
	})
	if err != nil {
		logger.Warn("config watching disabled", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watching disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	// Hourly sweep of expired temporary transcripts.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := st.CleanupTemporary(ctx, temporaryChatMaxAge)
				if err != nil {
					logger.Warn("temporary chat cleanup failed", "error", err)
				} else if removed > 0 {
					logger.Info("temporary chats removed", "count", removed)
				}
			}
		}
	}()

	srv := server.New(cfg.Server, engine, cache, st, collector)

	fmt.Println()
	fmt.Printf("✓ Gateway listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if collector != nil {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway error: %w", err)
	}
	fmt.Println("✓ Gateway stopped")
	return nil
}
