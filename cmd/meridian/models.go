package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/telemetry/logging"
)

var modelsFlags struct {
	provider string
	timeout  time.Duration
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Discover models across configured providers",
	Long: `Run a model discovery sweep against the configured providers and
print every model each one advertises. The sweep runs locally from the
config file; it does not need a running gateway.

Examples:
  # Discover models on all providers
  meridian models

  # Only one provider
  meridian models --provider openrouter`,
	RunE: listModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().StringVarP(&modelsFlags.provider, "provider", "p", "", "limit discovery to one provider")
	modelsCmd.Flags().DurationVar(&modelsFlags.timeout, "timeout", time.Minute, "overall discovery timeout")
}

func listModels(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !verbose {
		cfg.Telemetry.Logging.Level = "error"
	}
	if _, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr); err != nil {
		return err
	}

	if modelsFlags.provider != "" {
		kept, ok := cfg.Providers[modelsFlags.provider]
		if !ok {
			return fmt.Errorf("unknown provider %q", modelsFlags.provider)
		}
		cfg.Providers = map[string]config.ProviderConfig{modelsFlags.provider: kept}
	}

	registry, err := gateway.NewRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), modelsFlags.timeout)
	defer cancel()

	entries, err := gateway.DiscoverModels(ctx, registry)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	byProvider := make(map[string][]string)
	for _, e := range entries {
		byProvider[e.Provider] = append(byProvider[e.Provider], e.Model)
	}
	names := make([]string, 0, len(byProvider))
	for name := range byProvider {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		models := byProvider[name]
		fmt.Printf("%s (%d models)\n", name, len(models))
		for _, m := range models {
			fmt.Printf("  %s\n", m)
		}
		fmt.Println()
	}
	fmt.Printf("✓ %d models across %d providers\n", len(entries), len(byProvider))
	return nil
}
