package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"meridian-hq/meridian/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, apply environment overrides and
defaults, and report what the gateway would run with: every provider,
its priority, format, and credential count.

Providers that require authentication but have no keys configured are
dropped at load time and reported here.

Examples:
  # Validate the default config
  meridian validate

  # Validate a specific file
  meridian validate --config /etc/meridian/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Println("✓ Configuration valid")
	fmt.Printf("  listen address: %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  store backend:  %s\n", cfg.Store.Backend)
	fmt.Printf("  key rotation:   %v\n", cfg.Engine.KeyRotation())
	fmt.Printf("  failover:       %v\n", cfg.Engine.ProviderRotation())
	fmt.Println()

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := cfg.Providers[names[i]].Priority, cfg.Providers[names[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})

	fmt.Printf("Providers (%d):\n", len(names))
	for _, name := range names {
		p := cfg.Providers[name]
		state := "enabled"
		if !p.IsEnabled() {
			state = "disabled"
		}
		fmt.Printf("  %-20s priority %-3d %-10s %d keys, %s\n",
			name, p.Priority, p.Format, len(p.ValidKeys()), state)
	}
	return nil
}
