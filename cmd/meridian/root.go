package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Meridian - multi-provider LLM gateway with key rotation and failover",
	Long: `Meridian is an LLM request gateway that routes OpenAI-compatible
completion requests across a prioritized pool of upstream providers.

Each provider carries up to three API keys balanced by a weighted load
score. Upstream failures are classified and remediated automatically:
rate-limited keys rotate, exhausted providers are flagged with a
cooldown, and requests fail over to the next candidate.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
