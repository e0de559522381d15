package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/modelcache"
	"meridian-hq/meridian/pkg/providers"
	"meridian-hq/meridian/pkg/telemetry/logging"
)

var testFlags struct {
	message string
	timeout time.Duration
}

var testCmd = &cobra.Command{
	Use:   "test [provider]",
	Short: "Send a test message through the gateway",
	Long: `Send a test message through the rotation engine and print the reply.

Without arguments the message goes through the full candidate rotation,
exactly as a completion request would. Naming a provider sends the
message to that provider directly, bypassing rotation.

Examples:
  # Test the full rotation
  meridian test

  # Test one provider directly
  meridian test openrouter

  # Custom test message
  meridian test openrouter --message "What model are you?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProviderTest,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVarP(&testFlags.message, "message", "m", "", "test message to send")
	testCmd.Flags().DurationVar(&testFlags.timeout, "timeout", 2*time.Minute, "overall test timeout")
}

func runProviderTest(cmd *cobra.Command, args []string) error {
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

	registry, err := gateway.NewRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}
	engine := gateway.NewEngine(registry, modelcache.New(), nil)

	ctx, cancel := context.WithTimeout(cmd.Context(), testFlags.timeout)
	defer cancel()

	var outcome providers.Outcome
	if len(args) == 1 {
		fmt.Printf("Testing provider %q...\n", args[0])
		outcome = engine.TestProvider(ctx, args[0], testFlags.message)
	} else {
		fmt.Printf("Testing rotation across %d providers...\n", len(registry.Candidates()))
		message := testFlags.message
		if message == "" {
			message = "Hello! Reply with a short greeting."
		}
		outcome = engine.Complete(ctx, []providers.Message{
			{Role: providers.RoleUser, Content: message},
		}, gateway.CompleteOptions{})
	}

	if !outcome.Success {
		fmt.Printf("✗ Failed (%s): %s\n", outcome.ErrorKind, outcome.ErrorMessage)
		os.Exit(1)
	}

	fmt.Printf("✓ Success via %s (model %s, %s)\n",
		outcome.ProviderUsed, outcome.ModelUsed, outcome.ResponseTime.Round(time.Millisecond))
	fmt.Println()
	fmt.Println(outcome.Content)
	return nil
}
