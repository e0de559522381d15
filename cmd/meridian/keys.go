package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"meridian-hq/meridian/pkg/gateway"
)

var keysFlags struct {
	address string
}

var keysCmd = &cobra.Command{
	Use:   "keys <provider>",
	Short: "Show per-key usage for a provider",
	Long: `Query a running gateway and print the credential usage report for
one provider: requests in the current window, success rates, load
weights, and which key the rotation currently points at.

Key material is never shown; slots are identified by index.

Examples:
  # Key report for a provider
  meridian keys openrouter

  # Against a remote gateway
  meridian keys openrouter --address 10.0.0.5:8080`,
	Args: cobra.ExactArgs(1),
	RunE: showKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.Flags().StringVarP(&keysFlags.address, "address", "a", "", "gateway address (default: config listen address)")
}

func showKeys(cmd *cobra.Command, args []string) error {
	address, err := apiAddress(keysFlags.address)
	if err != nil {
		return err
	}

	var report gateway.KeyReport
	if err := apiGet(address, "/api/providers/"+args[0]+"/keys", &report); err != nil {
		return err
	}

	fmt.Printf("Provider: %s (%d keys)\n\n", report.Provider, len(report.Credentials))
	fmt.Printf("%-5s %-8s %-10s %-9s %-8s %-8s %-12s %s\n",
		"slot", "reqs", "success", "last_min", "weight", "limited", "last_used", "")
	for _, c := range report.Credentials {
		lastUsed := "never"
		if !c.LastUsed.IsZero() {
			lastUsed = time.Since(c.LastUsed).Round(time.Second).String() + " ago"
		}
		marker := ""
		if c.Index == report.Current {
			marker = "<- current"
		}
		fmt.Printf("%-5d %-8d %-10.0f%% %-8d %-8.2f %-8v %-12s %s\n",
			c.Index, c.Requests, c.SuccessRate*100, c.RequestsThisMinute,
			c.Weight, c.RateLimited, lastUsed, marker)
	}
	return nil
}
