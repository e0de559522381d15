package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"meridian-hq/meridian/pkg/gateway"
)

var statusFlags struct {
	address string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway provider status",
	Long: `Query a running gateway and print the provider rotation status:
which providers are available, which are flagged and until when, and
which provider served the most recent successful request.

Examples:
  # Status of the locally configured gateway
  meridian status

  # Status of a remote gateway
  meridian status --address 10.0.0.5:8080`,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusFlags.address, "address", "a", "", "gateway address (default: config listen address)")
}

func showStatus(cmd *cobra.Command, args []string) error {
	address, err := apiAddress(statusFlags.address)
	if err != nil {
		return err
	}

	var st gateway.Status
	if err := apiGet(address, "/api/status", &st); err != nil {
		return err
	}

	fmt.Printf("Providers: %d total, %d available, %d flagged\n",
		st.TotalProviders, st.AvailableProviders, st.FlaggedProviders)
	if st.CurrentProvider != "" {
		fmt.Printf("Current:   %s\n", st.CurrentProvider)
	}

	if len(st.TopAvailable) > 0 {
		fmt.Println("\nNext in rotation:")
		for i, name := range st.TopAvailable {
			fmt.Printf("  %d. %s\n", i+1, name)
		}
	}

	if len(st.Flagged) > 0 {
		fmt.Println("\nFlagged:")
		for _, f := range st.Flagged {
			fmt.Printf("  %-20s %-22s recovers in %s\n",
				f.Name, f.Reason, time.Until(f.Until).Round(time.Second))
		}
	}
	return nil
}
