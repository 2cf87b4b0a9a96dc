// Package commands implements the natctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nat64io/natd/cmd/natctl/client"
)

var (
	// apiClient is the admin API client, initialized in PersistentPreRunE.
	apiClient *client.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's admin API address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for natctl.
var rootCmd = &cobra.Command{
	Use:   "natctl",
	Short: "CLI client for the natd daemon",
	Long:  "natctl communicates with the natd daemon's admin HTTP API to manage static routes and inspect BIB/session state.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		apiClient = client.New("http://" + serverAddr)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8064",
		"natd admin API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(staticRouteCmd())
	rootCmd.AddCommand(bibCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
