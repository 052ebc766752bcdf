package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mscrnt/candecode/internal/version"
)

var (
	// Build variables set by ldflags
	buildVersion string
	buildCommit  string
	buildTime    string

	// Global flags
	configPath string
	dbPath     string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candecode",
		Short: "CAN trace decoder",
		Long: `candecode decodes CAN bus trace logs (.trc) against a DBC signal database
into timestamped physical values, plots them and exports CSV.`,
		Version:       version.GetVersion(buildVersion, buildCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./candecode.toml if present)")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Run database path (overrides config)")

	cmd.AddCommand(versionCmd())
	cmd.AddCommand(decodeCmd())
	cmd.AddCommand(plotCmd())
	cmd.AddCommand(signalsCmd())
	cmd.AddCommand(runsCmd())
	cmd.AddCommand(reportCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(certCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetDetailedVersion(buildVersion, buildCommit, buildTime))
		},
	}
}
