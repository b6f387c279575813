package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "episim",
		Short: "Agent-based epidemic simulation with population rescaling",
		Long: `episim runs agent-based epidemic simulations.

It simulates a population through susceptible, exposed, infectious,
symptomatic, severe, critical, recovered and dead states over contact
layers, with testing, tracing and quarantine interventions. Large
populations can be approximated by simulating a smaller one and rescaling
it dynamically as the epidemic grows. Runs and comparisons are kept in a
local history.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.episim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug, trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newMultiRunCmd(),
		newCompareCmd(),
		newHistoryCmd(),
		newShowCmd(),
		newExportCmd(),
		newDeleteCmd(),
		newChannelsCmd(),
		newBackupCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}
