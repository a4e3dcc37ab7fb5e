// Package cli wires the shepherd commands: project init, the worker and
// watchdog daemons, task intake, and fleet status.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/calbera/shepherd/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "shepherd",
	Short:   "Worker fleet orchestrator for AI coding agents",
	Long:    `Shepherd runs a fleet of worker slots that pull tasks off a shared board, hand each one to an agent session, and prove they are alive through heartbeats. A separate watchdog cleans up after workers that die.`,
	Version: version.Version,
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(watchdogCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
