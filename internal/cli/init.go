package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/calbera/shepherd/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize shepherd in the current project",
	Long:  "Creates a .shepherd/ folder with a default config, heartbeat store, task database location, and log directories.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if err := config.Init(cwd); err != nil {
		return err
	}

	fmt.Println("Initialized shepherd in", config.ShepherdDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review .shepherd/config.yaml (slots, agent command, timings)")
	fmt.Println("  2. Add work: shepherd task add --title \"...\" --owner dev-1")
	fmt.Println("  3. Start a worker per slot: shepherd worker --slot dev-1")
	fmt.Println("  4. Start the watchdog: shepherd watchdog")
	return nil
}
