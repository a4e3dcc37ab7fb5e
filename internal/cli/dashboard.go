package cli

import (
	"github.com/spf13/cobra"

	"github.com/calbera/shepherd/internal/tui"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the live fleet dashboard",
	RunE:  runDashboard,
}

func runDashboard(cmd *cobra.Command, args []string) error {
	return RunDashboard()
}

// RunDashboard opens the TUI. Exposed so a bare "shepherd" invocation can
// land here directly.
func RunDashboard() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	board, heartbeats, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer board.Close()

	return tui.Run(cfg, board, heartbeats)
}
