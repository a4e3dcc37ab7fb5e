package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calbera/shepherd/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shepherd %s (commit %s, built %s)\n",
			version.Version, version.CommitSHA, version.BuildDate)
	},
}
