package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/calbera/shepherd/internal/heartbeat"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every slot's heartbeat",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	heartbeats := heartbeat.NewFileStore(cfg.HeartbeatsDir())
	all, err := heartbeats.List()
	if err != nil {
		return fmt.Errorf("failed to list heartbeats: %w", err)
	}

	now := time.Now()
	threshold := cfg.Timing.StaleThreshold.Std()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tSTATUS\tTASK\tLAST BEAT\tRESTARTS")

	for _, slot := range cfg.Slots {
		hb, ok := all[slot]
		if !ok {
			fmt.Fprintf(w, "%s\t%s\t\t\t\n", slot, "never started")
			continue
		}

		status := string(hb.Status)
		if hb.Stale(now, threshold) {
			status += " (stale)"
		} else if hb.Status == heartbeat.StatusOffline && hb.Metadata.OfflineReason != "" {
			status += " (" + hb.Metadata.OfflineReason + ")"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			slot,
			status,
			hb.Task,
			formatAge(hb.LastUpdate),
			hb.Metadata.RestartCount,
		)
	}

	return w.Flush()
}
