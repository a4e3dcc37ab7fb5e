package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calbera/shepherd/internal/events"
	"github.com/calbera/shepherd/internal/session"
	"github.com/calbera/shepherd/internal/util"
	"github.com/calbera/shepherd/internal/version"
	"github.com/calbera/shepherd/internal/worker"
)

var workerSlot string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run one worker slot",
	Long:  "Runs the daemon for a single slot: polls the board for queued tasks owned by the slot, runs agent sessions over them, and heartbeats the whole time. Stop with SIGINT or SIGTERM for a clean shutdown.",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerSlot, "slot", "", "slot name to run (required)")
	workerCmd.MarkFlagRequired("slot")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// One worker per slot, enforced with a PID lock.
	lock := util.NewProcessLock(cfg.WorkerLockPath(workerSlot), "worker "+workerSlot)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	board, heartbeats, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer board.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := &worker.Worker{
		Slot:       workerSlot,
		Config:     cfg,
		Tasks:      board,
		Heartbeats: heartbeats,
		Launcher: &session.AgentLauncher{
			Command: cfg.Agent.Command,
			Args:    cfg.Agent.Args,
			LogDir:  cfg.SlotLogDir(workerSlot),
		},
		Logger:  newDaemonLogger("worker"),
		Events:  events.NewLogger(cfg.SlotLogDir(workerSlot), workerSlot),
		Version: version.Version,
	}
	return w.Run(ctx)
}
