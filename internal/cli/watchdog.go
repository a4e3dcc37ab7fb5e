package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/calbera/shepherd/internal/api"
	"github.com/calbera/shepherd/internal/util"
	"github.com/calbera/shepherd/internal/version"
	"github.com/calbera/shepherd/internal/watchdog"
)

var watchdogPort int

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Run the fleet watchdog",
	Long:  "Scans every slot's heartbeat on a fixed cycle, marks stale workers offline, and requeues the tasks they were holding. Optionally serves the ops API.",
	RunE:  runWatchdog,
}

func init() {
	watchdogCmd.Flags().IntVar(&watchdogPort, "port", 0, "ops API port (overrides config; 0 disables)")
}

func runWatchdog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lock := util.NewProcessLock(cfg.WatchdogLockPath(), "watchdog")
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer lock.Release()

	board, heartbeats, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer board.Close()

	logger := newDaemonLogger("watchdog")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port := watchdogPort
	if port == 0 {
		port = cfg.API.Port
	}
	if port > 0 {
		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: (&api.Server{
				Config:     cfg,
				Tasks:      board,
				Heartbeats: heartbeats,
				Logger:     logger,
				Version:    version.Version,
			}).Router(),
		}
		go func() {
			logger.Info("ops API listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops API failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	d := &watchdog.Watchdog{
		Config:     cfg,
		Tasks:      board,
		Heartbeats: heartbeats,
		Logger:     logger,
	}
	return d.Run(ctx)
}
