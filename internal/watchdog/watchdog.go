// Package watchdog is the fleet's external liveness check. It runs in its
// own process, reads every slot's heartbeat on a fixed cycle, and demotes
// slots whose heartbeat has gone stale: the record flips to offline and any
// task the dead worker was holding goes back on the queue.
//
// The watchdog only moves state toward offline. It never restarts workers
// and never signals processes; killing things is the workers' own business.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/calbera/shepherd/internal/config"
	"github.com/calbera/shepherd/internal/events"
	"github.com/calbera/shepherd/internal/heartbeat"
	"github.com/calbera/shepherd/internal/task"
)

// Watchdog scans heartbeats and cleans up after dead workers.
type Watchdog struct {
	Config     *config.Config
	Tasks      task.Store
	Heartbeats heartbeat.Store
	Logger     *slog.Logger

	// clock is swappable for tests.
	clock func() time.Time
}

// WithClock injects a deterministic clock.
func (d *Watchdog) WithClock(clock func() time.Time) *Watchdog {
	d.clock = clock
	return d
}

func (d *Watchdog) now() time.Time {
	if d.clock != nil {
		return d.clock()
	}
	return time.Now()
}

func (d *Watchdog) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Run sweeps immediately, then on every watchdog interval until ctx is
// canceled.
func (d *Watchdog) Run(ctx context.Context) error {
	log := d.logger()
	log.Info("watchdog started",
		"interval", d.Config.Timing.WatchdogInterval.Std(),
		"staleThreshold", d.Config.Timing.StaleThreshold.Std())

	ticker := time.NewTicker(d.Config.Timing.WatchdogInterval.Std())
	defer ticker.Stop()

	for {
		if demoted, err := d.Sweep(ctx); err != nil {
			log.Error("sweep failed", "error", err)
		} else if demoted > 0 {
			log.Info("sweep demoted stale workers", "count", demoted)
		}

		select {
		case <-ctx.Done():
			log.Info("watchdog stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs one scan over all heartbeats and returns how many slots it
// demoted to offline.
func (d *Watchdog) Sweep(ctx context.Context) (int, error) {
	all, err := d.Heartbeats.List()
	if err != nil {
		return 0, fmt.Errorf("watchdog: list heartbeats: %w", err)
	}

	now := d.now()
	threshold := d.Config.Timing.StaleThreshold.Std()
	demoted := 0

	for _, hb := range all {
		if !hb.Stale(now, threshold) {
			continue
		}
		if err := d.demote(ctx, hb, now); err != nil {
			d.logger().Error("demote failed", "slot", hb.Slot, "error", err)
			continue
		}
		demoted++
	}
	return demoted, nil
}

// demote flips a stale slot to offline and requeues the task it was
// holding, if any.
func (d *Watchdog) demote(ctx context.Context, hb heartbeat.WorkerHeartbeat, now time.Time) error {
	log := d.logger().With("slot", hb.Slot, "lastUpdate", hb.LastUpdate, "age", hb.Age(now))
	log.Warn("heartbeat stale, marking worker offline", "wasStatus", hb.Status)

	if hb.Status == heartbeat.StatusWorking {
		if err := d.requeueOrphan(ctx, hb); err != nil {
			return err
		}
	}

	offline := hb
	offline.Status = heartbeat.StatusOffline
	offline.Task = ""
	offline.SessionID = ""
	offline.LastUpdate = now
	offline.Metadata.SessionPID = 0
	offline.Metadata.TaskStartedAt = nil
	offline.Metadata.OfflineReason = heartbeat.ReasonStale
	if err := d.Heartbeats.Write(offline); err != nil {
		return fmt.Errorf("watchdog: write offline heartbeat for %s: %w", hb.Slot, err)
	}
	events.NewLogger(d.Config.SlotLogDir(hb.Slot), hb.Slot).WorkerDemoted(hb.Age(now))
	return nil
}

// requeueOrphan puts a dead worker's task back on the queue. A task the
// agent already moved to a terminal lane stays where it is.
func (d *Watchdog) requeueOrphan(ctx context.Context, hb heartbeat.WorkerHeartbeat) error {
	t, err := d.Tasks.Get(ctx, hb.Task)
	if errors.Is(err, task.ErrNotFound) {
		d.logger().Warn("orphaned task no longer on the board", "slot", hb.Slot, "task", hb.Task)
		return nil
	}
	if err != nil {
		return fmt.Errorf("watchdog: read orphaned task %s: %w", hb.Task, err)
	}
	if t.Lane.Terminal() {
		return nil
	}

	if _, err := d.Tasks.Update(ctx, hb.Task, task.Patch{
		Lane:          task.LanePtr(task.LaneQueued),
		CrashRecovery: task.BoolPtr(true),
		Note:          fmt.Sprintf("requeued: stale heartbeat from %s (abandoned session %s)", hb.Slot, hb.SessionID),
	}); err != nil {
		return fmt.Errorf("watchdog: requeue orphaned task %s: %w", hb.Task, err)
	}
	d.logger().Info("requeued orphaned task", "slot", hb.Slot, "task", hb.Task)
	return nil
}
