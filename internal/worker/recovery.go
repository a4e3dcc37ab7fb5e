package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/calbera/shepherd/internal/heartbeat"
	"github.com/calbera/shepherd/internal/session"
	"github.com/calbera/shepherd/internal/task"
)

// recover repairs state left behind by a previous run of this slot. If the
// last heartbeat says the slot was mid-task, the previous process died
// without settling: the leftover agent session is killed, the task goes back
// to queued flagged for crash recovery, and the restart count goes up.
// Returns the restart count the new run should carry.
func (w *Worker) recover(ctx context.Context) (int, error) {
	prev, err := w.Heartbeats.Read(w.Slot)
	if errors.Is(err, heartbeat.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("worker: read previous heartbeat: %w", err)
	}

	if prev.Status != heartbeat.StatusWorking {
		// Clean shutdown or idle crash; nothing to repair.
		return prev.Metadata.RestartCount, nil
	}

	log := w.logger().With("slot", w.Slot, "task", prev.Task, "abandonedSession", prev.SessionID)
	log.Warn("previous run died mid-task, recovering")

	if pid := prev.Metadata.SessionPID; session.ProcessAlive(pid) {
		log.Warn("killing leftover agent process", "sessionPid", pid)
		if err := session.KillPID(pid); err != nil {
			log.Error("could not kill leftover agent process", "error", err)
		}
	}

	if err := w.requeueAbandoned(ctx, prev); err != nil {
		return 0, err
	}

	return prev.Metadata.RestartCount + 1, nil
}

// requeueAbandoned puts the orphaned task back on the queue. A task that
// already reached a terminal lane stays put: the agent finished even though
// the worker did not live to see it.
func (w *Worker) requeueAbandoned(ctx context.Context, prev heartbeat.WorkerHeartbeat) error {
	t, err := w.Tasks.Get(ctx, prev.Task)
	if errors.Is(err, task.ErrNotFound) {
		w.logger().Warn("abandoned task no longer on the board", "slot", w.Slot, "task", prev.Task)
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker: read abandoned task %s: %w", prev.Task, err)
	}
	if t.Lane.Terminal() {
		return nil
	}

	if _, err := w.Tasks.Update(ctx, prev.Task, task.Patch{
		Lane:          task.LanePtr(task.LaneQueued),
		CrashRecovery: task.BoolPtr(true),
		Note:          fmt.Sprintf("requeued after %s crashed (abandoned session %s)", w.Slot, prev.SessionID),
	}); err != nil {
		return fmt.Errorf("worker: requeue abandoned task %s: %w", prev.Task, err)
	}
	return nil
}
