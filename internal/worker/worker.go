// Package worker runs one fleet slot: it polls the task board for queued
// work owned by its slot, claims a task, hands it to an agent session, and
// keeps its heartbeat fresh the whole time so the watchdog can tell a busy
// worker from a dead one.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/calbera/shepherd/internal/config"
	"github.com/calbera/shepherd/internal/events"
	"github.com/calbera/shepherd/internal/heartbeat"
	"github.com/calbera/shepherd/internal/session"
	"github.com/calbera/shepherd/internal/task"
)

// Worker is a single slot's daemon.
type Worker struct {
	Slot       string
	Config     *config.Config
	Tasks      task.Store
	Heartbeats heartbeat.Store
	Launcher   session.Launcher
	Logger     *slog.Logger
	// Events is the slot's audit log. Optional.
	Events  *events.Logger
	Version string

	// clock is swappable for tests.
	clock func() time.Time

	// loop state
	startedAt    time.Time
	restartCount int
	backoff      time.Duration
}

// WithClock injects a deterministic clock.
func (w *Worker) WithClock(clock func() time.Time) *Worker {
	w.clock = clock
	return w
}

func (w *Worker) now() time.Time {
	if w.clock != nil {
		return w.clock()
	}
	return time.Now()
}

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Run is the slot's main loop. It blocks until ctx is canceled, then writes
// an offline heartbeat and returns.
func (w *Worker) Run(ctx context.Context) error {
	if !w.Config.HasSlot(w.Slot) {
		return fmt.Errorf("worker: slot %q is not in the configured fleet", w.Slot)
	}
	log := w.logger().With("slot", w.Slot)

	restartCount, err := w.recover(ctx)
	if err != nil {
		return err
	}
	w.restartCount = restartCount
	w.startedAt = w.now()
	w.backoff = w.Config.Timing.PollInterval.Std()

	if err := w.writeIdle(); err != nil {
		return err
	}
	log.Info("worker started", "restartCount", w.restartCount, "pid", os.Getpid())
	if w.Events != nil {
		w.Events.WorkerStarted(w.restartCount)
	}

	hbTicker := time.NewTicker(w.Config.Timing.IdleHeartbeat.Std())
	defer hbTicker.Stop()

	// First poll fires immediately; later polls follow the backoff schedule.
	poll := time.NewTimer(0)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.shutdown()

		case <-hbTicker.C:
			if err := w.writeIdle(); err != nil {
				log.Error("heartbeat write failed", "error", err)
			}

		case <-poll.C:
			found, err := w.pollOnce(ctx)
			switch {
			case err != nil:
				// Store unavailable. Stay alive, keep heartbeating, retry
				// on a growing interval.
				log.Warn("task poll failed", "error", err, "retryIn", w.backoff)
				poll.Reset(w.jittered(w.backoff))
				w.growBackoff()
			case found:
				// A session just ran to completion; look for more work soon.
				w.backoff = w.Config.Timing.PollInterval.Std()
				if err := w.writeIdle(); err != nil {
					log.Error("heartbeat write failed", "error", err)
				}
				poll.Reset(w.jittered(w.backoff))
			default:
				// Queue empty for this slot. The poll succeeded, so the
				// cadence stays at baseline; backoff is for store outages.
				w.backoff = w.Config.Timing.PollInterval.Std()
				poll.Reset(w.jittered(w.backoff))
			}
		}
	}
}

// pollOnce checks the board for the slot's next task and, if one is queued,
// runs it to completion. Returns true when a task was worked.
func (w *Worker) pollOnce(ctx context.Context) (bool, error) {
	tasks, err := w.Tasks.List(ctx)
	if err != nil {
		return false, fmt.Errorf("worker: list tasks: %w", err)
	}
	next := task.NextFor(tasks, w.Slot)
	if next == nil {
		return false, nil
	}
	if err := w.runTask(ctx, *next); err != nil {
		return true, err
	}
	return true, nil
}

// runTask claims a task, runs an agent session over it, and settles the
// task's lane from the session outcome.
//
// Pickup order matters: the heartbeat records the claim before the lane
// changes, so a crash between the two writes leaves a record the watchdog
// and crash recovery can act on. The reverse order would strand the task in
// development with no owner trail.
func (w *Worker) runTask(ctx context.Context, t task.Task) error {
	log := w.logger().With("slot", w.Slot, "task", t.ID)

	timeout := w.sessionTimeout(t)
	sess := session.New(w.Slot, t.ID, w.now(), timeout)

	if err := w.writeWorking(sess, 0); err != nil {
		return err
	}
	if _, err := w.Tasks.Update(ctx, t.ID, task.Patch{
		Lane: task.LanePtr(task.LaneDevelopment),
		Note: fmt.Sprintf("claimed by %s (session %s)", w.Slot, sess.ID),
	}); err != nil {
		// Claim failed; drop back to idle rather than holding a phantom task.
		w.writeIdle()
		return fmt.Errorf("worker: claim task %s: %w", t.ID, err)
	}
	if w.Events != nil {
		w.Events.TaskClaimed(t.ID, sess.ID)
	}

	proc, err := w.Launcher.Launch(ctx, t, sess)
	if err != nil {
		// Spawn failure is not transient from the task's point of view;
		// block it with the reason rather than letting it bounce forever.
		log.Error("agent launch failed, blocking task", "error", err)
		if _, uerr := w.Tasks.Update(ctx, t.ID, task.Patch{
			Lane: task.LanePtr(task.LaneBlocked),
			Note: fmt.Sprintf("agent launch failed: %v", err),
		}); uerr != nil {
			log.Error("could not move task to blocked", "error", uerr)
		}
		w.writeIdle()
		return fmt.Errorf("worker: launch session for %s: %w", t.ID, err)
	}
	sess.PID = proc.PID()
	if err := w.writeWorking(sess, proc.PID()); err != nil {
		log.Error("heartbeat write failed", "error", err)
	}
	log.Info("session started", "session", sess.ID, "sessionPid", proc.PID(), "deadline", sess.Deadline)
	if w.Events != nil {
		w.Events.SessionStarted(t.ID, sess.ID, proc.PID())
	}

	sup := &session.Supervisor{
		Tasks:         w.Tasks,
		Interval:      w.Config.Timing.MonitorInterval.Std(),
		Grace:         w.Config.Timing.TerminateGrace.Std(),
		ShutdownGrace: w.Config.Timing.ShutdownGrace.Std(),
		Logger:        w.logger(),
		Keepalive: func() {
			if err := w.writeWorking(sess, proc.PID()); err != nil {
				log.Error("heartbeat write failed", "error", err)
			}
		},
		KeepaliveInterval: w.Config.Timing.WorkingHeartbeat.Std(),
	}
	if w.clock != nil {
		sup.WithClock(w.clock)
	}

	outcome := sup.Monitor(ctx, sess, proc)
	w.settle(ctx, t.ID, sess, outcome)
	return nil
}

// settle writes the task's final lane for the outcome, then drops the
// heartbeat back to idle.
func (w *Worker) settle(ctx context.Context, taskID string, sess *session.Session, outcome session.Outcome) {
	log := w.logger().With("slot", w.Slot, "task", taskID, "session", sess.ID)

	switch outcome.Result {
	case session.ResultCompleted:
		if !outcome.Lane.Terminal() {
			// Agent exited cleanly without moving the task; finish the move.
			if _, err := w.Tasks.Update(ctx, taskID, task.Patch{
				Lane: task.LanePtr(task.LaneReview),
				Note: fmt.Sprintf("session %s ended cleanly", sess.ID),
			}); err != nil {
				log.Error("could not move completed task to review", "error", err)
			}
		}
		log.Info("session completed", "lane", outcome.Lane)
		if w.Events != nil {
			w.Events.SessionCompleted(taskID, sess.ID, string(outcome.Lane))
		}

	case session.ResultFailed:
		if _, err := w.Tasks.Update(ctx, taskID, task.Patch{
			Lane: task.LanePtr(task.LaneBlocked),
			Note: fmt.Sprintf("session %s failed: %v", sess.ID, outcome.Err),
		}); err != nil {
			log.Error("could not move failed task to blocked", "error", err)
		}
		log.Warn("session failed", "error", outcome.Err)
		if w.Events != nil {
			w.Events.SessionFailed(taskID, sess.ID, fmt.Sprint(outcome.Err))
		}

	case session.ResultTimedOut:
		timeout := sess.Deadline.Sub(sess.StartedAt)
		if _, err := w.Tasks.Update(ctx, taskID, task.Patch{
			Lane: task.LanePtr(task.LaneBlocked),
			Note: fmt.Sprintf("session %s timed out after %s", sess.ID, timeout),
		}); err != nil {
			log.Error("could not move timed-out task to blocked", "error", err)
		}
		log.Warn("session timed out")
		if w.Events != nil {
			w.Events.SessionTimedOut(taskID, sess.ID, timeout)
		}

	case session.ResultCanceled:
		if !outcome.Lane.Terminal() {
			w.requeue(ctx, taskID, fmt.Sprintf("requeued: worker %s shut down mid-session %s", w.Slot, sess.ID), false)
		}
		log.Info("session canceled by shutdown")
	}

	if err := w.writeIdle(); err != nil {
		log.Error("heartbeat write failed", "error", err)
	}
}

// requeue pushes a task back to the queued lane.
func (w *Worker) requeue(ctx context.Context, taskID, note string, crashRecovery bool) {
	patch := task.Patch{Lane: task.LanePtr(task.LaneQueued), Note: note}
	if crashRecovery {
		patch.CrashRecovery = task.BoolPtr(true)
	}
	if _, err := w.Tasks.Update(ctx, taskID, patch); err != nil {
		w.logger().Error("requeue failed", "slot", w.Slot, "task", taskID, "error", err)
		return
	}
	if w.Events != nil {
		w.Events.TaskRequeued(taskID, note)
	}
}

// shutdown marks the slot offline. Called on context cancel, after any
// in-flight session has already been settled.
func (w *Worker) shutdown() error {
	now := w.now()
	hb := heartbeat.WorkerHeartbeat{
		Slot:       w.Slot,
		Status:     heartbeat.StatusOffline,
		LastUpdate: now,
		StartedAt:  w.startedAt,
		Metadata: heartbeat.Metadata{
			PID:           os.Getpid(),
			Version:       w.Version,
			RestartCount:  w.restartCount,
			OfflineReason: heartbeat.ReasonShutdown,
		},
	}
	if err := w.Heartbeats.Write(hb); err != nil {
		return fmt.Errorf("worker: write offline heartbeat: %w", err)
	}
	if w.Events != nil {
		w.Events.WorkerStopped()
	}
	w.logger().Info("worker stopped", "slot", w.Slot)
	return nil
}

func (w *Worker) writeIdle() error {
	now := w.now()
	return w.Heartbeats.Write(heartbeat.WorkerHeartbeat{
		Slot:       w.Slot,
		Status:     heartbeat.StatusIdle,
		LastUpdate: now,
		StartedAt:  w.startedAt,
		Metadata: heartbeat.Metadata{
			PID:          os.Getpid(),
			Version:      w.Version,
			RestartCount: w.restartCount,
		},
	})
}

func (w *Worker) writeWorking(sess *session.Session, sessionPID int) error {
	now := w.now()
	taskStarted := sess.StartedAt
	return w.Heartbeats.Write(heartbeat.WorkerHeartbeat{
		Slot:       w.Slot,
		Status:     heartbeat.StatusWorking,
		Task:       sess.TaskID,
		SessionID:  sess.ID,
		LastUpdate: now,
		StartedAt:  w.startedAt,
		Metadata: heartbeat.Metadata{
			PID:           os.Getpid(),
			Version:       w.Version,
			RestartCount:  w.restartCount,
			SessionPID:    sessionPID,
			TaskStartedAt: &taskStarted,
		},
	})
}

// sessionTimeout resolves the wall-clock deadline for a task's session: the
// task's own override when set, the configured default otherwise, clamped to
// the configured ceiling either way.
func (w *Worker) sessionTimeout(t task.Task) time.Duration {
	timeout := w.Config.Timing.SessionTimeout.Std()
	if t.TimeoutMinutes > 0 {
		timeout = time.Duration(t.TimeoutMinutes) * time.Minute
	}
	if ceiling := w.Config.Timing.SessionTimeoutCeiling.Std(); ceiling > 0 && timeout > ceiling {
		timeout = ceiling
	}
	return timeout
}

// growBackoff doubles the poll interval up to the configured cap.
func (w *Worker) growBackoff() {
	w.backoff *= 2
	if limit := w.Config.Timing.PollBackoffCap.Std(); w.backoff > limit {
		w.backoff = limit
	}
}

// jittered spreads poll timers so a fleet restarted together does not hit
// the board in lockstep. Up to 10% is added.
func (w *Worker) jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/10+1))
}
