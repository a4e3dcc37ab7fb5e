package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/calbera/shepherd/internal/task"
)

// Supervisor watches one running session until it ends. Process exit alone
// does not finish a session: the agent signals completion by moving the task
// to a terminal lane, which the supervisor observes by polling the board.
type Supervisor struct {
	// Tasks is the board the agent writes its lane moves to.
	Tasks task.Store
	// Interval is the lane-poll cadence.
	Interval time.Duration
	// Grace is how long a terminated process gets between SIGTERM and SIGKILL.
	Grace time.Duration
	// ShutdownGrace, when set, replaces Grace for termination caused by ctx
	// cancellation, giving the agent longer to wind down on worker shutdown.
	ShutdownGrace time.Duration
	// Keepalive, when set, is called on its own cadence while the session is
	// alive. Workers use it to refresh their heartbeat at the working cadence.
	Keepalive func()
	// KeepaliveInterval is the Keepalive cadence. The watchdog's staleness
	// threshold is validated against this cadence, so it must not silently
	// stretch with the lane-poll interval; zero falls back to Interval.
	KeepaliveInterval time.Duration
	// Logger is optional.
	Logger *slog.Logger

	// clock is swappable for tests.
	clock func() time.Time
}

// WithClock injects a deterministic clock.
func (s *Supervisor) WithClock(clock func() time.Time) *Supervisor {
	s.clock = clock
	return s
}

func (s *Supervisor) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Monitor blocks until the session ends and returns its outcome.
//
// The session ends when:
//   - the task reaches a terminal lane (the process, if still running, is
//     terminated and the outcome is completed),
//   - the process exits (clean exit is completed, non-zero exit before a
//     terminal lane is failed),
//   - the deadline passes (the process is terminated, outcome timed-out), or
//   - ctx is canceled (the process is terminated, outcome canceled).
func (s *Supervisor) Monitor(ctx context.Context, sess *Session, proc Proc) Outcome {
	log := s.logger().With("slot", sess.Slot, "task", sess.TaskID, "session", sess.ID)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	keepaliveEvery := s.KeepaliveInterval
	if keepaliveEvery <= 0 {
		keepaliveEvery = s.Interval
	}
	keepalive := time.NewTicker(keepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("session canceled, terminating agent")
			proc.Terminate(s.shutdownGrace())
			return Outcome{Result: ResultCanceled, Lane: s.currentLane(sess.TaskID)}

		case <-proc.Done():
			lane := s.currentLane(sess.TaskID)
			if exitErr := proc.ExitErr(); exitErr != nil && !lane.Terminal() {
				log.Warn("agent exited with error before finishing", "error", exitErr, "lane", lane)
				return Outcome{Result: ResultFailed, Lane: lane, Err: exitErr}
			}
			log.Info("agent exited", "lane", lane)
			return Outcome{Result: ResultCompleted, Lane: lane}

		case <-keepalive.C:
			if s.Keepalive != nil {
				s.Keepalive()
			}

		case <-ticker.C:
			if s.now().After(sess.Deadline) {
				log.Warn("session deadline passed, terminating agent")
				proc.Terminate(s.Grace)
				return Outcome{Result: ResultTimedOut, Lane: s.currentLane(sess.TaskID)}
			}
			lane := s.currentLane(sess.TaskID)
			if lane.Terminal() {
				log.Info("task reached terminal lane, ending session", "lane", lane)
				proc.Terminate(s.Grace)
				return Outcome{Result: ResultCompleted, Lane: lane}
			}
		}
	}
}

func (s *Supervisor) shutdownGrace() time.Duration {
	if s.ShutdownGrace > 0 {
		return s.ShutdownGrace
	}
	return s.Grace
}

// currentLane reads the task's lane, tolerating transient store errors; the
// next tick retries.
func (s *Supervisor) currentLane(taskID string) task.Lane {
	t, err := s.Tasks.Get(context.Background(), taskID)
	if err != nil {
		return ""
	}
	return t.Lane
}
