// Package session spawns and supervises agent sessions. A session is one
// long-running agent process working a single task; the supervisor watches
// the process, the task's lane, and a wall-clock deadline, and reports a
// single outcome when the session ends.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/calbera/shepherd/internal/task"
)

// Session is the handle a worker holds while an agent process runs.
type Session struct {
	ID        string    `json:"sessionId"`
	TaskID    string    `json:"taskId"`
	Slot      string    `json:"slot"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
	Deadline  time.Time `json:"deadline"`
}

// New builds a session handle with a fresh ID. The deadline is absolute:
// Monitor terminates the process once the wall clock passes it, no matter
// how busy the agent looks.
func New(slot, taskID string, startedAt time.Time, timeout time.Duration) *Session {
	return &Session{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Slot:      slot,
		StartedAt: startedAt,
		Deadline:  startedAt.Add(timeout),
	}
}

// Result classifies how a session ended.
type Result string

const (
	// ResultCompleted means the task reached a terminal lane, or the agent
	// exited cleanly. The worker finishes the lane move if the agent did not.
	ResultCompleted Result = "completed"
	// ResultFailed means the agent exited non-zero before the task reached a
	// terminal lane.
	ResultFailed Result = "failed"
	// ResultTimedOut means the session hit its deadline and was terminated.
	ResultTimedOut Result = "timed-out"
	// ResultCanceled means the worker was shut down while the session ran.
	ResultCanceled Result = "canceled"
)

// Outcome is the supervisor's verdict on a finished session.
type Outcome struct {
	Result Result
	// Lane is the task's lane at the moment the session ended. Zero when the
	// task could not be read.
	Lane task.Lane
	// Err carries the process exit error for failed sessions.
	Err error
}
