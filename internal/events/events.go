// Package events appends fleet lifecycle events to per-slot JSON Lines
// files. The log is an audit trail: every pickup, completion, requeue, and
// demotion lands here with enough context to reconstruct what a slot did.
package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const logFileName = "events.log"

// Event type constants.
const (
	EventWorkerStarted    = "worker_started"
	EventWorkerStopped    = "worker_stopped"
	EventTaskClaimed      = "task_claimed"
	EventSessionStarted   = "session_started"
	EventSessionCompleted = "session_completed"
	EventSessionFailed    = "session_failed"
	EventSessionTimedOut  = "session_timed_out"
	EventTaskRequeued     = "task_requeued"
	EventWorkerDemoted    = "worker_demoted"
)

// Event is a single log entry.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Slot      string         `json:"slot"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger writes events for one slot to a JSON Lines file.
type Logger struct {
	slot string
	path string
}

// NewLogger creates an event logger writing into the given directory.
func NewLogger(dir, slot string) *Logger {
	return &Logger{
		slot: slot,
		path: filepath.Join(dir, logFileName),
	}
}

// Log appends one event to the log file.
func (l *Logger) Log(event string, data map[string]any) error {
	entry := Event{
		Timestamp: time.Now(),
		Slot:      l.slot,
		Event:     event,
		Data:      data,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	jsonBytes = append(jsonBytes, '\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(jsonBytes)
	return err
}

// WorkerStarted logs a worker_started event.
func (l *Logger) WorkerStarted(restartCount int) error {
	return l.Log(EventWorkerStarted, map[string]any{
		"pid":           os.Getpid(),
		"restart_count": restartCount,
	})
}

// WorkerStopped logs a worker_stopped event.
func (l *Logger) WorkerStopped() error {
	return l.Log(EventWorkerStopped, nil)
}

// TaskClaimed logs a task_claimed event.
func (l *Logger) TaskClaimed(taskID, sessionID string) error {
	return l.Log(EventTaskClaimed, map[string]any{
		"task_id":    taskID,
		"session_id": sessionID,
	})
}

// SessionStarted logs a session_started event.
func (l *Logger) SessionStarted(taskID, sessionID string, sessionPID int) error {
	return l.Log(EventSessionStarted, map[string]any{
		"task_id":     taskID,
		"session_id":  sessionID,
		"session_pid": sessionPID,
	})
}

// SessionCompleted logs a session_completed event.
func (l *Logger) SessionCompleted(taskID, sessionID, lane string) error {
	return l.Log(EventSessionCompleted, map[string]any{
		"task_id":    taskID,
		"session_id": sessionID,
		"lane":       lane,
	})
}

// SessionFailed logs a session_failed event.
func (l *Logger) SessionFailed(taskID, sessionID string, reason string) error {
	return l.Log(EventSessionFailed, map[string]any{
		"task_id":    taskID,
		"session_id": sessionID,
		"reason":     reason,
	})
}

// SessionTimedOut logs a session_timed_out event.
func (l *Logger) SessionTimedOut(taskID, sessionID string, timeout time.Duration) error {
	return l.Log(EventSessionTimedOut, map[string]any{
		"task_id":    taskID,
		"session_id": sessionID,
		"timeout_ms": timeout.Milliseconds(),
	})
}

// TaskRequeued logs a task_requeued event.
func (l *Logger) TaskRequeued(taskID, reason string) error {
	return l.Log(EventTaskRequeued, map[string]any{
		"task_id": taskID,
		"reason":  reason,
	})
}

// WorkerDemoted logs a worker_demoted event (written by the watchdog).
func (l *Logger) WorkerDemoted(age time.Duration) error {
	return l.Log(EventWorkerDemoted, map[string]any{
		"heartbeat_age_ms": age.Milliseconds(),
	})
}
