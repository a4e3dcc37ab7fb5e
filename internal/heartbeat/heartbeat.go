// Package heartbeat persists per-slot liveness records. Each slot is the
// sole writer of its own heartbeat during normal operation; the watchdog
// only ever moves heartbeats it has proven stale toward offline.
package heartbeat

import (
	"fmt"
	"time"
)

// Status is a slot's coarse state as seen from the outside.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusOffline Status = "offline"
)

// Offline reasons recorded in metadata.
const (
	ReasonStale    = "stale-heartbeat"
	ReasonShutdown = "shutdown"
)

// Metadata carries process-level details alongside the status fields.
type Metadata struct {
	PID           int        `json:"pid,omitempty"`
	Version       string     `json:"version,omitempty"`
	RestartCount  int        `json:"restartCount"`
	SessionPID    int        `json:"sessionPid,omitempty"`
	TaskStartedAt *time.Time `json:"taskStartedAt,omitempty"`
	OfflineReason string     `json:"offlineReason,omitempty"`
}

// WorkerHeartbeat is one slot's liveness record. Slot is the stable logical
// identity, not a process id — a restarted worker reuses its slot's record.
type WorkerHeartbeat struct {
	Slot       string    `json:"slot"`
	Status     Status    `json:"status"`
	Task       string    `json:"task,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	LastUpdate time.Time `json:"lastUpdate"`
	StartedAt  time.Time `json:"startedAt"`
	Metadata   Metadata  `json:"metadata"`
}

// Validate enforces the structural invariant: working status carries a task
// and a session id, any other status carries neither.
func (h WorkerHeartbeat) Validate() error {
	if h.Slot == "" {
		return fmt.Errorf("heartbeat: slot is required")
	}
	switch h.Status {
	case StatusWorking:
		if h.Task == "" || h.SessionID == "" {
			return fmt.Errorf("heartbeat: slot %s is working without task or session", h.Slot)
		}
	case StatusIdle, StatusOffline:
		if h.Task != "" || h.SessionID != "" {
			return fmt.Errorf("heartbeat: slot %s is %s but still references task %q session %q",
				h.Slot, h.Status, h.Task, h.SessionID)
		}
	default:
		return fmt.Errorf("heartbeat: slot %s has unknown status %q", h.Slot, h.Status)
	}
	return nil
}

// Age returns how long ago the heartbeat was refreshed.
func (h WorkerHeartbeat) Age(now time.Time) time.Duration {
	return now.Sub(h.LastUpdate)
}

// Stale reports whether the heartbeat should be considered dead. Offline
// records are never stale — they are already accounted for.
func (h WorkerHeartbeat) Stale(now time.Time, threshold time.Duration) bool {
	if h.Status == StatusOffline {
		return false
	}
	return h.Age(now) > threshold
}
