// Package task defines the shared task board: the Task model, the Store
// contract every shepherd process talks to, and the deterministic selection
// rule workers use to pick their next task.
package task

import (
	"sort"
	"time"
)

// Lane represents a task's pipeline stage.
type Lane string

// Lane constants, in pipeline order.
const (
	LaneQueued      Lane = "queued"
	LaneDevelopment Lane = "development"
	LaneReview      Lane = "review"
	LaneBlocked     Lane = "blocked"
	LaneDone        Lane = "done"
)

// ValidLane reports whether the lane is one of the known pipeline stages.
func ValidLane(l Lane) bool {
	switch l {
	case LaneQueued, LaneDevelopment, LaneReview, LaneBlocked, LaneDone:
		return true
	}
	return false
}

// Terminal reports whether the lane ends a session's useful work. A task in
// a terminal lane no longer has an active session.
func (l Lane) Terminal() bool {
	return l == LaneReview || l == LaneBlocked || l == LaneDone
}

// Priority is an ordinal task priority. P0 outranks P1, and so on.
type Priority string

// Priority constants, highest first.
const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// rank maps a priority to a sortable ordinal; unknown values sort last.
func (p Priority) rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	}
	return 4
}

// HistoryEntry records one lane transition. From is empty for the entry
// written at creation time.
type HistoryEntry struct {
	At   time.Time `json:"at"`
	From Lane      `json:"from,omitempty"`
	To   Lane      `json:"to"`
	Note string    `json:"note,omitempty"`
}

// Task is one unit of work on the board. Tasks are created by the intake
// surface, claimed and completed by workers, and requeued by the watchdog;
// they are never deleted by this layer.
type Task struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Lane               Lane     `json:"lane"`
	Priority           Priority `json:"priority"`
	Owner              string   `json:"owner,omitempty"`
	Problem            string   `json:"problem,omitempty"`
	Scope              string   `json:"scope,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	// TimeoutMinutes overrides the configured session timeout for this task.
	// Zero means use the default; values above the configured ceiling are
	// clamped by the worker.
	TimeoutMinutes int            `json:"timeoutMinutes,omitempty"`
	CrashRecovery  bool           `json:"crashRecovery,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	StatusHistory  []HistoryEntry `json:"statusHistory,omitempty"`
}

// NextFor returns the task the given slot should claim next: queued tasks
// owned by the slot, highest priority first, oldest first among equals, task
// ID as the final tie-break so the choice is deterministic for a given input
// set. Returns nil when nothing is eligible.
func NextFor(tasks []Task, slot string) *Task {
	eligible := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Owner == slot && t.Lane == LaneQueued {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.Slice(eligible, func(i, j int) bool {
		ri, rj := eligible[i].Priority.rank(), eligible[j].Priority.rank()
		if ri != rj {
			return ri < rj
		}
		if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		}
		return eligible[i].ID < eligible[j].ID
	})
	next := eligible[0]
	return &next
}
