package task

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a task ID does not exist in the store.
var ErrNotFound = errors.New("task: not found")

// Patch describes a partial task update. Nil pointer fields are left
// unchanged. When Lane is set and actually differs from the stored lane, the
// store appends exactly one history entry carrying Note.
type Patch struct {
	Lane          *Lane
	Owner         *string
	CrashRecovery *bool
	Note          string
}

// Store is the task board contract. Implementations must be safe for
// concurrent use across processes: worker slots and the watchdog mutate
// tasks independently, last writer wins at single-task granularity.
type Store interface {
	List(ctx context.Context) ([]Task, error)
	Get(ctx context.Context, id string) (Task, error)
	Create(ctx context.Context, t Task) (Task, error)
	Update(ctx context.Context, id string, p Patch) (Task, error)
}

// LanePtr is a convenience helper for building patches.
func LanePtr(l Lane) *Lane { return &l }

// StringPtr is a convenience helper for building patches.
func StringPtr(s string) *string { return &s }

// BoolPtr is a convenience helper for building patches.
func BoolPtr(b bool) *bool { return &b }
