package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and by components that
// only need an ephemeral board. It applies the same lane/history rules as
// the SQLite store.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]Task
	clock func() time.Time

	// FailList simulates an unavailable backing store: while set, List
	// returns this error so callers' backoff paths can be exercised.
	FailList error
}

// NewMemoryStore creates an empty in-memory task board.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]Task), clock: time.Now}
}

// WithClock injects a deterministic clock.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// List returns a copy of every task.
func (s *MemoryStore) List(ctx context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, cloneTask(t))
	}
	return out, nil
}

// Get returns a copy of one task.
func (s *MemoryStore) Get(ctx context.Context, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return cloneTask(t), nil
}

// Create inserts a task, generating an ID and defaulting the lane to queued.
func (s *MemoryStore) Create(ctx context.Context, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Lane == "" {
		t.Lane = LaneQueued
	}
	if !ValidLane(t.Lane) {
		return Task{}, fmt.Errorf("task: invalid lane %q", t.Lane)
	}
	if t.Priority == "" {
		t.Priority = PriorityP2
	}
	now := s.clock().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.StatusHistory = append(t.StatusHistory[:0:0], HistoryEntry{At: now, To: t.Lane})
	s.tasks[t.ID] = cloneTask(t)
	return t, nil
}

// Update applies a patch; a lane change appends exactly one history entry.
func (s *MemoryStore) Update(ctx context.Context, id string, p Patch) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	if p.Lane != nil && !ValidLane(*p.Lane) {
		return Task{}, fmt.Errorf("task: invalid lane %q", *p.Lane)
	}
	now := s.clock().UTC()
	if p.Lane != nil && *p.Lane != t.Lane {
		t.StatusHistory = append(t.StatusHistory, HistoryEntry{
			At:   now,
			From: t.Lane,
			To:   *p.Lane,
			Note: p.Note,
		})
		t.Lane = *p.Lane
	}
	if p.Owner != nil {
		t.Owner = *p.Owner
	}
	if p.CrashRecovery != nil {
		t.CrashRecovery = *p.CrashRecovery
	}
	t.UpdatedAt = now
	s.tasks[id] = cloneTask(t)
	return cloneTask(t), nil
}

func cloneTask(t Task) Task {
	t.AcceptanceCriteria = append(t.AcceptanceCriteria[:0:0], t.AcceptanceCriteria...)
	t.StatusHistory = append(t.StatusHistory[:0:0], t.StatusHistory...)
	return t
}
