package task

import (
	"testing"
	"time"
)

func TestValidLane(t *testing.T) {
	for _, l := range []Lane{LaneQueued, LaneDevelopment, LaneReview, LaneBlocked, LaneDone} {
		if !ValidLane(l) {
			t.Errorf("ValidLane(%q) = false, want true", l)
		}
	}
	if ValidLane(Lane("shipping")) {
		t.Error("ValidLane accepted an unknown lane")
	}
}

func TestLaneTerminal(t *testing.T) {
	tests := []struct {
		lane Lane
		want bool
	}{
		{LaneQueued, false},
		{LaneDevelopment, false},
		{LaneReview, true},
		{LaneBlocked, true},
		{LaneDone, true},
	}
	for _, tt := range tests {
		if got := tt.lane.Terminal(); got != tt.want {
			t.Errorf("%q.Terminal() = %v, want %v", tt.lane, got, tt.want)
		}
	}
}

func TestNextFor(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tasks := []Task{
		{ID: "t1", Owner: "dev-1", Lane: LaneQueued, Priority: PriorityP2, CreatedAt: base},
		{ID: "t2", Owner: "dev-1", Lane: LaneQueued, Priority: PriorityP0, CreatedAt: base.Add(time.Hour)},
		{ID: "t3", Owner: "dev-1", Lane: LaneDevelopment, Priority: PriorityP0, CreatedAt: base},
		{ID: "t4", Owner: "dev-2", Lane: LaneQueued, Priority: PriorityP0, CreatedAt: base},
	}

	// Highest priority wins even when it is newer.
	next := NextFor(tasks, "dev-1")
	if next == nil || next.ID != "t2" {
		t.Fatalf("NextFor = %+v, want t2", next)
	}

	// Only queued tasks owned by the slot are eligible.
	if got := NextFor(tasks, "qa"); got != nil {
		t.Errorf("NextFor for idle slot = %+v, want nil", got)
	}
}

func TestNextForTieBreaks(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Same priority: oldest first.
	byAge := []Task{
		{ID: "newer", Owner: "dev-1", Lane: LaneQueued, Priority: PriorityP1, CreatedAt: base.Add(time.Minute)},
		{ID: "older", Owner: "dev-1", Lane: LaneQueued, Priority: PriorityP1, CreatedAt: base},
	}
	if next := NextFor(byAge, "dev-1"); next == nil || next.ID != "older" {
		t.Errorf("age tie-break: got %+v, want older", next)
	}

	// Same priority and timestamp: lowest ID, so the pick is deterministic.
	byID := []Task{
		{ID: "b", Owner: "dev-1", Lane: LaneQueued, Priority: PriorityP1, CreatedAt: base},
		{ID: "a", Owner: "dev-1", Lane: LaneQueued, Priority: PriorityP1, CreatedAt: base},
	}
	if next := NextFor(byID, "dev-1"); next == nil || next.ID != "a" {
		t.Errorf("id tie-break: got %+v, want a", next)
	}
}

func TestNextForUnknownPrioritySortsLast(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tasks := []Task{
		{ID: "weird", Owner: "dev-1", Lane: LaneQueued, Priority: Priority("P9"), CreatedAt: base},
		{ID: "normal", Owner: "dev-1", Lane: LaneQueued, Priority: PriorityP3, CreatedAt: base.Add(time.Hour)},
	}
	if next := NextFor(tasks, "dev-1"); next == nil || next.ID != "normal" {
		t.Errorf("got %+v, want normal", next)
	}
}
