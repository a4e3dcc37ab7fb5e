package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/calbera/shepherd/internal/config"
	"github.com/calbera/shepherd/internal/heartbeat"
	"github.com/calbera/shepherd/internal/task"
)

func testModel(t *testing.T) (Model, *task.MemoryStore, *heartbeat.FileStore) {
	t.Helper()
	cfg := &config.Config{
		Version: 1,
		Slots:   []string{"pm", "dev-1"},
		Timing:  config.TimingConfig{StaleThreshold: config.Duration(90 * time.Second)},
	}
	board := task.NewMemoryStore()
	hbs := heartbeat.NewFileStore(t.TempDir())
	return NewModel(cfg, board, hbs), board, hbs
}

func sized(m Model) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model)
}

func TestViewEmptyUntilSized(t *testing.T) {
	m, _, _ := testModel(t)
	if m.View() != "" {
		t.Error("view should be empty before the first WindowSizeMsg")
	}
}

func TestViewShowsSlotsWithoutHeartbeats(t *testing.T) {
	m, _, _ := testModel(t)
	m = sized(m)

	view := m.View()
	for _, want := range []string{"pm", "dev-1", "no heartbeat"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSnapshotRendering(t *testing.T) {
	m, board, hbs := testModel(t)
	m = sized(m)

	now := time.Now()
	if err := hbs.Write(heartbeat.WorkerHeartbeat{
		Slot: "dev-1", Status: heartbeat.StatusWorking,
		Task: "task-1", SessionID: "sess-1",
		LastUpdate: now, StartedAt: now,
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := board.Create(context.Background(), task.Task{Title: "polish the intake", Owner: "pm", Priority: task.PriorityP1}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	msg := m.refresh()
	updated, _ := m.Update(msg)
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"working", "task-1", "polish the intake", "queued 1"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSnapshotErrorShown(t *testing.T) {
	m, _, _ := testModel(t)
	m = sized(m)

	updated, _ := m.Update(snapshotMsg{err: errors.New("database is locked")})
	m = updated.(Model)

	if !strings.Contains(m.View(), "database is locked") {
		t.Error("refresh error not surfaced in the view")
	}
}

func TestQuitKey(t *testing.T) {
	m, _, _ := testModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("q did not quit")
	}
}

func TestStaleSlotFlagged(t *testing.T) {
	m, _, hbs := testModel(t)
	m = sized(m)

	if err := hbs.Write(heartbeat.WorkerHeartbeat{
		Slot: "dev-1", Status: heartbeat.StatusIdle,
		LastUpdate: time.Now().Add(-10 * time.Minute), StartedAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	msg := m.refresh()
	updated, _ := m.Update(msg)
	m = updated.(Model)

	if !strings.Contains(m.View(), "stale") {
		t.Error("stale slot not flagged in the view")
	}
}
