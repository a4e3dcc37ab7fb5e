package watchdog

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/calbera/shepherd/internal/config"
	"github.com/calbera/shepherd/internal/heartbeat"
	"github.com/calbera/shepherd/internal/task"
)

func testConfig() *config.Config {
	return &config.Config{
		Version: 1,
		Slots:   []string{"pm", "dev-1", "dev-2"},
		Timing: config.TimingConfig{
			WatchdogInterval: config.Duration(2 * time.Minute),
			StaleThreshold:   config.Duration(90 * time.Second),
		},
	}
}

func newWatchdog(t *testing.T, board task.Store, hbs heartbeat.Store, now time.Time) *Watchdog {
	t.Helper()
	cfg := testConfig()
	cfg.ProjectDir = t.TempDir()
	return (&Watchdog{
		Config:     cfg,
		Tasks:      board,
		Heartbeats: hbs,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).WithClock(func() time.Time { return now })
}

func TestSweepDemotesStaleWorkingSlot(t *testing.T) {
	board := task.NewMemoryStore()
	hbs := heartbeat.NewFileStore(t.TempDir())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := board.Create(context.Background(), task.Task{Title: "orphan me", Owner: "dev-1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := board.Update(context.Background(), created.ID, task.Patch{Lane: task.LanePtr(task.LaneDevelopment)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Last beat two minutes ago, one cycle is enough to catch it.
	if err := hbs.Write(heartbeat.WorkerHeartbeat{
		Slot: "dev-1", Status: heartbeat.StatusWorking,
		Task: created.ID, SessionID: "sess-1",
		LastUpdate: now.Add(-2 * time.Minute), StartedAt: now.Add(-time.Hour),
		Metadata: heartbeat.Metadata{SessionPID: 999},
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	demoted, err := newWatchdog(t, board, hbs, now).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if demoted != 1 {
		t.Fatalf("demoted = %d, want 1", demoted)
	}

	hb, err := hbs.Read("dev-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if hb.Status != heartbeat.StatusOffline {
		t.Errorf("status = %q, want offline", hb.Status)
	}
	if hb.Metadata.OfflineReason != heartbeat.ReasonStale {
		t.Errorf("reason = %q, want %q", hb.Metadata.OfflineReason, heartbeat.ReasonStale)
	}
	if hb.Task != "" || hb.SessionID != "" {
		t.Errorf("offline record still holds task state: %+v", hb)
	}

	got, err := board.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Lane != task.LaneQueued {
		t.Errorf("orphaned task lane = %q, want queued", got.Lane)
	}
	if !got.CrashRecovery {
		t.Error("requeued orphan missing the crash-recovery flag")
	}
	last := got.StatusHistory[len(got.StatusHistory)-1]
	if !strings.Contains(last.Note, "sess-1") {
		t.Errorf("requeue note %q does not name the abandoned session", last.Note)
	}
}

func TestSweepLeavesFreshSlotsAlone(t *testing.T) {
	hbs := heartbeat.NewFileStore(t.TempDir())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := hbs.Write(heartbeat.WorkerHeartbeat{
		Slot: "dev-1", Status: heartbeat.StatusIdle,
		LastUpdate: now.Add(-30 * time.Second), StartedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	demoted, err := newWatchdog(t, task.NewMemoryStore(), hbs, now).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if demoted != 0 {
		t.Errorf("demoted = %d, want 0", demoted)
	}

	hb, _ := hbs.Read("dev-1")
	if hb.Status != heartbeat.StatusIdle {
		t.Errorf("fresh idle slot got status %q", hb.Status)
	}
}

func TestSweepIgnoresOfflineSlots(t *testing.T) {
	hbs := heartbeat.NewFileStore(t.TempDir())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := hbs.Write(heartbeat.WorkerHeartbeat{
		Slot: "dev-1", Status: heartbeat.StatusOffline,
		LastUpdate: now.Add(-24 * time.Hour), StartedAt: now.Add(-48 * time.Hour),
		Metadata: heartbeat.Metadata{OfflineReason: heartbeat.ReasonShutdown},
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	demoted, err := newWatchdog(t, task.NewMemoryStore(), hbs, now).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if demoted != 0 {
		t.Errorf("demoted = %d, want 0; offline slots are settled state", demoted)
	}

	hb, _ := hbs.Read("dev-1")
	if hb.Metadata.OfflineReason != heartbeat.ReasonShutdown {
		t.Errorf("offline reason overwritten to %q", hb.Metadata.OfflineReason)
	}
}

func TestSweepStaleIdleSlot(t *testing.T) {
	board := task.NewMemoryStore()
	hbs := heartbeat.NewFileStore(t.TempDir())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := hbs.Write(heartbeat.WorkerHeartbeat{
		Slot: "dev-2", Status: heartbeat.StatusIdle,
		LastUpdate: now.Add(-10 * time.Minute), StartedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	demoted, err := newWatchdog(t, board, hbs, now).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if demoted != 1 {
		t.Fatalf("demoted = %d, want 1", demoted)
	}

	hb, _ := hbs.Read("dev-2")
	if hb.Status != heartbeat.StatusOffline || hb.Metadata.OfflineReason != heartbeat.ReasonStale {
		t.Errorf("stale idle slot = %+v", hb)
	}

	// No tasks were touched.
	tasks, err := board.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("board has %d tasks, want 0", len(tasks))
	}
}

func TestSweepLeavesFinishedOrphanTaskAlone(t *testing.T) {
	board := task.NewMemoryStore()
	hbs := heartbeat.NewFileStore(t.TempDir())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := board.Create(context.Background(), task.Task{Title: "already done", Owner: "dev-1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := board.Update(context.Background(), created.ID, task.Patch{Lane: task.LanePtr(task.LaneDone)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if err := hbs.Write(heartbeat.WorkerHeartbeat{
		Slot: "dev-1", Status: heartbeat.StatusWorking,
		Task: created.ID, SessionID: "sess-1",
		LastUpdate: now.Add(-5 * time.Minute), StartedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := newWatchdog(t, board, hbs, now).Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, _ := board.Get(context.Background(), created.ID)
	if got.Lane != task.LaneDone {
		t.Errorf("finished task dragged to %q", got.Lane)
	}
}
