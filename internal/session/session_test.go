package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/calbera/shepherd/internal/task"
	"github.com/calbera/shepherd/internal/testutil"
)

func TestNewSession(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sess := New("dev-1", "task-1", start, 30*time.Minute)

	if sess.ID == "" {
		t.Error("session has no ID")
	}
	if sess.Slot != "dev-1" || sess.TaskID != "task-1" {
		t.Errorf("session = %+v", sess)
	}
	if want := start.Add(30 * time.Minute); !sess.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", sess.Deadline, want)
	}

	other := New("dev-1", "task-1", start, 30*time.Minute)
	if other.ID == sess.ID {
		t.Error("two sessions share an ID")
	}
}

func TestBuildPrompt(t *testing.T) {
	tk := task.Task{
		ID:      "task-7",
		Title:   "add retry to uploader",
		Problem: "uploads fail on transient network errors",
		Scope:   "internal/uploader only",
		AcceptanceCriteria: []string{
			"retries up to 3 times",
			"logs each retry",
		},
	}
	sess := &Session{ID: "sess-1", TaskID: tk.ID, Slot: "dev-1"}

	prompt := buildPrompt(tk, sess)

	for _, want := range []string{
		"task-7",
		"add retry to uploader",
		"uploads fail on transient network errors",
		"internal/uploader only",
		"1. retries up to 3 times",
		"2. logs each retry",
		"review lane",
		"blocked lane",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "interrupted") {
		t.Error("prompt mentions an interruption for a fresh task")
	}
}

func TestBuildPromptCrashRecovery(t *testing.T) {
	tk := task.Task{ID: "task-7", Title: "resume me", CrashRecovery: true}
	sess := &Session{ID: "sess-2", TaskID: tk.ID, Slot: "dev-1"}

	prompt := buildPrompt(tk, sess)
	if !strings.Contains(prompt, "interrupted") {
		t.Error("crash-recovery prompt missing the interruption note")
	}
}

func TestProcessAliveBadPID(t *testing.T) {
	if ProcessAlive(0) {
		t.Error("pid 0 reported alive")
	}
	if ProcessAlive(-1) {
		t.Error("negative pid reported alive")
	}
}

func TestKillPIDMissingProcess(t *testing.T) {
	// Killing a PID that does not exist must not error.
	if err := KillPID(0); err != nil {
		t.Errorf("KillPID(0) = %v", err)
	}
}

func TestLauncherTerminateIdempotent(t *testing.T) {
	originalCommandContext := CommandContext
	defer func() { CommandContext = originalCommandContext }()

	CommandContext = testutil.HangingCommandFunc()

	launcher := &AgentLauncher{Command: "agent"}
	sess := New("dev-1", "task-1", time.Now(), time.Minute)
	proc, err := launcher.Launch(context.Background(), task.Task{ID: "task-1", Title: "t"}, sess)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if proc.PID() <= 0 {
		t.Errorf("PID = %d", proc.PID())
	}

	if err := proc.Terminate(100 * time.Millisecond); err != nil {
		t.Fatalf("first Terminate failed: %v", err)
	}
	if err := proc.Terminate(100 * time.Millisecond); err != nil {
		t.Fatalf("second Terminate failed: %v", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after Terminate")
	}
}

func TestLauncherCleanExit(t *testing.T) {
	originalCommandContext := CommandContext
	defer func() { CommandContext = originalCommandContext }()

	CommandContext = testutil.MockCommandFunc("done")

	launcher := &AgentLauncher{Command: "agent"}
	sess := New("dev-1", "task-1", time.Now(), time.Minute)
	proc, err := launcher.Launch(context.Background(), task.Task{ID: "task-1", Title: "t"}, sess)
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit")
	}
	if err := proc.ExitErr(); err != nil {
		t.Errorf("ExitErr = %v, want nil", err)
	}
}

func TestLauncherSpawnFailure(t *testing.T) {
	launcher := &AgentLauncher{Command: "/nonexistent/agent-binary"}
	sess := New("dev-1", "task-1", time.Now(), time.Minute)
	if _, err := launcher.Launch(context.Background(), task.Task{ID: "task-1"}, sess); err == nil {
		t.Error("expected launch error for missing binary")
	}
}
