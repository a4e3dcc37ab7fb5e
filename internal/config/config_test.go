package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitCreatesLayout(t *testing.T) {
	dir := t.TempDir()

	if err := Init(dir); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for _, sub := range []string{"heartbeats", "state", "logs"} {
		if _, err := os.Stat(filepath.Join(dir, ShepherdDir, sub)); err != nil {
			t.Errorf("missing %s: %v", sub, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ShepherdDir, configFileName)); err != nil {
		t.Errorf("missing config file: %v", err)
	}
}

func TestInitLeavesExistingConfigAlone(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	path := filepath.Join(dir, ShepherdDir, configFileName)
	custom := "version: 1\nslots: [solo]\n"
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Init(dir); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != custom {
		t.Error("Init overwrote an existing config")
	}
}

func TestLoadDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Slots) != 5 {
		t.Errorf("default slots = %v", cfg.Slots)
	}
	if !cfg.HasSlot("dev-1") || cfg.HasSlot("ghost") {
		t.Error("HasSlot misbehaves on the default fleet")
	}
	if cfg.Agent.Command != "claude" {
		t.Errorf("agent command = %q", cfg.Agent.Command)
	}
	if got := cfg.Timing.IdleHeartbeat.Std(); got != 30*time.Second {
		t.Errorf("idle_heartbeat = %v", got)
	}
	if got := cfg.Timing.SessionTimeout.Std(); got != 30*time.Minute {
		t.Errorf("session_timeout = %v", got)
	}
	if got := cfg.Timing.PollBackoffCap.Std(); got != 5*time.Minute {
		t.Errorf("poll_backoff_cap = %v", got)
	}
	if got := cfg.Timing.TerminateGrace.Std(); got != time.Second {
		t.Errorf("terminate_grace = %v", got)
	}
	if got := cfg.Timing.ShutdownGrace.Std(); got != 30*time.Second {
		t.Errorf("shutdown_grace = %v", got)
	}
}

func TestLoadMissingConfig(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !strings.Contains(err.Error(), "shepherd init") {
		t.Errorf("error %q does not point at init", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ShepherdDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ShepherdDir, configFileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadAppliesDefaultsToPartialConfig(t *testing.T) {
	dir := writeConfig(t, "version: 1\nslots: [solo]\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.Command != "claude" {
		t.Errorf("agent command = %q, want default", cfg.Agent.Command)
	}
	if got := cfg.Timing.StaleThreshold.Std(); got != 90*time.Second {
		t.Errorf("stale_threshold = %v, want default 90s", got)
	}
}

func TestLoadNormalizesSlotNames(t *testing.T) {
	dir := writeConfig(t, "version: 1\nslots: [\"Dev 1\", \"  \", qa_lead]\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Slots) != 2 || cfg.Slots[0] != "dev-1" || cfg.Slots[1] != "qa-lead" {
		t.Errorf("slots = %v", cfg.Slots)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "no slots",
			body: "version: 1\nslots: []\n",
			want: "at least one worker slot",
		},
		{
			name: "duplicate slots",
			body: "version: 1\nslots: [dev-1, dev-1]\n",
			want: "duplicate slot",
		},
		{
			name: "stale threshold too low",
			body: "version: 1\nslots: [dev-1]\ntiming:\n  working_heartbeat: 15s\n  stale_threshold: 10s\n",
			want: "stale_threshold",
		},
		{
			name: "timeout above ceiling",
			body: "version: 1\nslots: [dev-1]\ntiming:\n  session_timeout: 3h\n  session_timeout_ceiling: 2h\n",
			want: "ceiling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.body)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q missing %q", err, tt.want)
			}
		})
	}
}

func TestDurationYAML(t *testing.T) {
	dir := writeConfig(t, "version: 1\nslots: [dev-1]\ntiming:\n  session_timeout: 45m\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.Timing.SessionTimeout.Std(); got != 45*time.Minute {
		t.Errorf("session_timeout = %v, want 45m", got)
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := &Config{ProjectDir: "/proj"}

	if got := cfg.ShepherdRoot(); got != filepath.Join("/proj", ShepherdDir) {
		t.Errorf("ShepherdRoot = %q", got)
	}
	if got := cfg.HeartbeatsDir(); !strings.HasSuffix(got, "heartbeats") {
		t.Errorf("HeartbeatsDir = %q", got)
	}
	if got := cfg.TaskDBPath(); !strings.HasSuffix(got, filepath.Join("state", "tasks.db")) {
		t.Errorf("TaskDBPath = %q", got)
	}
	if got := cfg.SlotLogDir("dev-1"); !strings.HasSuffix(got, filepath.Join("logs", "dev-1")) {
		t.Errorf("SlotLogDir = %q", got)
	}
	if got := cfg.WorkerLockPath("dev-1"); !strings.HasSuffix(got, "worker-dev-1.lock") {
		t.Errorf("WorkerLockPath = %q", got)
	}
	if got := cfg.WatchdogLockPath(); !strings.HasSuffix(got, "watchdog.lock") {
		t.Errorf("WatchdogLockPath = %q", got)
	}
}
