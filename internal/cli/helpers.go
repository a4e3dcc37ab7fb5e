package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/calbera/shepherd/internal/config"
	"github.com/calbera/shepherd/internal/heartbeat"
	"github.com/calbera/shepherd/internal/task"
)

// loadConfig loads the project configuration from the current directory.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(cwd)
}

// openStores opens the shared task board and heartbeat store.
func openStores(cfg *config.Config) (*task.SQLiteStore, *heartbeat.FileStore, error) {
	board, err := task.OpenSQLite(cfg.TaskDBPath())
	if err != nil {
		return nil, nil, err
	}
	return board, heartbeat.NewFileStore(cfg.HeartbeatsDir()), nil
}

// newDaemonLogger builds the structured logger daemons write to stderr.
func newDaemonLogger(component string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("component", component)
}

// formatAge returns a human-readable relative time string.
func formatAge(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	}

	minutes := int(duration.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}

	hours := int(duration.Hours())
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}

	days := hours / 24
	return fmt.Sprintf("%dd ago", days)
}
