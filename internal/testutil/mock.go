// Package testutil provides testing utilities for the shepherd project.
package testutil

import (
	"context"
	"os/exec"
)

// MockCommandFunc creates a stand-in for the agent CLI that prints the given
// output and exits cleanly.
// Usage: session.CommandContext = testutil.MockCommandFunc(output)
func MockCommandFunc(output string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "echo", "-n", output)
	}
}

// HangingCommandFunc creates a stand-in for the agent CLI that runs until
// terminated. Useful for exercising timeout and shutdown paths.
func HangingCommandFunc() func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sleep", "60")
	}
}
