package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/calbera/shepherd/internal/task"
)

// CommandContext is the function used to create exec.Cmd instances.
// Tests can replace this to intercept process creation.
var CommandContext = exec.CommandContext

// Proc is a running agent process as the supervisor sees it.
type Proc interface {
	// PID returns the operating system process ID.
	PID() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitErr returns the process exit error. Only valid after Done closes.
	ExitErr() error
	// Terminate asks the process to stop: SIGTERM, then SIGKILL after the
	// grace period. Safe to call more than once.
	Terminate(grace time.Duration) error
}

// Launcher starts an agent process for a task.
type Launcher interface {
	Launch(ctx context.Context, t task.Task, sess *Session) (Proc, error)
}

// AgentLauncher spawns the configured agent CLI with a task briefing prompt.
// Stdout and stderr go to a per-session log file under LogDir.
type AgentLauncher struct {
	Command string
	Args    []string
	LogDir  string
}

// Launch starts the agent process. The returned Proc is already running;
// a startup failure is reported here, synchronously.
func (l *AgentLauncher) Launch(ctx context.Context, t task.Task, sess *Session) (Proc, error) {
	args := append(append([]string{}, l.Args...), "-p", buildPrompt(t, sess))

	cmd := CommandContext(ctx, l.Command, args...)

	if l.LogDir != "" {
		if err := os.MkdirAll(l.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("session: create log directory: %w", err)
		}
		logPath := filepath.Join(l.LogDir, sess.ID+".log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("session: open log file: %w", err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("session: start agent: %w", err)
	}

	p := &osProc{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		if closer, ok := cmd.Stdout.(*os.File); ok {
			closer.Close()
		}
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

// buildPrompt constructs the briefing the agent receives.
func buildPrompt(t task.Task, sess *Session) string {
	var sb strings.Builder

	sb.WriteString("You are working one task from a shared task board.\n\n")
	sb.WriteString("## Your Task\n")
	sb.WriteString(fmt.Sprintf("**ID**: %s\n", t.ID))
	sb.WriteString(fmt.Sprintf("**Title**: %s\n", t.Title))
	sb.WriteString(fmt.Sprintf("**Session**: %s\n", sess.ID))
	if t.Problem != "" {
		sb.WriteString(fmt.Sprintf("**Problem**: %s\n", t.Problem))
	}
	if t.Scope != "" {
		sb.WriteString(fmt.Sprintf("**Scope**: %s\n", t.Scope))
	}
	sb.WriteString("\n")

	if t.CrashRecovery {
		sb.WriteString("**Note**: A previous session on this task was interrupted. ")
		sb.WriteString("Review any partial work before continuing.\n\n")
	}

	if len(t.AcceptanceCriteria) > 0 {
		sb.WriteString("## Acceptance Criteria\n")
		sb.WriteString("You MUST verify ALL of the following before considering the task complete:\n")
		for i, criterion := range t.AcceptanceCriteria {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, criterion))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Instructions\n")
	sb.WriteString("1. Implement the task as described\n")
	sb.WriteString("2. Verify ALL acceptance criteria are met\n")
	sb.WriteString("3. When done, move the task to the review lane on the board\n")
	sb.WriteString("4. If you are stuck and cannot proceed, move the task to the blocked lane with a note explaining why\n")

	return sb.String()
}

// osProc wraps a started exec.Cmd.
type osProc struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
	killed  bool
}

func (p *osProc) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *osProc) Done() <-chan struct{} { return p.done }

func (p *osProc) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Terminate sends SIGTERM, waits out the grace period, then SIGKILLs if the
// process is still running. Calling it on an already-dead process is a no-op.
func (p *osProc) Terminate(grace time.Duration) error {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return nil
	}
	p.killed = true
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process may have exited between the check and the signal.
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	if err := p.cmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), "already finished") {
		return fmt.Errorf("session: kill pid %d: %w", p.PID(), err)
	}
	<-p.done
	return nil
}

// ProcessAlive reports whether a PID refers to a live process, using the
// signal-0 probe.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// KillPID force-kills a process by PID. Used by crash recovery to collect
// sessions left behind by a previous worker. Missing processes are fine.
func KillPID(pid int) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return nil
	}
	time.Sleep(time.Second)
	if ProcessAlive(pid) {
		if err := proc.Kill(); err != nil {
			return fmt.Errorf("session: kill pid %d: %w", pid, err)
		}
	}
	return nil
}
