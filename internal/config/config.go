// Package config loads the .shepherd/ project configuration and knows the
// on-disk layout shared by all shepherd processes (workers, watchdog, CLI).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/calbera/shepherd/internal/util"
)

// ShepherdDir is the directory created in each project root.
const ShepherdDir = ".shepherd"

const configFileName = "config.yaml"

const defaultConfigYAML = `# shepherd fleet configuration
version: 1

# Worker slots. Each slot is a stable logical identity; run one
# "shepherd worker --slot <name>" process per slot.
slots:
  - pm
  - architect
  - dev-1
  - dev-2
  - qa

agent:
  command: claude
  args: ["--dangerously-skip-permissions"]

timing:
  idle_heartbeat: 30s
  working_heartbeat: 15s
  poll_interval: 30s
  poll_backoff_cap: 5m
  monitor_interval: 15s
  session_timeout: 30m
  session_timeout_ceiling: 2h
  watchdog_interval: 2m
  stale_threshold: 90s
  terminate_grace: 1s
  shutdown_grace: 30s

api:
  port: 0 # set >0 to expose the watchdog ops API
`

// AgentConfig describes how the external agent process is launched.
type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// Duration wraps time.Duration so YAML values like "90s" parse directly.
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string ("30s", "5m", "2h").
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go duration-string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TimingConfig holds every cadence and threshold used by the fleet. All
// values are optional in the YAML; zero values get defaults on load.
type TimingConfig struct {
	IdleHeartbeat         Duration `yaml:"idle_heartbeat"`
	WorkingHeartbeat      Duration `yaml:"working_heartbeat"`
	PollInterval          Duration `yaml:"poll_interval"`
	PollBackoffCap        Duration `yaml:"poll_backoff_cap"`
	MonitorInterval       Duration `yaml:"monitor_interval"`
	SessionTimeout        Duration `yaml:"session_timeout"`
	SessionTimeoutCeiling Duration `yaml:"session_timeout_ceiling"`
	WatchdogInterval      Duration `yaml:"watchdog_interval"`
	StaleThreshold        Duration `yaml:"stale_threshold"`
	TerminateGrace        Duration `yaml:"terminate_grace"`
	ShutdownGrace         Duration `yaml:"shutdown_grace"`
}

// APIConfig configures the watchdog ops HTTP server.
type APIConfig struct {
	Port int `yaml:"port"`
}

// Config models .shepherd/config.yaml plus the resolved project paths.
type Config struct {
	Version int          `yaml:"version"`
	Slots   []string     `yaml:"slots"`
	Agent   AgentConfig  `yaml:"agent"`
	Timing  TimingConfig `yaml:"timing"`
	API     APIConfig    `yaml:"api"`

	// ProjectDir is the directory the command ran from. Not serialized.
	ProjectDir string `yaml:"-"`
}

// Init creates the .shepherd directory structure and a default config file.
// Existing files are left untouched.
func Init(projectDir string) error {
	root := filepath.Join(projectDir, ShepherdDir)
	dirs := []string{
		filepath.Join(root, "heartbeats"),
		filepath.Join(root, "state"),
		filepath.Join(root, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	path := filepath.Join(root, configFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write default config: %w", err)
	}
	return nil
}

// Load reads .shepherd/config.yaml from the project directory, applying
// defaults for any omitted values.
func Load(projectDir string) (*Config, error) {
	cfg := defaultConfig()
	cfg.ProjectDir = projectDir

	path := filepath.Join(projectDir, ShepherdDir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s not found; run 'shepherd init' first", path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Version: 1,
		Agent: AgentConfig{
			Command: "claude",
			Args:    []string{"--dangerously-skip-permissions"},
		},
		Timing: TimingConfig{
			IdleHeartbeat:         Duration(30 * time.Second),
			WorkingHeartbeat:      Duration(15 * time.Second),
			PollInterval:          Duration(30 * time.Second),
			PollBackoffCap:        Duration(5 * time.Minute),
			MonitorInterval:       Duration(15 * time.Second),
			SessionTimeout:        Duration(30 * time.Minute),
			SessionTimeoutCeiling: Duration(2 * time.Hour),
			WatchdogInterval:      Duration(2 * time.Minute),
			StaleThreshold:        Duration(90 * time.Second),
			TerminateGrace:        Duration(time.Second),
			ShutdownGrace:         Duration(30 * time.Second),
		},
	}
}

func (c *Config) applyDefaults() {
	def := defaultConfig()
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Agent.Command == "" {
		c.Agent = def.Agent
	}
	t, dt := &c.Timing, def.Timing
	if t.IdleHeartbeat <= 0 {
		t.IdleHeartbeat = dt.IdleHeartbeat
	}
	if t.WorkingHeartbeat <= 0 {
		t.WorkingHeartbeat = dt.WorkingHeartbeat
	}
	if t.PollInterval <= 0 {
		t.PollInterval = dt.PollInterval
	}
	if t.PollBackoffCap <= 0 {
		t.PollBackoffCap = dt.PollBackoffCap
	}
	if t.MonitorInterval <= 0 {
		t.MonitorInterval = dt.MonitorInterval
	}
	if t.SessionTimeout <= 0 {
		t.SessionTimeout = dt.SessionTimeout
	}
	if t.SessionTimeoutCeiling <= 0 {
		t.SessionTimeoutCeiling = dt.SessionTimeoutCeiling
	}
	if t.WatchdogInterval <= 0 {
		t.WatchdogInterval = dt.WatchdogInterval
	}
	if t.StaleThreshold <= 0 {
		t.StaleThreshold = dt.StaleThreshold
	}
	if t.TerminateGrace <= 0 {
		t.TerminateGrace = dt.TerminateGrace
	}
	if t.ShutdownGrace <= 0 {
		t.ShutdownGrace = dt.ShutdownGrace
	}
}

func (c *Config) normalize() {
	// Slot names become file and directory names, so they are slugged.
	slots := make([]string, 0, len(c.Slots))
	for _, s := range c.Slots {
		s = util.Slug(s)
		if s != "" {
			slots = append(slots, s)
		}
	}
	c.Slots = slots
	c.Agent.Command = strings.TrimSpace(c.Agent.Command)
}

func (c *Config) validate() error {
	if c.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	if len(c.Slots) == 0 {
		return fmt.Errorf("at least one worker slot is required")
	}
	seen := make(map[string]bool, len(c.Slots))
	for _, s := range c.Slots {
		if seen[s] {
			return fmt.Errorf("duplicate slot %q", s)
		}
		seen[s] = true
	}
	if c.Agent.Command == "" {
		return fmt.Errorf("agent.command is required")
	}
	if c.Timing.StaleThreshold <= c.Timing.WorkingHeartbeat {
		return fmt.Errorf("timing.stale_threshold (%s) must exceed timing.working_heartbeat (%s)",
			c.Timing.StaleThreshold.Std(), c.Timing.WorkingHeartbeat.Std())
	}
	if c.Timing.SessionTimeout > c.Timing.SessionTimeoutCeiling {
		return fmt.Errorf("timing.session_timeout (%s) exceeds ceiling (%s)",
			c.Timing.SessionTimeout.Std(), c.Timing.SessionTimeoutCeiling.Std())
	}
	return nil
}

// HasSlot reports whether the given slot is declared in the config.
func (c *Config) HasSlot(slot string) bool {
	for _, s := range c.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// ShepherdRoot returns the .shepherd directory for the project.
func (c *Config) ShepherdRoot() string {
	return filepath.Join(c.ProjectDir, ShepherdDir)
}

// HeartbeatsDir returns the directory holding per-slot heartbeat files.
func (c *Config) HeartbeatsDir() string {
	return filepath.Join(c.ShepherdRoot(), "heartbeats")
}

// TaskDBPath returns the SQLite database holding the task board.
func (c *Config) TaskDBPath() string {
	return filepath.Join(c.ShepherdRoot(), "state", "tasks.db")
}

// WorkerLockPath returns the PID lock file for one slot's worker process.
func (c *Config) WorkerLockPath(slot string) string {
	return filepath.Join(c.ShepherdRoot(), "state", "worker-"+slot+".lock")
}

// WatchdogLockPath returns the PID lock file for the watchdog process.
func (c *Config) WatchdogLockPath() string {
	return filepath.Join(c.ShepherdRoot(), "state", "watchdog.lock")
}

// SlotLogDir returns the log directory for one slot.
func (c *Config) SlotLogDir(slot string) string {
	return filepath.Join(c.ShepherdRoot(), "logs", slot)
}
