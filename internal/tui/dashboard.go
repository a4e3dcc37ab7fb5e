// Package tui is the read-only fleet dashboard: one screen showing every
// slot's heartbeat and the task board, refreshed on a timer. It never
// mutates state; intake and operations go through the CLI and the ops API.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/calbera/shepherd/internal/config"
	"github.com/calbera/shepherd/internal/heartbeat"
	"github.com/calbera/shepherd/internal/task"
	"github.com/calbera/shepherd/internal/tui/components"
	"github.com/calbera/shepherd/internal/tui/styles"
)

const refreshEvery = 2 * time.Second

type tickMsg time.Time

// snapshotMsg carries one refresh of fleet state.
type snapshotMsg struct {
	heartbeats map[string]heartbeat.WorkerHeartbeat
	tasks      []task.Task
	err        error
}

// Model is the dashboard's Bubble Tea model.
type Model struct {
	cfg        *config.Config
	tasks      task.Store
	heartbeats heartbeat.Store

	width  int
	height int

	spin        spinner.Model
	snapshot    snapshotMsg
	lastRefresh time.Time

	// clock is swappable for tests.
	clock func() time.Time
}

// NewModel builds the dashboard over the given stores.
func NewModel(cfg *config.Config, tasks task.Store, heartbeats heartbeat.Store) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.SubtleStyle
	return Model{
		cfg:        cfg,
		tasks:      tasks,
		heartbeats: heartbeats,
		spin:       sp,
		clock:      time.Now,
	}
}

// Run starts the dashboard program.
func Run(cfg *config.Config, tasks task.Store, heartbeats heartbeat.Store) error {
	p := tea.NewProgram(
		NewModel(cfg, tasks, heartbeats),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.refresh, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh loads one snapshot of fleet state.
func (m Model) refresh() tea.Msg {
	hbs, err := m.heartbeats.List()
	if err != nil {
		return snapshotMsg{err: err}
	}
	tasks, err := m.tasks.List(context.Background())
	if err != nil {
		return snapshotMsg{err: err}
	}
	return snapshotMsg{heartbeats: hbs, tasks: tasks}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh, tick())

	case snapshotMsg:
		m.snapshot = msg
		m.lastRefresh = m.clock()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := styles.TitleStyle.Render("S H E P H E R D")
	tagline := styles.SubtleStyle.Render("worker fleet dashboard")
	b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Center, title))
	b.WriteString("\n")
	b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Center, tagline))
	b.WriteString("\n\n")

	if m.snapshot.err != nil {
		b.WriteString(styles.ErrorStyle.Render("refresh failed: " + m.snapshot.err.Error()))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderFleet())
	b.WriteString("\n")
	b.WriteString(m.renderBoard())
	b.WriteString("\n")

	if !m.lastRefresh.IsZero() {
		b.WriteString(styles.SubtleStyle.Render("updated " + m.lastRefresh.Format("15:04:05")))
	} else {
		b.WriteString(m.spin.View() + styles.SubtleStyle.Render(" loading"))
	}
	b.WriteString("\n")

	b.WriteString(components.NewStatusBar().Render(m.width, []string{"r Refresh", "q Quit"}))
	return b.String()
}

// renderFleet renders one line per configured slot.
func (m Model) renderFleet() string {
	var lines []string
	lines = append(lines, styles.SectionStyle.Render("Fleet"))

	now := m.clock()
	threshold := m.cfg.Timing.StaleThreshold.Std()

	for _, slot := range m.cfg.Slots {
		hb, ok := m.snapshot.heartbeats[slot]
		if !ok {
			lines = append(lines, fmt.Sprintf("  %-12s %s", slot, styles.SubtleStyle.Render("no heartbeat")))
			continue
		}

		status := string(hb.Status)
		style := styles.IdleStyle
		switch {
		case hb.Stale(now, threshold):
			status = "stale"
			style = styles.OfflineStyle
		case hb.Status == heartbeat.StatusWorking:
			style = styles.WorkingStyle
		case hb.Status == heartbeat.StatusOffline:
			style = styles.OfflineStyle
			if hb.Metadata.OfflineReason != "" {
				status += " (" + hb.Metadata.OfflineReason + ")"
			}
		}

		line := fmt.Sprintf("  %-12s %-24s %s", slot, style.Render(status),
			styles.SubtleStyle.Render(fmt.Sprintf("beat %s ago", hb.Age(now).Round(time.Second))))
		if hb.Status == heartbeat.StatusWorking && hb.Task != "" {
			line += styles.SubtleStyle.Render("  on " + hb.Task)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n") + "\n"
}

// renderBoard renders task counts per lane plus the oldest queued tasks.
func (m Model) renderBoard() string {
	var lines []string
	lines = append(lines, styles.SectionStyle.Render("Board"))

	counts := make(map[task.Lane]int)
	var queued []task.Task
	for _, t := range m.snapshot.tasks {
		counts[t.Lane]++
		if t.Lane == task.LaneQueued {
			queued = append(queued, t)
		}
	}

	lanes := []task.Lane{task.LaneQueued, task.LaneDevelopment, task.LaneReview, task.LaneBlocked, task.LaneDone}
	var parts []string
	for _, lane := range lanes {
		parts = append(parts, fmt.Sprintf("%s %d", lane, counts[lane]))
	}
	lines = append(lines, "  "+styles.SubtleStyle.Render(strings.Join(parts, "  ")))

	sort.Slice(queued, func(i, j int) bool { return queued[i].CreatedAt.Before(queued[j].CreatedAt) })
	shown := 0
	for _, t := range queued {
		if shown == 5 {
			lines = append(lines, styles.SubtleStyle.Render(fmt.Sprintf("  … and %d more queued", len(queued)-shown)))
			break
		}
		lines = append(lines, fmt.Sprintf("  [%s] %s %s", t.Priority, t.Title, styles.SubtleStyle.Render("→ "+t.Owner)))
		shown++
	}
	return strings.Join(lines, "\n") + "\n"
}
