// Package tui provides the live watch dashboard for drover.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	accentColor  = lipgloss.Color("#06B6D4")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	statusQueued    = lipgloss.NewStyle().Foreground(warningColor)
	statusRunning   = lipgloss.NewStyle().Foreground(accentColor)
	statusCompleted = lipgloss.NewStyle().Foreground(successColor)
	statusFailed    = lipgloss.NewStyle().Foreground(errorColor)
	statusCancelled = lipgloss.NewStyle().Foreground(mutedColor)
)

const (
	refreshEvery = time.Second
	maxJobRows   = 12
	maxEventRows = 10
)

type tickMsg time.Time

type refreshMsg struct {
	lanes  []LaneRow
	jobs   []JobRow
	events []EventRow
	err    error
}

// App is the watch dashboard model.
type App struct {
	client  *Client
	spinner spinner.Model

	lanes  []LaneRow
	jobs   []JobRow
	events []EventRow

	width   int
	height  int
	loaded  bool
	lastErr error
}

// New creates the watch dashboard.
func New(apiAddr string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)

	return &App{
		client:  NewClient(apiAddr),
		spinner: sp,
	}
}

// Run starts the dashboard and blocks until the user quits.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.refresh())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		case "r":
			return a, a.refresh()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tickMsg:
		return a, a.refresh()

	case refreshMsg:
		a.loaded = true
		a.lastErr = msg.err
		if msg.err == nil {
			a.lanes = msg.lanes
			a.jobs = msg.jobs
			a.events = msg.events
		}
		return a, tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })

	default:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) refresh() tea.Cmd {
	return func() tea.Msg {
		lanes, err := a.client.Lanes()
		if err != nil {
			return refreshMsg{err: err}
		}
		jobs, err := a.client.Jobs()
		if err != nil {
			return refreshMsg{err: err}
		}
		events, err := a.client.Events(maxEventRows)
		if err != nil {
			return refreshMsg{err: err}
		}
		return refreshMsg{lanes: lanes, jobs: jobs, events: events}
	}
}

func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("drover watch"))
	if !a.loaded {
		b.WriteString(" " + a.spinner.View() + " connecting...")
		b.WriteString("\n")
		return b.String()
	}
	if a.lastErr != nil {
		b.WriteString(" " + statusFailed.Render(fmt.Sprintf("daemon unreachable: %v", a.lastErr)))
	}
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(a.lanesView()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(a.jobsView()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(a.eventsView()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q quit • r refresh"))
	b.WriteString("\n")

	return b.String()
}

func (a *App) lanesView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Lanes"))
	b.WriteString("\n")
	if len(a.lanes) == 0 {
		b.WriteString(helpStyle.Render("no lanes yet"))
		return b.String()
	}
	for _, l := range a.lanes {
		state := helpStyle.Render("idle")
		if l.Active {
			state = statusRunning.Render("draining")
		}
		b.WriteString(fmt.Sprintf("%-28s queue %-3d %s  ✓%d ✗%d ⊘%d\n",
			l.ID, l.QueueDepth, state, l.Completed, l.Failed, l.Cancelled))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) jobsView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Jobs"))
	b.WriteString("\n")
	if len(a.jobs) == 0 {
		b.WriteString(helpStyle.Render("no jobs yet"))
		return b.String()
	}
	rows := a.jobs
	if len(rows) > maxJobRows {
		rows = rows[:maxJobRows]
	}
	for _, j := range rows {
		b.WriteString(fmt.Sprintf("#%-5d %-15s %-24s %s %dms\n",
			j.ID, j.Type, j.LaneID, renderStatus(j.Status), j.DurationMs))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) eventsView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Events"))
	b.WriteString("\n")
	if len(a.events) == 0 {
		b.WriteString(helpStyle.Render("no events yet"))
		return b.String()
	}
	for _, ev := range a.events {
		b.WriteString(fmt.Sprintf("%6d  %-14s %s\n", ev.ID, ev.Type, ev.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStatus(status string) string {
	switch status {
	case "queued":
		return statusQueued.Render("● queued   ")
	case "running":
		return statusRunning.Render("● running  ")
	case "completed":
		return statusCompleted.Render("● completed")
	case "failed":
		return statusFailed.Render("● failed   ")
	case "cancelled":
		return statusCancelled.Render("● cancelled")
	default:
		return status
	}
}
