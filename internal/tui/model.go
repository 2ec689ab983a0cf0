// Package tui renders a live view of a probe run.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vburojevic/mprobe/internal/domain"
)

// StageMsg carries a stage event from the probe.
type StageMsg struct {
	Event *domain.StageEvent
}

// DoneMsg is sent once the probe has returned.
type DoneMsg struct {
	Report *domain.Report
	Err    error
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type stageRow struct {
	name    string
	status  domain.Status
	detail  string
	command string
}

// Model is the bubbletea model for one run.
type Model struct {
	target  string
	spinner spinner.Model
	stages  []stageRow
	report  *domain.Report
	err     error
	done    bool
	aborted bool
	cancel  func()
}

// New creates the model. cancel is called when the user quits early.
func New(target string, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	if cancel == nil {
		cancel = func() {}
	}
	return Model{target: target, spinner: s, cancel: cancel}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done {
				m.aborted = true
				m.cancel()
			}
			return m, tea.Quit
		}
	case StageMsg:
		m.apply(msg.Event)
		return m, nil
	case DoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(ev *domain.StageEvent) {
	if ev == nil {
		return
	}
	for i := range m.stages {
		if m.stages[i].name == ev.Stage {
			m.stages[i].status = ev.Status
			if ev.Detail != "" {
				m.stages[i].detail = ev.Detail
			}
			if ev.Command != "" {
				m.stages[i].command = ev.Command
			}
			return
		}
	}
	m.stages = append(m.stages, stageRow{name: ev.Stage, status: ev.Status, detail: ev.Detail, command: ev.Command})
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("mprobe " + m.target))
	b.WriteString("\n\n")

	for _, s := range m.stages {
		fmt.Fprintf(&b, " %s %-10s %s\n", m.marker(s.status), s.name, s.detail)
		if s.status == domain.StatusRunning && s.command != "" {
			b.WriteString("   " + dimStyle.Render(s.command) + "\n")
		}
	}

	switch {
	case m.done && m.report != nil:
		b.WriteString("\n" + verdictLine(m.report) + "\n")
	case m.done && m.err != nil:
		b.WriteString("\n" + failStyle.Render("error: "+m.err.Error()) + "\n")
	case m.aborted:
		b.WriteString("\n" + partialStyle.Render("aborting, cleaning up...") + "\n")
	default:
		b.WriteString("\n" + dimStyle.Render("q to abort") + "\n")
	}
	return b.String()
}

// Report returns the final report once the run is done.
func (m Model) Report() *domain.Report { return m.report }

// Aborted reports whether the user quit before the run finished.
func (m Model) Aborted() bool { return m.aborted }

func (m Model) marker(s domain.Status) string {
	switch s {
	case domain.StatusRunning:
		return m.spinner.View()
	case domain.StatusOK:
		return okStyle.Render("✓")
	case domain.StatusPartial:
		return partialStyle.Render("~")
	case domain.StatusFailed:
		return failStyle.Render("✗")
	default:
		return dimStyle.Render("-")
	}
}

func verdictLine(r *domain.Report) string {
	line := "Verdict: " + strings.ToUpper(string(r.Verdict))
	if r.Handshake != nil && r.Handshake.Frame.Name != "" {
		line += fmt.Sprintf(" (device name %q)", r.Handshake.Frame.Name)
	}
	if r.Code != "" {
		line += " [" + string(r.Code) + "]"
	}
	switch r.Verdict {
	case domain.VerdictOK:
		return okStyle.Render(line)
	case domain.VerdictPartial:
		return partialStyle.Render(line)
	default:
		return failStyle.Render(line)
	}
}
