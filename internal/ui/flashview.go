package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/burnmate/internal/flash"
	"github.com/muurk/burnmate/internal/sessionlog"
)

// maxLogLines is how many session log lines the flash view keeps on screen.
const maxLogLines = 12

// Messages flowing from the machine into the Bubble Tea loop
type (
	logMsg     sessionlog.Line
	percentMsg int
	doneMsg    struct{ err error }
)

// FlashModel is the interactive flash view: a progress bar over the live
// session log while the download machine runs in the background.
type FlashModel struct {
	machine *flash.Machine
	events  chan tea.Msg

	bar     progress.Model
	percent float64
	lines   []sessionlog.Line
	err     error
	done    bool
	aborted bool
	width   int
}

// NewFlashModel builds the view for a machine. The caller submits the
// request before running the program; the model starts Run itself.
func NewFlashModel(machine *flash.Machine) *FlashModel {
	width := GetTerminalWidth()
	barWidth := width - 20
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	return &FlashModel{
		machine: machine,
		events:  make(chan tea.Msg, 64),
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth),
		),
		width: width,
	}
}

// Events returns the channel the machine's sinks feed. The flash command
// wires the session log sink and progress callback to it before starting.
func (m *FlashModel) Events() chan<- tea.Msg {
	return m.events
}

// listen waits for the next machine event.
func (m *FlashModel) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

// Init implements tea.Model
func (m *FlashModel) Init() tea.Cmd {
	return m.listen()
}

// Update implements tea.Model
func (m *FlashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "a":
			if !m.done {
				m.aborted = true
				m.machine.Abort()
				return m, m.listen()
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width > MaxContentWidth {
			m.width = MaxContentWidth
		}
		return m, nil

	case logMsg:
		m.lines = append(m.lines, sessionlog.Line(msg))
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		return m, m.listen()

	case percentMsg:
		m.percent = float64(msg) / 100
		return m, m.listen()

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model
func (m *FlashModel) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("  ")
	b.WriteString(m.bar.ViewAs(m.percent))
	b.WriteString(fmt.Sprintf("  %3.0f%%", m.percent*100))
	b.WriteString("\n\n")

	for _, line := range m.lines {
		b.WriteString(RenderLogLine(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		if m.err != nil {
			b.WriteString(ErrorMessageStyle.Render("  " + m.err.Error()))
		}
	} else {
		state := m.machine.Session().State.String()
		if m.aborted {
			state += " (aborting)"
		}
		b.WriteString(StateLineStyle.Render(fmt.Sprintf("state: %s  ·  press 'a' to abort", state)))
	}
	b.WriteString("\n")
	return b.String()
}

// RunFlashView submits the request, runs the machine in the background and
// shows the live view until the machine comes to rest. Returns the machine's
// attempt error.
func RunFlashView(ctx context.Context, machine *flash.Machine, log *sessionlog.Log, req flash.Request) error {
	model := NewFlashModel(machine)

	log.SetSink(func(line sessionlog.Line) {
		select {
		case model.events <- logMsg(line):
		default: // never block the orchestrator on a slow terminal
		}
	})
	defer log.SetSink(nil)
	machine.SetProgress(func(percent int) {
		select {
		case model.events <- percentMsg(percent):
		default:
		}
	})

	machine.Submit(req)
	var runErr error
	go func() {
		runErr = machine.Run(ctx)
		model.events <- doneMsg{err: runErr}
	}()

	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return runErr
}
