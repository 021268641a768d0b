package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/burnmate/internal/sessionlog"
)

// RenderLogLine renders one session log line in its severity's style.
func RenderLogLine(line sessionlog.Line) string {
	return logStyle(line.Severity).Render(line.Text)
}

func logStyle(sev sessionlog.Severity) lipgloss.Style {
	switch sev {
	case sessionlog.Error:
		return LogErrorStyle
	case sessionlog.Success:
		return LogSuccessStyle
	case sessionlog.Warning:
		return LogWarningStyle
	case sessionlog.Highlight:
		return LogHighlightStyle
	default:
		return LogPlainStyle
	}
}

// StreamLog returns a sessionlog sink that renders each line to w as it is
// appended. Used by non-interactive commands where the log scrolls instead
// of living inside a TUI.
func StreamLog(w io.Writer) func(sessionlog.Line) {
	return func(line sessionlog.Line) {
		_, _ = fmt.Fprintln(w, RenderLogLine(line))
	}
}
