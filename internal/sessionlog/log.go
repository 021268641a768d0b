package sessionlog

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Severity classifies a session log line. The UI maps severities to colors;
// there is no structured error channel besides this log.
type Severity int

const (
	Plain Severity = iota
	Error
	Success
	Warning
	Highlight
)

// String returns the lowercase marker name for the severity.
func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Highlight:
		return "highlight"
	default:
		return "plain"
	}
}

// Line is a single appended log line.
type Line struct {
	Time     time.Time
	Severity Severity
	Text     string
}

// Log is a mutex-guarded append-only text log. Multiple writers (the
// orchestrator and its worker goroutines) append concurrently; readers take
// snapshots. An optional sink callback receives each line as it is appended,
// which is how the CLI streams output live.
type Log struct {
	mu    sync.Mutex
	lines []Line
	sink  func(Line)
}

// New creates an empty session log.
func New() *Log {
	return &Log{}
}

// SetSink installs a callback invoked for every appended line. The callback
// runs on the appending goroutine while the log mutex is held, so it must
// return quickly and must not call back into the log.
func (l *Log) SetSink(sink func(Line)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// Append adds a line with the given severity.
func (l *Log) Append(sev Severity, text string) {
	line := Line{Time: time.Now(), Severity: sev, Text: text}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	if l.sink != nil {
		l.sink(line)
	}
}

// Appendf adds a formatted line with the given severity.
func (l *Log) Appendf(sev Severity, format string, args ...interface{}) {
	l.Append(sev, fmt.Sprintf(format, args...))
}

// Plain, Errorf, Successf, Warnf and Highlightf are severity shorthands.

func (l *Log) Plainf(format string, args ...interface{}) {
	l.Appendf(Plain, format, args...)
}

func (l *Log) Errorf(format string, args ...interface{}) {
	l.Appendf(Error, format, args...)
}

func (l *Log) Successf(format string, args ...interface{}) {
	l.Appendf(Success, format, args...)
}

func (l *Log) Warnf(format string, args ...interface{}) {
	l.Appendf(Warning, format, args...)
}

func (l *Log) Highlightf(format string, args ...interface{}) {
	l.Appendf(Highlight, format, args...)
}

// Snapshot returns a copy of all lines appended so far.
func (l *Log) Snapshot() []Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Line, len(l.lines))
	copy(out, l.lines)
	return out
}

// Len returns the number of appended lines.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Text renders the whole log as plain text, one line per entry.
func (l *Log) Text() string {
	var b strings.Builder
	for _, line := range l.Snapshot() {
		b.WriteString(line.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
