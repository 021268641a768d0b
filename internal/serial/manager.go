// Package serial manages the per-unit serial number counter.
//
// The counter value comes from one of two places: a literal decimal string
// in the target configuration, or an external counter file shared between
// workstations. Advancing the counter writes back to whichever location
// supplied it, so several flashing stations pointed at one counter file stay
// in step.
package serial

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/burnmate/internal/logging"
)

// Manager reads, advances and persists the serial number counter.
type Manager struct {
	literal uint64
	file    string
	step    uint64
}

// NewManager creates a manager from the configured value string. A string
// that parses as a decimal number is a literal counter held in the config;
// anything else is treated as the path of an external counter file. The
// increment step is clamped to a minimum of 1.
func NewManager(value string, step uint64) *Manager {
	if step < 1 {
		step = 1
	}
	m := &Manager{step: step}

	trimmed := strings.TrimSpace(value)
	if n, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
		m.literal = n
	} else {
		m.file = trimmed
	}
	return m
}

// FileBased reports whether the counter lives in an external file.
func (m *Manager) FileBased() bool {
	return m.file != ""
}

// Current returns the current serial number. For a file-backed counter the
// file is re-read on every call; a missing or unparsable file defaults to 1.
func (m *Manager) Current() uint64 {
	if m.file == "" {
		return m.literal
	}
	data, err := os.ReadFile(m.file)
	if err != nil {
		logging.Debug("serial counter file unreadable, defaulting to 1",
			zap.String("file", m.file), zap.Error(err))
		return 1
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		logging.Warn("serial counter file unparsable, defaulting to 1",
			zap.String("file", m.file), zap.Error(err))
		return 1
	}
	return n
}

// Advance increments the counter by the configured step and writes the new
// value back to the location that supplied it. For a literal counter the
// in-memory value changes and the caller is responsible for persisting the
// target configuration.
func (m *Manager) Advance() error {
	next := m.Current() + m.step
	if m.file == "" {
		m.literal = next
		return nil
	}
	if err := os.WriteFile(m.file, []byte(fmt.Sprintf("%d\n", next)), 0o644); err != nil {
		return fmt.Errorf("failed to write serial counter file %q: %w", m.file, err)
	}
	logging.Debug("serial counter advanced",
		zap.String("file", m.file), zap.Uint64("value", next))
	return nil
}

// ConfigValue returns the string to persist in the target configuration:
// the file path for a file-backed counter, else the literal value.
func (m *Manager) ConfigValue() string {
	if m.file != "" {
		return m.file
	}
	return strconv.FormatUint(m.literal, 10)
}
