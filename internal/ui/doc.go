// Package ui provides terminal UI components for the burnmate CLI.
//
// This package uses Bubble Tea and Lipgloss to render polished terminal
// output around the flash workflow. Most commands follow a "run once and
// exit" pattern: a header box, the streamed session log, then a success or
// failure box. The flash command additionally offers an interactive view
// with a live progress bar over the session log while the download machine
// runs.
//
// # Architecture
//
//   - Header: command banner showing operation name and parameters
//   - Runner: header → streamed session log → result box flow
//   - Result: success/failure/warning boxes with styled information
//   - FlashModel: Bubble Tea model for the interactive download view
//   - Confirm: typed-confirmation prompts for destructive operations
//
// # Logging Integration
//
// This package expects diagnostic logging to be controlled via the
// BURNMATE_LOG_LEVEL environment variable. When unset or empty, zap logging
// is silent, allowing the curated UI output to be displayed cleanly. The
// session log (internal/sessionlog) is independent of that: it is the
// user-facing record of one flash session and always renders.
package ui
