// Package sessionlog implements the user-facing append-only session log.
//
// Every component of the flash workflow reports outcomes through one shared
// log with severity markers (plain, error, success, warning, highlight).
// There is deliberately no separate structured error channel: the consuming
// UI is a passive log viewer, and severity tags are all it needs to colorize
// output.
//
// The log is mutex-guarded. Writers are the orchestrator goroutine and at
// most two short-lived worker goroutines; readers take whole-log snapshots.
// A sink callback can be installed to stream lines to a terminal as they
// are appended.
package sessionlog
