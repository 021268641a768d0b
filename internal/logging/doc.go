// Package logging provides structured diagnostic logging for burnmate.
//
// This package wraps zap with convenience functions shared by every
// component. It is distinct from the user-facing session log
// (internal/sessionlog): zap output is developer diagnostics, silent by
// default, while the session log is always populated and is what the CLI
// shows the user.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: state transitions, section dumps, patch byte detail
//   - Info: normal operations (probe events, phase completion)
//   - Warn: non-fatal issues (option-byte failures, multiple pattern hits)
//   - Error: fatal issues (load failures, attach rejection)
//
// # Configuration
//
// Logging is controlled by the BURNMATE_LOG_LEVEL environment variable and
// is silent when it is unset:
//
//	BURNMATE_LOG_LEVEL=debug burnmate flash firmware.hex
//
// Initialize at startup:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
