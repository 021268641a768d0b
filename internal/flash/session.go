package flash

import (
	"github.com/muurk/burnmate/internal/image"
	"github.com/muurk/burnmate/internal/patch"
	"github.com/muurk/burnmate/internal/serial"
	"github.com/muurk/burnmate/internal/target"
)

// Session is the explicit per-download context: the target file, its
// persisted options, runtime flags, the loaded image and the two background
// task slots. It is owned by the orchestrator goroutine; workers only read
// the image and serialization fields while they run.
type Session struct {
	// TargetFile is the firmware image path.
	TargetFile string
	// Options are the persisted per-target options (.bmcfg).
	Options *target.Options

	// SkipDownload takes the normal path but bypasses ClearFlash, Download
	// and OptionBytes, and leaves the serial counter alone. Used for dry-run
	// verification.
	SkipDownload bool
	// PostScript is the path of an optional post-process script.
	PostScript string
	// FailSafePost runs the post-process script even when Verify fails.
	FailSafePost bool
	// DumpPath receives flash content for the DumpFlash diagnostic.
	DumpPath string

	// Image is the loaded section list, rebuilt atomically in PreDownload.
	Image *image.Image
	// Serial is the serial number counter, built from Options.
	Serial *serial.Manager

	// State is the current orchestrator state.
	State State
	// Download and Post are the two background task slots.
	Download Task
	Post     Task
}

// NewSession builds a session for a target file with its persisted options.
func NewSession(targetFile string, opts *target.Options) *Session {
	return &Session{
		TargetFile: targetFile,
		Options:    opts,
		Serial:     serial.NewManager(opts.SerialValue, opts.SerialStep),
		State:      StateInit,
	}
}

// SerializationRequested reports whether the options ask for serialization.
func (s *Session) SerializationRequested() bool {
	return s.Options.Serialize.Mode != patch.ModeNone
}

// CRPRequested reports whether the options ask for CRP injection.
func (s *Session) CRPRequested() bool {
	return s.Options.CRPLevel > 0
}
