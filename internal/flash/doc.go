// Package flash orchestrates the download workflow: a state machine that
// loads the target image, patches it, erases and writes flash over the probe
// transport, verifies the result, and runs an optional post-process script.
//
// All transitions happen on the goroutine driving the machine; the download
// and post-process phases run as background tasks the machine polls, so the
// caller's UI stays responsive and can request an abort at any time.
package flash
