package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muurk/burnmate/internal/sessionlog"
)

// RunnerConfig holds the presentation for one command execution
type RunnerConfig struct {
	Title   string            // Command title (e.g., "Flash Download")
	Command string            // Full command (e.g., "burnmate flash firmware.hex")
	Params  map[string]string // Parameters to display in header
	Log     *sessionlog.Log   // Session log to stream while the operation runs
	Output  io.Writer         // Output writer (default: os.Stdout)
}

// Runner orchestrates the UI for one command: it prints the header, streams
// the session log while the operation runs, and closes with a success or
// failure box.
type Runner struct {
	config    RunnerConfig
	header    *Header
	output    io.Writer
	startTime time.Time
	width     int
}

// NewRunner creates a runner for a command
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := GetTerminalWidth()

	header := NewHeader(config.Title, config.Command, config.Params)
	header.SetWidth(width)

	return &Runner{
		config: config,
		header: header,
		output: config.Output,
		width:  width,
	}
}

// Run executes the operation with UI around it. The session log streams to
// the output as the operation appends to it.
func (r *Runner) Run(ctx context.Context, operation func(ctx context.Context) error) error {
	r.startTime = time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	if r.config.Log != nil {
		r.config.Log.SetSink(StreamLog(r.output))
		defer r.config.Log.SetSink(nil)
	}

	err := operation(ctx)
	duration := time.Since(r.startTime)

	_, _ = fmt.Fprintln(r.output)
	if err != nil {
		r.printFailure(err)
	} else {
		r.printSuccess(nil, duration)
	}
	return err
}

// RunWithResult executes the operation and renders its detail map in the
// success box.
func (r *Runner) RunWithResult(ctx context.Context, operation func(ctx context.Context) (map[string]string, error)) error {
	r.startTime = time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	if r.config.Log != nil {
		r.config.Log.SetSink(StreamLog(r.output))
		defer r.config.Log.SetSink(nil)
	}

	details, err := operation(ctx)
	duration := time.Since(r.startTime)

	_, _ = fmt.Fprintln(r.output)
	if err != nil {
		r.printFailure(err)
	} else {
		r.printSuccess(details, duration)
	}
	return err
}

func (r *Runner) printSuccess(details map[string]string, duration time.Duration) {
	result := NewSuccessResult(r.config.Title, details).SetWidth(r.width)
	result.AddDetail("Duration", formatDuration(duration))
	_, _ = fmt.Fprintln(r.output, result.Render())
	_, _ = fmt.Fprintln(r.output)
}

func (r *Runner) printFailure(err error) {
	result := NewFailureResult(r.config.Title, err, troubleshootingFor(err)).SetWidth(r.width)
	_, _ = fmt.Fprintln(r.output, result.Render())
	_, _ = fmt.Fprintln(r.output)
}

// troubleshootingFor returns generic tips for a failed probe operation.
func troubleshootingFor(err error) []string {
	if err == nil {
		return nil
	}
	return []string{
		"Check that the probe daemon is running and reachable",
		"Verify the target is powered and the debug cable is seated",
		"Try --under-reset if the firmware disables the debug port",
		"Run 'burnmate scan' to list reachable probes",
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}
