package flash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/burnmate/internal/image"
	"github.com/muurk/burnmate/internal/logging"
	"github.com/muurk/burnmate/internal/patch"
	"github.com/muurk/burnmate/internal/probe"
	"github.com/muurk/burnmate/internal/script"
	"github.com/muurk/burnmate/internal/sessionlog"
	"github.com/muurk/burnmate/internal/target"
)

// DefaultPollInterval is the drive-loop poll period while a background task
// runs.
const DefaultPollInterval = 20 * time.Millisecond

// writeChunkSize bounds one WriteFlash round trip.
const writeChunkSize = 4096

// Config wires the orchestrator's collaborators.
type Config struct {
	// Transport is the debug-probe transport.
	Transport probe.Transport
	// Log is the session log sink. Required.
	Log *sessionlog.Log
	// Logger is the diagnostic logger. Defaults to the global one.
	Logger *zap.Logger
	// Engine evaluates post-process scripts. Defaults to script.NopEngine.
	Engine script.Engine
	// Progress, when set, receives download percentage updates. Called from
	// worker goroutines; must be safe for that.
	Progress func(percent int)
	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
}

// Machine drives one session through the flash workflow. All state
// transitions happen on the goroutine calling Step; at most one background
// task runs at a time, started and observed by that same goroutine.
type Machine struct {
	session *Session
	tr      probe.Transport
	slog    *sessionlog.Log
	logger  *zap.Logger
	engine  script.Engine
	replies *script.ReplyQueue

	progress func(percent int)
	poll     time.Duration

	pending    atomic.Int32 // Request
	attemptErr error        // first hard failure of the current attempt
	serialUsed string       // serial stamped in PatchFile, for the log line
}

// New creates a machine for the session.
func New(session *Session, cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	engine := cfg.Engine
	if engine == nil {
		engine = script.NopEngine{}
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	m := &Machine{
		session:  session,
		tr:       cfg.Transport,
		slog:     cfg.Log,
		logger:   logger,
		engine:   engine,
		replies:  script.NewReplyQueue(0),
		progress: cfg.Progress,
		poll:     poll,
	}
	m.tr.SetCallback(m.transportCallback)
	return m
}

// Session returns the machine's session.
func (m *Machine) Session() *Session {
	return m.session
}

// SetProgress installs the download percentage sink. Must be called before
// Submit; the machine calls it from worker goroutines.
func (m *Machine) SetProgress(fn func(percent int)) {
	m.progress = fn
}

// Submit queues a foreground request; the machine picks it up on its next
// pass through Idle. A request submitted while another is pending replaces
// it.
func (m *Machine) Submit(req Request) {
	m.pending.Store(int32(req))
}

// Abort requests cancellation of whichever background task is running. The
// orchestrator observes the aborted state on its next poll and treats the
// phase as failed.
func (m *Machine) Abort() {
	m.session.Download.Abort()
	m.session.Post.Abort()
}

// transportCallback receives status, progress and reply events from the
// transport, possibly on a worker goroutine.
func (m *Machine) transportCallback(code probe.CallbackCode, msg string) {
	switch code {
	case probe.CodeStatus:
		m.slog.Plainf("%s", msg)
	case probe.CodeProgress:
		if m.progress != nil {
			if pct, err := strconv.Atoi(msg); err == nil {
				m.progress(pct)
			}
		}
	case probe.CodeReply:
		m.replies.Push(msg)
	case probe.CodeError:
		m.slog.Errorf("%s", msg)
	}
}

// fail records a hard failure for this attempt and logs it.
func (m *Machine) fail(err error) {
	if m.attemptErr == nil {
		m.attemptErr = err
	}
	m.slog.Errorf("%v", err)
}

// Step executes the action of the current state and advances the session to
// the next state. While a background task is running, Step is a non-blocking
// poll that leaves the state unchanged.
func (m *Machine) Step(ctx context.Context) State {
	prev := m.session.State
	next := m.step(ctx)
	if next != prev {
		logging.LogStateTransition(prev.String(), next.String())
	}
	m.session.State = next
	return next
}

func (m *Machine) step(ctx context.Context) State {
	s := m.session
	switch s.State {
	case StateInit:
		return m.stepInit(ctx)
	case StateIdle:
		return m.stepIdle()
	case StateSave:
		return m.stepSave()
	case StateAttach:
		return m.stepAttach(ctx)
	case StatePreDownload:
		return m.stepPreDownload()
	case StatePatchFile:
		return m.stepPatchFile()
	case StateClearFlash:
		return m.stepClearFlash(ctx)
	case StateDownload:
		return m.stepDownload(ctx)
	case StateOptionBytes:
		return m.stepOptionBytes(ctx)
	case StateVerify:
		return m.stepVerify(ctx)
	case StateFinish:
		return m.stepFinish()
	case StatePostProcess:
		return m.stepPostProcess(ctx)
	case StateEraseOptBytes:
		return m.stepDiagnostic(ctx, "erase option bytes", func(ctx context.Context) error {
			return m.tr.Monitor(ctx, "option erase")
		})
	case StateFullErase:
		return m.stepDiagnostic(ctx, "full erase", func(ctx context.Context) error {
			size, err := m.tr.FlashTotal(ctx)
			if err != nil {
				return err
			}
			return m.tr.EraseFull(ctx, size)
		})
	case StateBlankCheck:
		return m.stepDiagnostic(ctx, "blank check", func(ctx context.Context) error {
			return m.tr.Monitor(ctx, "blank check")
		})
	case StateDumpFlash:
		return m.stepDiagnostic(ctx, "dump flash", m.dumpFlash)
	default:
		return StateIdle
	}
}

// stepInit enumerates and connects the probe, then rests in Idle.
func (m *Machine) stepInit(ctx context.Context) State {
	if err := m.tr.Connect(ctx, m.session.Options.Probe); err != nil {
		m.slog.Errorf("probe connect failed: %v", err)
		return StateIdle
	}
	m.slog.Plainf("probe connected")
	return StateIdle
}

// stepIdle picks up a pending foreground request, if any.
func (m *Machine) stepIdle() State {
	req := Request(m.pending.Swap(int32(ReqNone)))
	if req == ReqNone {
		return StateIdle
	}

	// Fresh attempt
	m.attemptErr = nil
	m.serialUsed = ""
	m.slog.Highlightf("starting %s", req)

	switch req {
	case ReqDownload:
		return StateSave
	case ReqEraseOptBytes:
		return StateEraseOptBytes
	case ReqFullErase:
		return StateFullErase
	case ReqBlankCheck:
		return StateBlankCheck
	case ReqDumpFlash:
		return StateDumpFlash
	}
	return StateIdle
}

// stepSave persists the per-target options. A save failure is logged but
// does not stop the download.
func (m *Machine) stepSave() State {
	if err := target.Save(m.session.TargetFile, m.session.Options); err != nil {
		m.slog.Warnf("could not save target options: %v", err)
	}
	return StateAttach
}

// stepAttach connects and attaches to the target; failure ends the attempt.
func (m *Machine) stepAttach(ctx context.Context) State {
	opts := m.session.Options
	if err := m.tr.Connect(ctx, opts.Probe); err != nil {
		m.fail(err)
		return StateIdle
	}
	if err := m.tr.Attach(ctx, probe.AttachOptions{
		UnderReset:  opts.ConnectUnderReset,
		TargetPower: opts.TargetPower,
	}); err != nil {
		m.fail(err)
		return StateIdle
	}
	m.slog.Plainf("attached to target")
	return StatePreDownload
}

// stepPreDownload loads the image; BIN images are relocated to the declared
// base address.
func (m *Machine) stepPreDownload() State {
	img, err := image.Load(m.session.TargetFile)
	if err != nil {
		m.fail(err)
		m.tr.Detach(m.session.Options.TargetPower)
		return StateIdle
	}
	if img.Format == image.FormatBIN && m.session.Options.Base != 0 {
		img.Relocate(m.session.Options.Base)
	}
	m.session.Image = img
	m.slog.Plainf("loaded %s image: %d section(s), %d bytes",
		img.Format, img.NumSections(), img.TotalSize())
	return StatePatchFile
}

// stepPatchFile applies vector-table checksum repair, CRP injection and
// serialization. Checksum trouble is fatal only when CRP or serialization
// was explicitly requested; CRP and serialization failures always end the
// attempt.
func (m *Machine) stepPatchFile() State {
	s := m.session
	strict := s.CRPRequested() || s.SerializationRequested()

	var unsupported *patch.UnsupportedDriverError
	res, err := patch.RepairVectorChecksum(s.Image, s.Options.Driver)
	switch {
	case err == nil && res == patch.ChecksumAlreadyCorrect:
		m.slog.Plainf("vector-table checksum already correct")
	case err == nil:
		m.slog.Plainf("vector-table checksum repaired")
	case errors.As(err, &unsupported) && strict:
		// CRP and serialization imply the driver family matters; an unknown
		// driver under either is a configuration error, not a shrug.
		m.fail(err)
		m.tr.Detach(s.Options.TargetPower)
		return StateIdle
	default:
		m.slog.Warnf("vector-table checksum skipped: %v", err)
	}

	if s.CRPRequested() {
		if err := patch.InjectCRP(s.Image, s.Options.CRPLevel); err != nil {
			m.fail(err)
			m.tr.Detach(s.Options.TargetPower)
			return StateIdle
		}
		m.slog.Plainf("CRP level %d injected", s.Options.CRPLevel)
	}

	if s.SerializationRequested() {
		value := s.Serial.Current()
		res, err := patch.Serialize(s.Image, s.Options.Serialize, value)
		if err != nil {
			m.fail(err)
			m.tr.Detach(s.Options.TargetPower)
			return StateIdle
		}
		if res.Matches > 1 {
			m.slog.Warnf("serialization pattern matched %d times; all occurrences patched", res.Matches)
		}
		m.serialUsed = strconv.FormatUint(value, 10)
		m.slog.Plainf("serial number %d stamped", value)
	}

	if s.SkipDownload {
		m.slog.Plainf("skip-download set: bypassing erase and download")
		return StateVerify
	}
	return StateClearFlash
}

// stepClearFlash performs the optional full erase before download.
func (m *Machine) stepClearFlash(ctx context.Context) State {
	if !m.session.Options.FullErase {
		return StateDownload
	}
	size, err := m.tr.FlashTotal(ctx)
	if err == nil {
		err = m.tr.EraseFull(ctx, size)
	}
	if err != nil {
		m.fail(err)
		m.tr.Detach(m.session.Options.TargetPower)
		return StateIdle
	}
	m.slog.Plainf("flash erased (%d bytes)", size)
	return StateDownload
}

// stepDownload runs the flash write as a background task and polls it.
func (m *Machine) stepDownload(ctx context.Context) State {
	task := &m.session.Download
	switch task.State() {
	case TaskIdle:
		img := m.session.Image
		task.Start(func(aborted func() bool) error {
			return m.writeImage(ctx, img, aborted)
		})
		return StateDownload

	case TaskRunning:
		return StateDownload

	case TaskAborted:
		_ = task.Finish()
		m.fail(errors.New("download aborted"))
		m.tr.Detach(m.session.Options.TargetPower)
		return StateIdle

	default: // TaskCompleted
		if err := task.Finish(); err != nil {
			m.fail(fmt.Errorf("download failed: %w", err))
			m.tr.Detach(m.session.Options.TargetPower)
			return StateIdle
		}
		m.slog.Successf("download complete")
		return StateOptionBytes
	}
}

// writeImage is the download worker: it streams every section to the probe
// in chunks, checking the abort flag between chunks.
func (m *Machine) writeImage(ctx context.Context, img *image.Image, aborted func() bool) error {
	total := int(img.TotalSize())
	written := 0
	for i := 0; i < img.NumSections(); i++ {
		sec := img.Section(i)
		for off := 0; off < len(sec.Data); off += writeChunkSize {
			if aborted() {
				return ErrTaskAborted
			}
			end := off + writeChunkSize
			if end > len(sec.Data) {
				end = len(sec.Data)
			}
			if err := m.tr.WriteFlash(ctx, sec.Address+uint32(off), sec.Data[off:end]); err != nil {
				return err
			}
			written += end - off
			if m.progress != nil && total > 0 {
				m.progress(written * 100 / total)
			}
		}
	}
	return nil
}

// stepOptionBytes programs CRP option bytes, best effort: failures are
// logged and the workflow continues to Verify.
func (m *Machine) stepOptionBytes(ctx context.Context) State {
	if m.session.CRPRequested() {
		cmd := fmt.Sprintf("option program crp %d", m.session.Options.CRPLevel)
		if err := m.tr.Monitor(ctx, cmd); err != nil {
			m.slog.Warnf("option-byte programming failed: %v", err)
		}
	}
	return StateVerify
}

// stepVerify compares written flash against the image. On failure the
// fail-safe post-process script runs if configured, otherwise the attempt
// ends.
func (m *Machine) stepVerify(ctx context.Context) State {
	if err := m.tr.Verify(ctx); err != nil {
		m.fail(fmt.Errorf("verify failed: %w", err))
		if m.session.PostScript != "" && m.session.FailSafePost {
			return StatePostProcess
		}
		m.tr.Detach(m.session.Options.TargetPower)
		return StateIdle
	}
	m.slog.Successf("verify passed")
	return StateFinish
}

// stepFinish appends the download log line and advances the serial counter.
// Both are best effort; a dry run does neither.
func (m *Machine) stepFinish() State {
	s := m.session
	if s.SkipDownload {
		m.slog.Successf("dry run complete")
		return StatePostProcess
	}

	if err := appendDownloadLog(s.TargetFile, m.serialUsed, time.Now()); err != nil {
		m.slog.Warnf("could not append download log: %v", err)
	}
	if s.SerializationRequested() {
		if err := s.Serial.Advance(); err != nil {
			m.slog.Warnf("could not advance serial counter: %v", err)
		} else if !s.Serial.FileBased() {
			// Literal counters live in the target options; persist the
			// advanced value.
			s.Options.SerialValue = s.Serial.ConfigValue()
			if err := target.Save(s.TargetFile, s.Options); err != nil {
				m.slog.Warnf("could not persist advanced serial: %v", err)
			}
		}
	}
	m.slog.Successf("download finished")
	return StatePostProcess
}

// stepPostProcess runs the optional post-process script as a background
// task, then rests.
func (m *Machine) stepPostProcess(ctx context.Context) State {
	s := m.session
	if s.PostScript == "" {
		m.tr.Detach(s.Options.TargetPower)
		return StateIdle
	}

	task := &s.Post
	switch task.State() {
	case TaskIdle:
		task.Start(func(aborted func() bool) error {
			return m.runPostScript(ctx, aborted)
		})
		return StatePostProcess

	case TaskRunning:
		return StatePostProcess

	case TaskAborted:
		_ = task.Finish()
		m.slog.Warnf("post-process script aborted")
		m.tr.Detach(s.Options.TargetPower)
		return StateIdle

	default: // TaskCompleted
		if err := task.Finish(); err != nil {
			m.slog.Warnf("post-process script failed: %v", err)
		} else {
			m.slog.Successf("post-process complete")
		}
		m.tr.Detach(s.Options.TargetPower)
		return StateIdle
	}
}

// runPostScript is the post-process worker: it binds session variables,
// registers the reply-wait command backed by the bounded reply queue, and
// evaluates the script.
func (m *Machine) runPostScript(ctx context.Context, aborted func() bool) error {
	source, err := os.ReadFile(m.session.PostScript)
	if err != nil {
		return fmt.Errorf("failed to read post-process script: %w", err)
	}

	m.engine.Bind("target", m.session.TargetFile)
	m.engine.Bind("serial", m.serialUsed)
	m.engine.RegisterCommand("waitreply", func(args []string) (string, error) {
		timeout := 5 * time.Second
		if len(args) > 0 {
			if d, err := time.ParseDuration(args[0]); err == nil {
				timeout = d
			}
		}
		deadline := time.Now().Add(timeout)
		for !aborted() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			step := 50 * time.Millisecond
			if remaining < step {
				step = remaining
			}
			if reply, ok := m.replies.Wait(ctx, step); ok {
				return reply, nil
			}
		}
		if aborted() {
			return "", ErrTaskAborted
		}
		return "", fmt.Errorf("no probe reply within %s", timeout)
	})

	if aborted() {
		return ErrTaskAborted
	}
	return m.engine.Eval(ctx, string(source))
}

// stepDiagnostic runs one side-entry operation: attach, act, detach,
// unconditionally back to Idle with any failure logged.
func (m *Machine) stepDiagnostic(ctx context.Context, name string, op func(context.Context) error) State {
	opts := m.session.Options
	if err := m.tr.Connect(ctx, opts.Probe); err != nil {
		m.fail(fmt.Errorf("%s: %w", name, err))
		return StateIdle
	}
	if err := m.tr.Attach(ctx, probe.AttachOptions{
		UnderReset:  opts.ConnectUnderReset,
		TargetPower: opts.TargetPower,
	}); err != nil {
		m.fail(fmt.Errorf("%s: %w", name, err))
		return StateIdle
	}
	if err := op(ctx); err != nil {
		m.fail(fmt.Errorf("%s: %w", name, err))
	} else {
		m.slog.Successf("%s done", name)
	}
	m.tr.Detach(opts.TargetPower)
	return StateIdle
}

// dumpFlash reads the whole flash and writes it to the session's dump path.
func (m *Machine) dumpFlash(ctx context.Context) error {
	size, err := m.tr.FlashTotal(ctx)
	if err != nil {
		return err
	}
	data, err := m.tr.ReadFlash(ctx, 0, size)
	if err != nil {
		return err
	}
	path := m.session.DumpPath
	if path == "" {
		path = m.session.TargetFile + ".dump"
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	m.slog.Plainf("flash dumped to %s (%d bytes)", path, len(data))
	return nil
}

// Run drives the machine until it comes to rest: state Idle with no pending
// request and no running task. It returns the first hard failure of the
// last attempt, or ctx's error on cancellation.
func (m *Machine) Run(ctx context.Context) error {
	prev := m.session.State
	for {
		if err := ctx.Err(); err != nil {
			m.Abort()
			return err
		}
		st := m.Step(ctx)
		if st == StateIdle && Request(m.pending.Load()) == ReqNone {
			return m.attemptErr
		}
		// Only sleep while polling a running task; everything else
		// transitions immediately.
		if st == prev && (st == StateDownload || st == StatePostProcess) {
			select {
			case <-ctx.Done():
			case <-time.After(m.poll):
			}
		}
		prev = st
	}
}
