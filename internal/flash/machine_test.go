package flash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/muurk/burnmate/internal/patch"
	"github.com/muurk/burnmate/internal/probe"
	"github.com/muurk/burnmate/internal/sessionlog"
	"github.com/muurk/burnmate/internal/target"
)

// fakeTransport records every operation and lets tests inject failures and
// pacing into individual calls.
type fakeTransport struct {
	mu    sync.Mutex
	calls []string
	cb    probe.Callback

	connectErr error
	attachErr  error
	verifyErr  error

	flashSize uint32
	written   map[uint32][]byte

	// writeStarted is signaled once per WriteFlash call; writeGate, when
	// non-nil, blocks each WriteFlash until it is closed.
	writeStarted chan struct{}
	writeGate    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		flashSize: 1 << 16,
		written:   make(map[uint32][]byte),
	}
}

func (f *fakeTransport) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeTransport) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeTransport) Connect(ctx context.Context, selector string) error {
	f.record("connect")
	return f.connectErr
}

func (f *fakeTransport) Attach(ctx context.Context, opts probe.AttachOptions) error {
	f.record("attach")
	return f.attachErr
}

func (f *fakeTransport) Detach(keepPower bool) {
	f.record("detach")
}

func (f *fakeTransport) Monitor(ctx context.Context, cmd string) error {
	f.record("monitor " + cmd)
	return nil
}

func (f *fakeTransport) EraseFull(ctx context.Context, size uint32) error {
	f.record(fmt.Sprintf("erase %d", size))
	return nil
}

func (f *fakeTransport) WriteFlash(ctx context.Context, addr uint32, data []byte) error {
	f.record("write")
	if f.writeStarted != nil {
		f.writeStarted <- struct{}{}
	}
	if f.writeGate != nil {
		<-f.writeGate
	}
	f.mu.Lock()
	f.written[addr] = append([]byte{}, data...)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) ReadFlash(ctx context.Context, addr, size uint32) ([]byte, error) {
	f.record("read")
	return make([]byte, size), nil
}

func (f *fakeTransport) Verify(ctx context.Context) error {
	f.record("verify")
	return f.verifyErr
}

func (f *fakeTransport) FlashTotal(ctx context.Context) (uint32, error) {
	f.record("flashtotal")
	return f.flashSize, nil
}

func (f *fakeTransport) SetCallback(cb probe.Callback) { f.cb = cb }
func (f *fakeTransport) Close() error                  { return nil }

// recordingEngine captures script-engine calls so tests can assert whether
// the post-process script ran.
type recordingEngine struct {
	mu    sync.Mutex
	binds map[string]string
	evals []string
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{binds: make(map[string]string)}
}

func (e *recordingEngine) RegisterCommand(string, func([]string) (string, error)) {}

func (e *recordingEngine) Bind(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.binds[name] = value
}

func (e *recordingEngine) Eval(_ context.Context, source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evals = append(e.evals, source)
	return nil
}

func (e *recordingEngine) evalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.evals)
}

// writeTarget creates a BIN target of the given content in a temp dir and
// returns its path.
func writeTarget(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "firmware.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestMachine(t *testing.T, targetFile string, opts *target.Options, tr probe.Transport) *Machine {
	t.Helper()
	session := NewSession(targetFile, opts)
	return New(session, Config{
		Transport:    tr,
		Log:          sessionlog.New(),
		PollInterval: time.Millisecond,
	})
}

func TestRunDownloadHappyPath(t *testing.T) {
	content := make([]byte, 6000) // two write chunks
	for i := range content {
		content[i] = byte(i)
	}
	targetFile := writeTarget(t, content)

	opts := target.DefaultOptions()
	opts.Driver = "lpc812"
	opts.FullErase = true

	tr := newFakeTransport()
	m := newTestMachine(t, targetFile, opts, tr)
	m.Submit(ReqDownload)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if st := m.Session().State; st != StateIdle {
		t.Fatalf("resting state = %s, want Idle", st)
	}

	if tr.callCount("attach") != 1 || tr.callCount("verify") != 1 || tr.callCount("detach") != 1 {
		t.Errorf("call sequence %v missing attach/verify/detach", tr.calls)
	}
	if got := tr.callCount("write"); got != 2 {
		t.Errorf("WriteFlash called %d times, want 2", got)
	}
	if tr.callCount(fmt.Sprintf("erase %d", tr.flashSize)) != 1 {
		t.Errorf("full erase not performed: %v", tr.calls)
	}

	// The chunks must reassemble into the input image. The checksum repair
	// rewrites the slot-7 vector word before download, so compare outside
	// the vector table.
	flat := append(append([]byte{}, tr.written[0]...), tr.written[4096]...)
	if len(flat) != len(content) {
		t.Fatalf("wrote %d bytes, want %d", len(flat), len(content))
	}
	if !bytes.Equal(flat[32:], content[32:]) {
		t.Error("written payload differs from the image")
	}

	// Finish appends the download log.
	if _, err := os.Stat(targetFile + ".log"); err != nil {
		t.Errorf("download log missing: %v", err)
	}
	// Save persists the target options.
	if _, err := os.Stat(target.ConfigPath(targetFile)); err != nil {
		t.Errorf("target options not saved: %v", err)
	}
}

func TestRunAttachFailureEndsAttempt(t *testing.T) {
	targetFile := writeTarget(t, make([]byte, 64))

	tr := newFakeTransport()
	tr.attachErr = errors.New("target not responding")

	m := newTestMachine(t, targetFile, target.DefaultOptions(), tr)
	m.Submit(ReqDownload)
	err := m.Run(context.Background())
	if err == nil || !errors.Is(err, tr.attachErr) {
		t.Fatalf("Run() = %v, want attach error", err)
	}
	if st := m.Session().State; st != StateIdle {
		t.Fatalf("resting state = %s, want Idle", st)
	}
	// The attempt must end before the image is touched.
	if m.Session().Image != nil {
		t.Error("image was loaded despite attach failure")
	}
	if tr.callCount("write") != 0 || tr.callCount("verify") != 0 {
		t.Errorf("flash operations ran despite attach failure: %v", tr.calls)
	}
}

func TestRunVerifyFailureRunsFailSafeScript(t *testing.T) {
	targetFile := writeTarget(t, make([]byte, 64))
	script := filepath.Join(t.TempDir(), "recover.bms")
	if err := os.WriteFile(script, []byte("monitor reset\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := newFakeTransport()
	tr.verifyErr = errors.New("mismatch at 0x00000100")
	eng := newRecordingEngine()

	session := NewSession(targetFile, target.DefaultOptions())
	session.PostScript = script
	session.FailSafePost = true
	m := New(session, Config{
		Transport:    tr,
		Log:          sessionlog.New(),
		Engine:       eng,
		PollInterval: time.Millisecond,
	})
	m.Submit(ReqDownload)
	err := m.Run(context.Background())
	if err == nil || !errors.Is(err, tr.verifyErr) {
		t.Fatalf("Run() = %v, want verify error", err)
	}
	if st := m.Session().State; st != StateIdle {
		t.Fatalf("resting state = %s, want Idle", st)
	}

	// The fail-safe script ran despite the failed attempt.
	if got := eng.evalCount(); got != 1 {
		t.Fatalf("script evaluated %d times, want 1", got)
	}
	if eng.evals[0] != "monitor reset\n" {
		t.Errorf("script source = %q", eng.evals[0])
	}
	if eng.binds["target"] != targetFile {
		t.Errorf("target bound to %q, want %q", eng.binds["target"], targetFile)
	}
	if got := tr.callCount("detach"); got != 1 {
		t.Errorf("detach called %d times, want 1", got)
	}
}

func TestRunVerifyFailureWithoutFailSafeSkipsScript(t *testing.T) {
	targetFile := writeTarget(t, make([]byte, 64))
	script := filepath.Join(t.TempDir(), "recover.bms")
	if err := os.WriteFile(script, []byte("monitor reset\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := newFakeTransport()
	tr.verifyErr = errors.New("mismatch at 0x00000100")
	eng := newRecordingEngine()

	session := NewSession(targetFile, target.DefaultOptions())
	session.PostScript = script
	m := New(session, Config{
		Transport:    tr,
		Log:          sessionlog.New(),
		Engine:       eng,
		PollInterval: time.Millisecond,
	})
	m.Submit(ReqDownload)
	err := m.Run(context.Background())
	if err == nil || !errors.Is(err, tr.verifyErr) {
		t.Fatalf("Run() = %v, want verify error", err)
	}
	if st := m.Session().State; st != StateIdle {
		t.Fatalf("resting state = %s, want Idle", st)
	}
	if got := eng.evalCount(); got != 0 {
		t.Errorf("script evaluated %d times, want 0", got)
	}
	if got := tr.callCount("detach"); got != 1 {
		t.Errorf("detach called %d times, want 1", got)
	}
}

func TestRunSkipDownloadLeavesFlashAndSerialAlone(t *testing.T) {
	// 32-byte vector table, then a serialization placeholder.
	content := make([]byte, 64)
	copy(content[40:], "SERIAL=XXXXXX")
	targetFile := writeTarget(t, content)

	opts := target.DefaultOptions()
	opts.Driver = "lpc812"
	opts.FullErase = true
	opts.Serialize = patch.SerializeConfig{
		Mode:    patch.ModePattern,
		Pattern: "SERIAL=",
		Width:   4,
		Format:  patch.FormatASCII,
	}
	opts.SerialValue = "500"

	tr := newFakeTransport()
	m := newTestMachine(t, targetFile, opts, tr)
	m.Session().SkipDownload = true
	m.Submit(ReqDownload)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if tr.callCount("write") != 0 {
		t.Errorf("dry run wrote flash: %v", tr.calls)
	}
	if tr.callCount("erase "+fmt.Sprint(tr.flashSize)) != 0 {
		t.Errorf("dry run erased flash: %v", tr.calls)
	}
	if tr.callCount("verify") != 1 {
		t.Errorf("dry run skipped verify: %v", tr.calls)
	}

	// The serial number is stamped into the in-memory image but the counter
	// does not advance and no log entry is written.
	if got := m.Session().Serial.Current(); got != 500 {
		t.Errorf("serial counter = %d, want 500 (unchanged)", got)
	}
	if _, err := os.Stat(targetFile + ".log"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run wrote a download log entry: %v", err)
	}
	span, err := m.Session().Image.FindSpan(40, 4)
	if err != nil {
		t.Fatal(err)
	}
	if string(span) != "0500" {
		t.Errorf("stamped serial = %q, want %q", span, "0500")
	}
}

func TestRunSerialAdvancesAfterDownload(t *testing.T) {
	content := make([]byte, 64)
	copy(content[40:], "SERIAL=XXXXXX")
	targetFile := writeTarget(t, content)

	opts := target.DefaultOptions()
	opts.Driver = "lpc812"
	opts.Serialize = patch.SerializeConfig{
		Mode:    patch.ModePattern,
		Pattern: "SERIAL=",
		Width:   4,
		Format:  patch.FormatASCII,
	}
	opts.SerialValue = "500"
	opts.SerialStep = 2

	tr := newFakeTransport()
	m := newTestMachine(t, targetFile, opts, tr)
	m.Submit(ReqDownload)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if got := m.Session().Serial.Current(); got != 502 {
		t.Errorf("serial counter = %d, want 502", got)
	}
	if opts.SerialValue != "502" {
		t.Errorf("persisted serial value = %q, want %q", opts.SerialValue, "502")
	}
}

func TestRunAbortDuringDownload(t *testing.T) {
	targetFile := writeTarget(t, make([]byte, 10000)) // three write chunks

	opts := target.DefaultOptions()
	opts.Driver = "lpc812"

	tr := newFakeTransport()
	tr.writeStarted = make(chan struct{}, 8)
	tr.writeGate = make(chan struct{})

	m := newTestMachine(t, targetFile, opts, tr)
	m.Submit(ReqDownload)

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	// Abort while the first chunk write is in flight; the worker observes
	// the flag before the next chunk.
	<-tr.writeStarted
	m.Abort()
	close(tr.writeGate)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run() = nil, want abort error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after abort")
	}
	if st := m.Session().State; st != StateIdle {
		t.Fatalf("resting state = %s, want Idle", st)
	}
	if got := tr.callCount("write"); got >= 3 {
		t.Errorf("WriteFlash called %d times after abort, want fewer than 3", got)
	}
	if tr.callCount("verify") != 0 {
		t.Errorf("verify ran after aborted download: %v", tr.calls)
	}
}

func TestRunDiagnosticBlankCheck(t *testing.T) {
	targetFile := writeTarget(t, make([]byte, 64))
	tr := newFakeTransport()
	m := newTestMachine(t, targetFile, target.DefaultOptions(), tr)
	m.Submit(ReqBlankCheck)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if tr.callCount("monitor blank check") != 1 {
		t.Errorf("blank check monitor command not sent: %v", tr.calls)
	}
	if tr.callCount("detach") != 1 {
		t.Errorf("diagnostic did not detach: %v", tr.calls)
	}
}

func TestRunDumpFlash(t *testing.T) {
	targetFile := writeTarget(t, make([]byte, 64))
	tr := newFakeTransport()
	tr.flashSize = 128

	m := newTestMachine(t, targetFile, target.DefaultOptions(), tr)
	m.Session().DumpPath = filepath.Join(t.TempDir(), "out.dump")
	m.Submit(ReqDumpFlash)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	data, err := os.ReadFile(m.Session().DumpPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 128 {
		t.Errorf("dump size = %d, want 128", len(data))
	}
}
