package probe

import (
	"context"
	"fmt"
)

// CallbackCode classifies a transport status callback.
type CallbackCode int

const (
	// CodeStatus carries a human-readable status line.
	CodeStatus CallbackCode = iota
	// CodeProgress carries a progress percentage (0-100) as decimal text.
	CodeProgress
	// CodeReply carries the text of a monitor-command reply from the probe.
	CodeReply
	// CodeError carries a transport-reported error message.
	CodeError
)

// Callback receives status and progress from the transport. It is invoked
// synchronously from whichever goroutine is driving the transport, so it
// must not block.
type Callback func(code CallbackCode, message string)

// AttachOptions control how the probe attaches to the target.
type AttachOptions struct {
	// UnderReset holds the target in reset while attaching. Needed for parts
	// whose application code disables the debug port.
	UnderReset bool
	// TargetPower makes the probe supply power to the target.
	TargetPower bool
}

// Transport is the contract the flash orchestrator consumes. Implementations
// must be safe to call from the orchestrator goroutine and at most one
// worker goroutine, never concurrently. All blocking calls honor their
// context; the transport's own timeouts keep each call short.
type Transport interface {
	// Connect opens the probe selected by selector (implementation-defined:
	// serial number, host:port, or empty for the first probe found).
	Connect(ctx context.Context, selector string) error
	// Attach connects the probe to the target core.
	Attach(ctx context.Context, opts AttachOptions) error
	// Detach releases the target. keepPower leaves probe-supplied target
	// power on.
	Detach(keepPower bool)
	// Monitor sends a probe monitor command. Replies arrive via CodeReply
	// callbacks.
	Monitor(ctx context.Context, cmd string) error
	// EraseFull erases at least size bytes of flash from the base.
	EraseFull(ctx context.Context, size uint32) error
	// WriteFlash programs data at the given target address.
	WriteFlash(ctx context.Context, addr uint32, data []byte) error
	// ReadFlash reads size bytes from the given target address.
	ReadFlash(ctx context.Context, addr uint32, size uint32) ([]byte, error)
	// Verify compares written flash against the staged image on the probe
	// side.
	Verify(ctx context.Context) error
	// FlashTotal returns the target's flash size in bytes.
	FlashTotal(ctx context.Context) (uint32, error)
	// SetCallback installs the status callback. Must be called before any
	// other method.
	SetCallback(cb Callback)
	// Close releases the probe connection.
	Close() error
}

// TransportError wraps a failed transport operation.
type TransportError struct {
	// Op is the operation that failed ("connect", "attach", ...)
	Op string
	// Underlying error
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("probe %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
