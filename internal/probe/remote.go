package probe

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/burnmate/internal/logging"
)

// DefaultCallTimeout bounds a single daemon round trip when the caller's
// context carries no deadline. Individual flash operations are chunked by
// the daemon, so every round trip is short.
const DefaultCallTimeout = 30 * time.Second

// request is one command to the probe daemon.
type request struct {
	Op          string `json:"op"`
	Selector    string `json:"selector,omitempty"`
	Cmd         string `json:"cmd,omitempty"`
	Addr        uint32 `json:"addr,omitempty"`
	Size        uint32 `json:"size,omitempty"`
	Data        string `json:"data,omitempty"` // hex-encoded
	UnderReset  bool   `json:"under_reset,omitempty"`
	TargetPower bool   `json:"target_power,omitempty"`
	KeepPower   bool   `json:"keep_power,omitempty"`
}

// message is anything the daemon sends: either an async event (status,
// progress, reply) or the response to the in-flight request.
type message struct {
	Event string `json:"event,omitempty"`
	Msg   string `json:"msg,omitempty"`
	Ok    *bool  `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
	Data  string `json:"data,omitempty"` // hex-encoded
}

// Remote is a Transport backed by a networked probe daemon speaking JSON
// over a websocket. At most one request is in flight at a time; events
// interleaved with the response are dispatched to the callback as they
// arrive.
type Remote struct {
	addr   string
	logger *zap.Logger

	mu   sync.Mutex // serializes round trips
	conn *websocket.Conn
	cb   Callback
}

// NewRemote creates a transport for the daemon at addr (host:port). No
// connection is made until Connect.
func NewRemote(addr string, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Remote{addr: addr, logger: logger}
}

// SetCallback installs the status callback.
func (r *Remote) SetCallback(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cb = cb
}

// Connect dials the daemon and selects a probe.
func (r *Remote) Connect(ctx context.Context, selector string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		u := url.URL{Scheme: "ws", Host: r.addr, Path: "/probe"}
		r.logger.Info("dialing probe daemon", zap.String("url", u.String()))
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return &TransportError{Op: "connect", Err: err}
		}
		r.conn = conn
	}

	_, err := r.roundTrip(ctx, request{Op: "connect", Selector: selector})
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	return nil
}

// Attach connects the probe to the target core.
func (r *Remote) Attach(ctx context.Context, opts AttachOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.roundTrip(ctx, request{
		Op:          "attach",
		UnderReset:  opts.UnderReset,
		TargetPower: opts.TargetPower,
	})
	if err != nil {
		return &TransportError{Op: "attach", Err: err}
	}
	return nil
}

// Detach releases the target. Failures are logged, not returned: detach is
// always best effort.
func (r *Remote) Detach(keepPower bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCallTimeout)
	defer cancel()
	if _, err := r.roundTrip(ctx, request{Op: "detach", KeepPower: keepPower}); err != nil {
		r.logger.Warn("detach failed", zap.Error(err))
	}
}

// Monitor sends a probe monitor command.
func (r *Remote) Monitor(ctx context.Context, cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.roundTrip(ctx, request{Op: "monitor", Cmd: cmd})
	if err != nil {
		return &TransportError{Op: "monitor", Err: err}
	}
	return nil
}

// EraseFull erases at least size bytes of flash.
func (r *Remote) EraseFull(ctx context.Context, size uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.roundTrip(ctx, request{Op: "erase", Size: size})
	if err != nil {
		return &TransportError{Op: "erase", Err: err}
	}
	return nil
}

// WriteFlash programs data at addr.
func (r *Remote) WriteFlash(ctx context.Context, addr uint32, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.roundTrip(ctx, request{
		Op:   "write",
		Addr: addr,
		Data: hex.EncodeToString(data),
	})
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// ReadFlash reads size bytes from addr.
func (r *Remote) ReadFlash(ctx context.Context, addr uint32, size uint32) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.roundTrip(ctx, request{Op: "read", Addr: addr, Size: size})
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}
	data, err := hex.DecodeString(resp.Data)
	if err != nil {
		return nil, &TransportError{Op: "read", Err: fmt.Errorf("bad hex payload: %w", err)}
	}
	return data, nil
}

// Verify runs the daemon-side flash comparison.
func (r *Remote) Verify(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.roundTrip(ctx, request{Op: "verify"})
	if err != nil {
		return &TransportError{Op: "verify", Err: err}
	}
	return nil
}

// FlashTotal returns the target flash size reported by the daemon.
func (r *Remote) FlashTotal(ctx context.Context) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, err := r.roundTrip(ctx, request{Op: "flash-total"})
	if err != nil {
		return 0, &TransportError{Op: "flash-total", Err: err}
	}
	n, err := strconv.ParseUint(resp.Msg, 10, 32)
	if err != nil {
		return 0, &TransportError{Op: "flash-total", Err: fmt.Errorf("bad size %q: %w", resp.Msg, err)}
	}
	return uint32(n), nil
}

// Close tears down the daemon connection.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

// roundTrip sends one request and reads messages until the response arrives,
// dispatching interleaved events to the callback. Callers hold r.mu.
func (r *Remote) roundTrip(ctx context.Context, req request) (*message, error) {
	if r.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultCallTimeout)
	}
	_ = r.conn.SetWriteDeadline(deadline)
	_ = r.conn.SetReadDeadline(deadline)

	if err := r.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Op, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("read reply to %s: %w", req.Op, err)
		}
		if msg.Event != "" {
			r.dispatch(&msg)
			continue
		}
		if msg.Ok == nil {
			return nil, fmt.Errorf("malformed response to %s", req.Op)
		}
		if !*msg.Ok {
			return nil, fmt.Errorf("%s rejected: %s", req.Op, msg.Error)
		}
		return &msg, nil
	}
}

// dispatch forwards an async event to the installed callback.
func (r *Remote) dispatch(msg *message) {
	if r.cb == nil {
		return
	}
	switch msg.Event {
	case "status":
		r.cb(CodeStatus, msg.Msg)
	case "progress":
		r.cb(CodeProgress, msg.Msg)
	case "reply":
		r.cb(CodeReply, msg.Msg)
	case "error":
		r.cb(CodeError, msg.Msg)
	default:
		r.logger.Debug("ignoring unknown daemon event", zap.String("event", msg.Event))
	}
}
