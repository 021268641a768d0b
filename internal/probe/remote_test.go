package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeDaemon runs a websocket probe daemon whose behavior per op is given by
// handler. The handler returns the messages to send for one request.
func fakeDaemon(t *testing.T, handler func(req request) []message) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/probe" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			for _, msg := range handler(req) {
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}))
}

func okResp() message {
	ok := true
	return message{Ok: &ok}
}

func failResp(errMsg string) message {
	ok := false
	return message{Ok: &ok, Error: errMsg}
}

func daemonAddr(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestRemoteConnectAndMonitor(t *testing.T) {
	var gotOps []string
	srv := fakeDaemon(t, func(req request) []message {
		gotOps = append(gotOps, req.Op)
		if req.Op == "monitor" {
			return []message{
				{Event: "reply", Msg: "option bytes erased"},
				okResp(),
			}
		}
		return []message{okResp()}
	})
	defer srv.Close()

	r := NewRemote(daemonAddr(srv), nil)
	var replies []string
	r.SetCallback(func(code CallbackCode, msg string) {
		if code == CodeReply {
			replies = append(replies, msg)
		}
	})
	defer r.Close()

	ctx := context.Background()
	if err := r.Connect(ctx, "probe-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := r.Monitor(ctx, "option erase"); err != nil {
		t.Fatalf("Monitor: %v", err)
	}

	if len(gotOps) != 2 || gotOps[0] != "connect" || gotOps[1] != "monitor" {
		t.Errorf("daemon saw ops %v", gotOps)
	}
	if len(replies) != 1 || replies[0] != "option bytes erased" {
		t.Errorf("replies = %v", replies)
	}
}

func TestRemoteRejectedOp(t *testing.T) {
	srv := fakeDaemon(t, func(req request) []message {
		if req.Op == "attach" {
			return []message{failResp("target not responding")}
		}
		return []message{okResp()}
	})
	defer srv.Close()

	r := NewRemote(daemonAddr(srv), nil)
	defer r.Close()
	ctx := context.Background()
	if err := r.Connect(ctx, ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	err := r.Attach(ctx, AttachOptions{UnderReset: true})
	if err == nil {
		t.Fatal("expected attach rejection")
	}
	if !strings.Contains(err.Error(), "target not responding") {
		t.Errorf("err = %v", err)
	}
}

func TestRemoteFlashTotalAndRead(t *testing.T) {
	srv := fakeDaemon(t, func(req request) []message {
		switch req.Op {
		case "flash-total":
			ok := true
			return []message{{Ok: &ok, Msg: "524288"}}
		case "read":
			ok := true
			return []message{{Ok: &ok, Data: "deadbeef"}}
		}
		return []message{okResp()}
	})
	defer srv.Close()

	r := NewRemote(daemonAddr(srv), nil)
	defer r.Close()
	ctx := context.Background()
	if err := r.Connect(ctx, ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	size, err := r.FlashTotal(ctx)
	if err != nil {
		t.Fatalf("FlashTotal: %v", err)
	}
	if size != 524288 {
		t.Errorf("size = %d", size)
	}

	data, err := r.ReadFlash(ctx, 0, 4)
	if err != nil {
		t.Fatalf("ReadFlash: %v", err)
	}
	if len(data) != 4 || data[0] != 0xDE || data[3] != 0xEF {
		t.Errorf("data = %x", data)
	}
}

func TestRemoteProgressEvents(t *testing.T) {
	srv := fakeDaemon(t, func(req request) []message {
		if req.Op == "write" {
			return []message{
				{Event: "progress", Msg: "50"},
				{Event: "progress", Msg: "100"},
				okResp(),
			}
		}
		return []message{okResp()}
	})
	defer srv.Close()

	r := NewRemote(daemonAddr(srv), nil)
	defer r.Close()
	var progress []string
	r.SetCallback(func(code CallbackCode, msg string) {
		if code == CodeProgress {
			progress = append(progress, msg)
		}
	})

	ctx := context.Background()
	if err := r.Connect(ctx, ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := r.WriteFlash(ctx, 0x0, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteFlash: %v", err)
	}
	if len(progress) != 2 || progress[1] != "100" {
		t.Errorf("progress = %v", progress)
	}
}
