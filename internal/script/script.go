// Package script defines the post-process scripting contract.
//
// Burnmate itself does not interpret scripts; an external engine does. This
// package holds the interface the orchestrator drives and the bounded reply
// queue that lets a script wait for probe monitor replies: the orchestrator
// produces replies as the transport delivers them, and the post-process
// worker consumes them with a polled, yielding wait.
package script

import (
	"context"
	"sync"
	"time"
)

// Engine is the external scripting collaborator. Implementations evaluate a
// script source with command handlers and variable bindings registered
// beforehand.
type Engine interface {
	// RegisterCommand makes a named command callable from scripts.
	RegisterCommand(name string, fn func(args []string) (string, error))
	// Bind exposes a named variable value to scripts.
	Bind(name, value string)
	// Eval runs a script source to completion or ctx cancellation.
	Eval(ctx context.Context, source string) error
}

// DefaultReplyCapacity bounds the reply queue. Replies beyond the bound
// displace the oldest entry; a script that falls behind loses history, not
// liveness.
const DefaultReplyCapacity = 64

// ReplyQueue is a bounded FIFO of probe reply lines with a polling consumer.
type ReplyQueue struct {
	mu       sync.Mutex
	replies  []string
	capacity int
}

// NewReplyQueue creates a queue with the given capacity (or
// DefaultReplyCapacity when cap < 1).
func NewReplyQueue(capacity int) *ReplyQueue {
	if capacity < 1 {
		capacity = DefaultReplyCapacity
	}
	return &ReplyQueue{capacity: capacity}
}

// Push appends a reply, dropping the oldest entry when full.
func (q *ReplyQueue) Push(reply string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.replies) >= q.capacity {
		q.replies = q.replies[1:]
	}
	q.replies = append(q.replies, reply)
}

// Pop removes and returns the oldest reply, if any.
func (q *ReplyQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.replies) == 0 {
		return "", false
	}
	reply := q.replies[0]
	q.replies = q.replies[1:]
	return reply, true
}

// Wait polls for a reply until one arrives, timeout elapses, or ctx is
// canceled. The poll yields between attempts, which is the only suspension
// point a post-process worker has.
func (q *ReplyQueue) Wait(ctx context.Context, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if reply, ok := q.Pop(); ok {
			return reply, true
		}
		if time.Now().After(deadline) {
			return "", false
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Len returns the number of queued replies.
func (q *ReplyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.replies)
}

// NopEngine is an Engine that accepts everything and runs nothing. Used when
// no post-process script is configured.
type NopEngine struct{}

func (NopEngine) RegisterCommand(string, func([]string) (string, error)) {}
func (NopEngine) Bind(string, string)                                    {}
func (NopEngine) Eval(context.Context, string) error                     { return nil }
