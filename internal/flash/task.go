package flash

import (
	"errors"
	"sync/atomic"
)

// ErrTaskAborted is returned by worker functions that stopped because an
// abort was requested.
var ErrTaskAborted = errors.New("task aborted")

// TaskState is the four-state background task lifecycle.
type TaskState int32

const (
	TaskIdle TaskState = iota
	TaskRunning
	TaskCompleted
	TaskAborted
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Task runs one background phase (download or post-process) with a strict
// single-writer lifecycle: the orchestrator is the only writer of
// Idle->Running, the worker is the only writer of Running->{Completed,
// Aborted}, and the orchestrator resets a terminal state to Idle only after
// joining the worker. Abort is a request flag: the worker observes it at its
// next natural yield, there is no preemption.
type Task struct {
	state atomic.Int32
	abort atomic.Bool
	done  chan struct{}
	err   error // written by the worker before its terminal transition
}

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	return TaskState(t.state.Load())
}

// Start transitions Idle->Running and spawns the worker. fn receives an
// aborted() poll and should check it between units of work. Starting a task
// that is not Idle is a programming error and panics: the state machine
// never starts a phase while the previous one is unobserved.
func (t *Task) Start(fn func(aborted func() bool) error) {
	if !t.state.CompareAndSwap(int32(TaskIdle), int32(TaskRunning)) {
		panic("flash: Start on a task that is not idle")
	}
	t.abort.Store(false)
	t.err = nil
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		err := fn(t.abort.Load)
		t.err = err
		if t.abort.Load() || errors.Is(err, ErrTaskAborted) {
			t.state.Store(int32(TaskAborted))
			return
		}
		t.state.Store(int32(TaskCompleted))
	}()
}

// Abort requests cancellation. The task reaches TaskAborted only once the
// worker observes the flag and exits.
func (t *Task) Abort() {
	if t.State() == TaskRunning {
		t.abort.Store(true)
	}
}

// Finish joins a terminal worker, returns its error and resets the task to
// Idle. Must only be called after State() reported Completed or Aborted,
// which eliminates the join-before-exit race.
func (t *Task) Finish() error {
	s := t.State()
	if s != TaskCompleted && s != TaskAborted {
		panic("flash: Finish on a task that is not terminal")
	}
	<-t.done
	err := t.err
	t.state.Store(int32(TaskIdle))
	return err
}
