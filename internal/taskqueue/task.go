// Package taskqueue implements a deadline-ordered, cancellable,
// completion-notifying task dispatcher backed by a single background
// worker. It is a faithful port of roc_ctl::TaskQueue from the Roc Toolkit's
// control layer (see _examples/original_source/src/modules/roc_ctl for the
// reference implementation this package is grounded on).
package taskqueue

import (
	"time"
)

// Result is a task's execution outcome, meaningful only once the task has
// finished (see Task.Finished).
type Result int

const (
	// resultUnset is the zero value, held before a task finishes; Task.Result
	// returns it (String "unset") for a task that has not finished.
	resultUnset Result = iota
	// ResultSucceeded indicates the task's handler reported success.
	ResultSucceeded
	// ResultFailed indicates the task's handler reported failure.
	ResultFailed
	// ResultCancelled indicates the task was cancelled before it ran.
	ResultCancelled
)

// String returns a human-readable name for the result.
func (r Result) String() string {
	switch r {
	case ResultSucceeded:
		return "succeeded"
	case ResultFailed:
		return "failed"
	case ResultCancelled:
		return "cancelled"
	default:
		return "unset"
	}
}

// state is a task's lifecycle state, per spec §3.1.
type state int

const (
	stateIdle state = iota
	statePending
	stateFinished
)

// Handler is a task's body: the user-supplied work a Queue executes on its
// worker goroutine. It returns true on success, false on failure; a panic
// is recovered and reported as a failure, and non-nil errors are not
// distinguished at this layer (callers that want
// richer error reporting should capture the error themselves and fold it
// into the boolean, or stash it on their own Task subtype).
type Handler func() bool

// CompletionHandler is invoked on the queue's worker goroutine exactly once
// per pending-to-finished transition, per spec §3.1.
type CompletionHandler func(*Task)

// Task is a single unit of control-plane work. The zero value is a valid,
// idle task. A Task is owned by its submitter; the queue only borrows it for
// the duration of a pending-to-finished transition (including handler
// invocation). A Task must never be destroyed/reused for something else
// while pending — this package cannot prevent that in Go the way the
// original's destructor-time panic does, but queue methods that are called
// out of turn (e.g. scheduling an already-pending task) panic immediately.
type Task struct {
	// handler is the user-supplied body executed by the worker.
	handler Handler
	// onFinished is the optional completion callback.
	onFinished CompletionHandler

	// deadline is the absolute instant (per the queue's clock) at which
	// the task becomes eligible for execution. Zero means "immediate";
	// see insertPendingLocked for exact FIFO/deadline-order semantics.
	deadline time.Duration
	// st is the task's lifecycle state, guarded by the owning queue's mutex.
	st state
	// result is meaningful only once st == stateFinished. Readers must
	// only observe it after the queue establishes a happens-before edge
	// via its mutex (or via Wait's condition variable).
	result Result
	// cancelRequested is set by AsyncCancel.
	cancelRequested bool

	// Intrusive doubly-linked list fields for the pending queue, avoiding
	// any allocation at schedule time. Guarded by the owning queue's mutex.
	prev, next *Task
	inList     bool
}

// NewTask creates an idle task with the given body and optional completion
// handler, ready to be submitted via Queue.Schedule/ScheduleAt/
// ScheduleAndWait. Mirrors the original's "tasks carry a per-instance
// function pointer selecting the body" (spec §9): the handler is bound once,
// at construction, not re-specified on every call that (re-)submits it.
func NewTask(handler Handler, onFinished CompletionHandler) *Task {
	return &Task{handler: handler, onFinished: onFinished}
}

// Result returns the task's result. It is only meaningful once Finished
// reports true; before that it returns the zero Result.
func (t *Task) Result() Result {
	return t.result
}

// Finished reports whether the task has completed (executed or cancelled).
// Safe to call at any time; for a synchronized view relative to a specific
// queue, prefer Queue.Wait.
func (t *Task) Finished() bool {
	return t.st == stateFinished
}

// Succeeded reports whether the task finished and succeeded.
func (t *Task) Succeeded() bool {
	return t.st == stateFinished && t.result == ResultSucceeded
}

// Cancelled reports whether the task finished due to cancellation.
func (t *Task) Cancelled() bool {
	return t.st == stateFinished && t.result == ResultCancelled
}
