package taskqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/roc-streaming/rocpipe/internal/clock"
	"github.com/roc-streaming/rocpipe/pkg/logging"
)

// Queue is a deadline-ordered, cancellable, completion-notifying task
// dispatcher running on a single background worker goroutine. It
// corresponds to roc_ctl::TaskQueue.
//
// Submitting a task to a stopped queue, submitting an already pending task
// through Schedule/ScheduleAt/ScheduleAndWait, stopping the queue with tasks
// still pending, or using a negative delay are all programming errors and
// panic, matching the original's roc_panic calls. (RescheduleAt accepts a
// pending task; dropping a pending task is not detected.)
type Queue struct {
	logger *logging.Logger
	clock  clock.Clock
	timer  *clock.DeadlineTimer

	mu       sync.Mutex
	finished sync.Cond // signaled whenever any task transitions to finished

	pending          *Task // head of the intrusive pending list, ordered by deadline
	pendingTail      *Task
	firstWithDeadline *Task // cached first task with deadline != 0, for O(pending-with-deadline) insertion

	current          *Task // task currently executing, or nil
	rescheduleWanted bool  // set by RescheduleAt when current is executing
	rescheduleTo     time.Duration

	stopped bool
	started bool
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithClock overrides the queue's clock (primarily for testing).
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithLogger attaches a logger to the queue.
func WithLogger(logger *logging.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// NewQueue creates and starts a task queue. Its background worker runs
// until StopAndWait is called.
func NewQueue(options ...Option) *Queue {
	q := &Queue{
		clock:  clock.NewSystemClock(),
		logger: logging.RootLogger.Sublogger("taskqueue"),
	}
	for _, opt := range options {
		opt(q)
	}
	q.finished.L = &q.mu
	q.timer = clock.NewDeadlineTimer(q.clock)
	q.started = true

	go q.run()

	return q
}

// Schedule enqueues task (created via NewTask) for immediate execution
// (deadline zero, see deadlineFor). Its completion handler, if any, is invoked on the
// queue's worker goroutine after the task finishes.
func (q *Queue) Schedule(task *Task) {
	q.ScheduleAt(task, 0)
}

// ScheduleAt enqueues task to become eligible at the given delay from now
// (zero means immediately).
func (q *Queue) ScheduleAt(task *Task, delay time.Duration) {
	if delay < 0 {
		panic("roc/ctl: task queue: delay can't be negative")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.checkValidLocked()

	q.setSchedulingParamsLocked(task, delay)
	q.scheduleLocked(task)
}

// ScheduleAndWait enqueues task and blocks until it has finished. It
// returns true iff the task succeeded.
func (q *Queue) ScheduleAndWait(task *Task) bool {
	q.mu.Lock()
	q.checkValidLocked()
	q.setSchedulingParamsLocked(task, 0)
	q.scheduleLocked(task)
	for task.st == statePending {
		q.finished.Wait()
	}
	result := task.result
	q.mu.Unlock()

	return result == ResultSucceeded
}

// RescheduleAt sets a new deadline for task. Behavior depends on the task's
// current state (spec §4.1 "reschedule_at semantics"):
//
//   - idle or finished: behaves like ScheduleAt, reusing the existing
//     handler/body.
//   - pending: removed and re-inserted at the new deadline.
//   - currently executing: the reschedule is deferred — the worker
//     re-enqueues the task with the new deadline once the in-progress
//     handler invocation returns. That in-progress execution still runs
//     to completion and still invokes the completion handler; the
//     re-scheduled run invokes it again.
func (q *Queue) RescheduleAt(task *Task, delay time.Duration) {
	if delay < 0 {
		panic("roc/ctl: task queue: delay can't be negative")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.checkValidLocked()
	q.rescheduleLocked(task, delay)
}

// AsyncCancel marks task for cancellation. If the task has not yet been
// picked up by the worker, it moves to the head of the queue (deadline
// reset to zero) so the cancellation is serviced promptly. If the worker
// has already detached the task (or it isn't pending at all), this is a
// no-op: per spec §9, the race is resolved in favor of the worker —
// cancellation loses if the task has already left the pending list.
// Calling AsyncCancel twice is equivalent to calling it once.
func (q *Queue) AsyncCancel(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.checkValidLocked()
	q.cancelLocked(task)
}

// Wait blocks until task has finished, returning immediately if it already
// has.
func (q *Queue) Wait(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for task.st != stateFinished {
		q.finished.Wait()
	}
}

// CancelAndWait is a convenience combination of AsyncCancel and Wait.
func (q *Queue) CancelAndWait(task *Task) {
	q.mu.Lock()
	q.checkValidLocked()
	q.cancelLocked(task)
	for task.st != stateFinished {
		q.finished.Wait()
	}
	q.mu.Unlock()
}

// StopAndWait terminates the worker goroutine. There must be no pending
// tasks at the time of the call; violating this is a programming error and
// panics, matching the original's precondition.
func (q *Queue) StopAndWait() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	if q.pending != nil {
		q.mu.Unlock()
		panic("roc/ctl: task queue: attempt to stop before finishing all tasks")
	}
	q.stopped = true
	q.mu.Unlock()

	// Wake the worker immediately so it observes the stop flag without
	// waiting for any timer.
	q.timer.SetDeadline(0)

	q.mu.Lock()
	for q.started {
		q.finished.Wait()
	}
	q.mu.Unlock()
}

// checkValidLocked panics if the queue has already been stopped. Must be
// called with mu held.
func (q *Queue) checkValidLocked() {
	if q.stopped {
		panic("roc/ctl: task queue: attempt to use queue after stop_and_wait")
	}
}

// setSchedulingParamsLocked installs the deadline for a fresh (idle or
// finished) scheduling of task, panicking if it's currently pending (the Go
// equivalent of re-scheduling a task before it finishes). The task's
// handler/onFinished are bound once at NewTask time and are never replaced
// here, matching the original's reuse of the handler pointer across
// re-submissions (spec §9, first ambiguity).
func (q *Queue) setSchedulingParamsLocked(task *Task, delay time.Duration) {
	if task.st == statePending {
		panic("roc/ctl: task queue: attempt to re-schedule task before finishing it")
	}
	task.deadline = q.deadlineFor(delay)
}

// deadlineFor converts a relative delay into an absolute deadline, per the
// queue's clock. Zero delay maps to the zero deadline ("immediate"), never
// to "now" verbatim, preserving the original's FIFO-among-immediate-tasks
// ordering.
func (q *Queue) deadlineFor(delay time.Duration) time.Duration {
	if delay == 0 {
		return 0
	}
	return q.clock.Now() + delay
}

// scheduleLocked resets task to pending and inserts it into the pending
// list, then recomputes the wakeup timer. Must be called with mu held.
func (q *Queue) scheduleLocked(task *Task) {
	if q.stopped {
		panic("roc/ctl: task queue: attempt to schedule task after stop_and_wait")
	}

	task.st = statePending
	task.result = resultUnset
	task.cancelRequested = false

	q.logger.Tracef("enqueuing task deadline=%d", task.deadline)

	q.insertPendingLocked(task)
	q.updateDeadlineLocked()
}

// rescheduleLocked implements the three-way reschedule_at semantics.
func (q *Queue) rescheduleLocked(task *Task, delay time.Duration) {
	if q.stopped {
		panic("roc/ctl: task queue: attempt to reschedule task after stop_and_wait")
	}

	q.logger.Tracef("rescheduling task")

	switch {
	case task.inList:
		q.removePendingLocked(task)
		task.deadline = q.deadlineFor(delay)
		q.scheduleLocked(task)
	case q.current == task:
		task.deadline = q.deadlineFor(delay)
		q.rescheduleWanted = true
		q.rescheduleTo = task.deadline
	default:
		task.deadline = q.deadlineFor(delay)
		q.scheduleLocked(task)
	}
}

// cancelLocked implements AsyncCancel. Must be called with mu held.
func (q *Queue) cancelLocked(task *Task) {
	if q.stopped {
		panic("roc/ctl: task queue: attempt to cancel task after stop_and_wait")
	}

	if !task.inList {
		// Either not pending at all, or already detached by the worker:
		// cancellation loses this race, per spec §9.
		return
	}

	q.logger.Tracef("requesting cancellation")
	task.cancelRequested = true

	if task.deadline != 0 {
		q.removePendingLocked(task)
		task.deadline = 0
		q.insertPendingLocked(task)
		q.updateDeadlineLocked()
	}
}

// insertPendingLocked inserts task into the pending list in deadline order:
// all deadline == 0 tasks first (FIFO among themselves), then tasks ordered
// by non-decreasing deadline (FIFO among equal deadlines). Uses
// firstWithDeadline as a cached starting point so insertion is O(number of
// deadlined tasks already pending), not O(total pending).
func (q *Queue) insertPendingLocked(task *Task) {
	pos := q.firstWithDeadline
	for pos != nil && pos.deadline <= task.deadline {
		pos = pos.next
	}

	if pos != nil {
		q.insertBeforeLocked(task, pos)
	} else {
		q.appendLocked(task)
	}

	if q.firstWithDeadline == pos && task.deadline != 0 {
		q.firstWithDeadline = task
	}
}

func (q *Queue) appendLocked(task *Task) {
	task.prev = q.pendingTail
	task.next = nil
	if q.pendingTail != nil {
		q.pendingTail.next = task
	} else {
		q.pending = task
	}
	q.pendingTail = task
	task.inList = true
}

func (q *Queue) insertBeforeLocked(task, pos *Task) {
	task.prev = pos.prev
	task.next = pos
	if pos.prev != nil {
		pos.prev.next = task
	} else {
		q.pending = task
	}
	pos.prev = task
	task.inList = true
}

func (q *Queue) removePendingLocked(task *Task) {
	if q.firstWithDeadline == task {
		q.firstWithDeadline = task.next
	}
	if task.prev != nil {
		task.prev.next = task.next
	} else {
		q.pending = task.next
	}
	if task.next != nil {
		task.next.prev = task.prev
	} else {
		q.pendingTail = task.prev
	}
	task.prev, task.next = nil, nil
	task.inList = false
}

// updateDeadlineLocked recomputes the wakeup timer deadline from the front
// of the pending list.
func (q *Queue) updateDeadlineLocked() {
	var deadline time.Duration
	if q.pending != nil {
		deadline = q.pending.deadline
	} else {
		deadline = clock.DeadlineNone
	}
	q.timer.SetDeadline(deadline)
}

// run is the worker goroutine's entry point, implementing spec §4.1's
// "Worker algorithm".
func (q *Queue) run() {
	q.logger.Debug("worker starting")
	defer q.logger.Debug("worker terminated")

	for {
		q.timer.WaitDeadline()

		task, shouldStop := q.beginProcessing()
		if task == nil {
			if shouldStop {
				break
			}
			continue
		}

		q.process(task)
		q.endProcessing()
	}

	q.mu.Lock()
	q.started = false
	q.finished.Broadcast()
	q.mu.Unlock()
}

// beginProcessing pops the next eligible task off the pending list, if any
// is ready. It returns (nil, false) on a spurious wakeup and (nil, true)
// when the queue has been stopped and there's nothing left to do.
func (q *Queue) beginProcessing() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.pending
	if front == nil || front.deadline > q.clock.Now() {
		q.updateDeadlineLocked()
		return nil, q.stopped
	}

	q.removePendingLocked(front)
	q.updateDeadlineLocked()
	q.current = front

	return front, false
}

// process executes a single task (or marks it cancelled), outside the
// queue's mutex so other callers can keep submitting/cancelling tasks
// concurrently.
func (q *Queue) process(task *Task) {
	if task.cancelRequested {
		q.logger.Trace("cancelling task")
		task.result = ResultCancelled
	} else {
		q.logger.Trace("processing task")
		task.result = q.runBody(task)
	}

	task.st = stateFinished

	if task.onFinished != nil {
		task.onFinished(task)
	}
}

// runBody invokes the task's handler, converting its boolean return into a
// Result. A nil handler (a task scheduled with no body, which should not
// normally happen) is treated as an immediate failure, and so is a handler
// that panics.
func (q *Queue) runBody(task *Task) (result Result) {
	if task.handler == nil {
		q.logger.Error("task has no body")
		return ResultFailed
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("task panicked: %v", r)
			result = ResultFailed
		}
	}()
	if task.handler() {
		return ResultSucceeded
	}
	return ResultFailed
}

// endProcessing finalizes a task's execution: broadcasts completion,
// re-enqueues the task if a reschedule was requested while it ran, and
// clears the "currently executing" marker.
func (q *Queue) endProcessing() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.finished.Broadcast()

	if q.rescheduleWanted {
		q.rescheduleWanted = false
		task := q.current
		task.deadline = q.rescheduleTo
		q.scheduleLocked(task)
	}

	q.current = nil
}

// String implements fmt.Stringer for debug dumps.
func (q *Queue) String() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for t := q.pending; t != nil; t = t.next {
		n++
	}
	return fmt.Sprintf("taskqueue(pending=%d, stopped=%v)", n, q.stopped)
}
