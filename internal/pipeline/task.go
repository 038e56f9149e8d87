// Package pipeline implements the task pipeline that serializes real-time
// frame processing against best-effort control-task execution on caller
// threads, with no dedicated worker thread of its own. It is grounded on
// roc_pipeline::TaskPipeline (see
// _examples/original_source/src/modules/roc_pipeline/task_pipeline.h/.cpp),
// using internal/taskqueue as its drainage scheduler exactly as the original
// uses roc_ctl::TaskQueue via roc_ctl::ControlLoop.
package pipeline

import "sync"

// taskState is a Task's pipeline-internal lifecycle state, distinct from
// (and layered on top of) the Task Queue's own task states: a PipelineTask
// never touches the Task Queue directly except through the shared
// drain_tasks task owned by Scheduler.
type taskState int

const (
	taskNew taskState = iota
	taskScheduled
	taskFinished
)

// Handler is a control-plane task's body, run with the pipeline's exclusive
// mutex held (either in-place inside Schedule, or later during drainage).
// It returns true on success.
type Handler func() bool

// CompletionHandler is invoked exactly once, after a task finishes,
// regardless of whether it ran in-place or was drained later.
type CompletionHandler func(*Task)

// Task is a single control-plane unit of work submitted to a Pipeline. The
// zero value is ready to use. Unlike taskqueue.Task, a Task here carries no
// deadline of its own: when it runs (in-place, in-frame, or asynchronously)
// is entirely the Pipeline's decision.
type Task struct {
	handler    Handler
	onFinished CompletionHandler

	st      taskState
	success bool

	wait chan struct{} // non-nil only when created via ScheduleAndWait

	prev, next *Task
	inList     bool
}

func newTask(handler Handler, onFinished CompletionHandler) *Task {
	return &Task{handler: handler, onFinished: onFinished}
}

// Finished reports whether the task has completed.
func (t *Task) Finished() bool {
	return t.st == taskFinished
}

// Succeeded reports whether the task finished and its handler returned true.
func (t *Task) Succeeded() bool {
	return t.st == taskFinished && t.success
}

// run executes the task's handler (or marks it finished with no handler),
// notifies its completion handler, and wakes any schedule_and_wait caller.
// It is always called with the pipeline's exclusive mutex held, per §4.2;
// callers here are the ones responsible for lock discipline.
func (t *Task) run() {
	if t.handler != nil {
		t.success = t.handler()
	} else {
		t.success = true
	}
	t.st = taskFinished

	if t.onFinished != nil {
		t.onFinished(t)
	}
	if t.wait != nil {
		close(t.wait)
	}
}

// fifo is the pipeline's task-FIFO: a lock-protected intrusive list of
// pipeline tasks awaiting drainage, distinct from the exclusive pipeline
// mutex per spec §3.4/§5.
type fifo struct {
	mu        sync.Mutex
	head, tail *Task
	count     int
}

func (f *fifo) push(t *Task) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	t.next = nil
	t.prev = f.tail
	if f.tail != nil {
		f.tail.next = t
	} else {
		f.head = t
	}
	f.tail = t
	t.inList = true
	f.count++
	return f.count
}

// pop removes and returns the front task, or nil if empty. The second
// return value is the count remaining after the pop.
func (f *fifo) pop() (*Task, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.head
	if t == nil {
		return nil, 0
	}
	f.head = t.next
	if f.head != nil {
		f.head.prev = nil
	} else {
		f.tail = nil
	}
	t.next, t.prev = nil, nil
	t.inList = false
	f.count--
	return t, f.count
}

func (f *fifo) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
