package taskqueue

import (
	"sync/atomic"
	"testing"
	"time"
)

// queueTestTimeout bounds how long any single test waits for asynchronous
// queue activity before failing.
const queueTestTimeout = 2 * time.Second

// TestScheduleAndWaitSucceeds verifies the basic round-trip: a scheduled
// task that returns true is reported as succeeded.
func TestScheduleAndWaitSucceeds(t *testing.T) {
	q := NewQueue()
	defer q.StopAndWait()

	task := NewTask(func() bool { return true }, nil)

	if !q.ScheduleAndWait(task) {
		t.Fatal("expected task to succeed")
	}
	if !task.Succeeded() {
		t.Fatal("expected task to report succeeded")
	}
}

// TestScheduleAndWaitFails verifies that a handler returning false is
// reported as failed, not succeeded or cancelled.
func TestScheduleAndWaitFails(t *testing.T) {
	q := NewQueue()
	defer q.StopAndWait()

	task := NewTask(func() bool { return false }, nil)

	if q.ScheduleAndWait(task) {
		t.Fatal("expected task to fail")
	}
	if task.Result() != ResultFailed {
		t.Fatalf("expected result %v, got %v", ResultFailed, task.Result())
	}
}

// TestFIFOOrderForImmediateTasks verifies that tasks submitted with no
// deadline execute in submission order (spec §8: "T1's handler is invoked
// before T2 begins execution").
func TestFIFOOrderForImmediateTasks(t *testing.T) {
	q := NewQueue()
	defer q.StopAndWait()

	var order []int
	done := make(chan struct{})

	var second *Task
	first := NewTask(func() bool {
		order = append(order, 1)
		return true
	}, func(*Task) {
		q.Schedule(second)
	})
	second = NewTask(func() bool {
		order = append(order, 2)
		return true
	}, func(*Task) {
		close(done)
	})

	q.Schedule(first)

	select {
	case <-done:
	case <-time.After(queueTestTimeout):
		t.Fatal("timed out waiting for tasks to finish")
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected execution order [1 2], got %v", order)
	}
}

// TestShuffledDeadlines reproduces spec §8 scenario 5: four tasks submitted
// with deadlines 1, 4, 2, 5 ms (in that submission order) must execute in
// deadline order: 1, 2, 4, 5.
func TestShuffledDeadlines(t *testing.T) {
	q := NewQueue()
	defer q.StopAndWait()

	completions := make(chan struct{}, 4)
	var order []int

	record := func(n int) Handler {
		return func() bool {
			order = append(order, n)
			completions <- struct{}{}
			return true
		}
	}

	deadlines := []time.Duration{1 * time.Millisecond, 4 * time.Millisecond, 2 * time.Millisecond, 5 * time.Millisecond}
	labels := []int{1, 4, 2, 5}

	for i, d := range deadlines {
		task := NewTask(record(labels[i]), nil)
		q.ScheduleAt(task, d)
	}

	for i := 0; i < 4; i++ {
		select {
		case <-completions:
		case <-time.After(queueTestTimeout):
			t.Fatalf("timed out waiting for task %d", i)
		}
	}

	expected := []int{1, 2, 4, 5}
	if len(order) != len(expected) {
		t.Fatalf("expected %d tasks to run, got %d", len(expected), len(order))
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("expected execution order %v, got %v", expected, order)
		}
	}
}

// TestCancellationDuringDelay reproduces spec §8 scenario 4: a task
// scheduled far in the future, cancelled before the worker picks it up,
// finishes promptly with result cancelled.
func TestCancellationDuringDelay(t *testing.T) {
	q := NewQueue()
	defer q.StopAndWait()

	handlerCalls := int32(0)
	var finishedResult Result
	finished := make(chan struct{})

	task := NewTask(func() bool {
		atomic.AddInt32(&handlerCalls, 1)
		return true
	}, func(tk *Task) {
		finishedResult = tk.Result()
		close(finished)
	})

	q.ScheduleAt(task, 999*time.Second)
	q.AsyncCancel(task)

	start := time.Now()
	q.Wait(task)
	if elapsed := time.Since(start); elapsed > queueTestTimeout {
		t.Fatalf("wait took too long: %v", elapsed)
	}

	select {
	case <-finished:
	case <-time.After(queueTestTimeout):
		t.Fatal("completion handler was never invoked")
	}

	if finishedResult != ResultCancelled {
		t.Fatalf("expected result %v, got %v", ResultCancelled, finishedResult)
	}
	if atomic.LoadInt32(&handlerCalls) != 0 {
		t.Fatal("handler body should not have run for a cancelled task")
	}
}

// TestIdempotentCancellation verifies that calling AsyncCancel twice is
// equivalent to calling it once (spec §8).
func TestIdempotentCancellation(t *testing.T) {
	q := NewQueue()
	defer q.StopAndWait()

	task := NewTask(func() bool { return true }, nil)
	q.ScheduleAt(task, 999*time.Second)

	q.AsyncCancel(task)
	q.AsyncCancel(task)

	q.Wait(task)
	if !task.Cancelled() {
		t.Fatalf("expected task to be cancelled, got result %v", task.Result())
	}
}

// TestRescheduleWhileExecuting reproduces spec §8 scenario 3: rescheduling
// a task from within its own handler causes the handler to be invoked a
// second time, at or after the new deadline.
func TestRescheduleWhileExecuting(t *testing.T) {
	q := NewQueue()
	defer q.StopAndWait()

	var runs int32
	secondRunAt := make(chan time.Time, 1)
	firstRunAt := time.Now()

	task := NewTask(nil, nil)
	task.handler = func() bool {
		n := atomic.AddInt32(&runs, 1)
		if n == 1 {
			q.RescheduleAt(task, 50*time.Millisecond)
		} else {
			secondRunAt <- time.Now()
		}
		return true
	}

	q.Schedule(task)

	select {
	case t2 := <-secondRunAt:
		if elapsed := t2.Sub(firstRunAt); elapsed < 50*time.Millisecond {
			t.Fatalf("second execution came %v after the first was submitted, before the 50ms reschedule delay", elapsed)
		}
	case <-time.After(queueTestTimeout):
		t.Fatal("timed out waiting for second execution")
	}

	if atomic.LoadInt32(&runs) != 2 {
		t.Fatalf("expected handler to run exactly twice, got %d", runs)
	}
}

// TestStopAndWaitPanicsWithPendingTasks verifies the stop_and_wait
// precondition: stopping a queue with pending work is a fatal misuse.
func TestStopAndWaitPanicsWithPendingTasks(t *testing.T) {
	q := NewQueue()

	task := NewTask(func() bool { return true }, nil)
	q.ScheduleAt(task, 999*time.Second)

	defer func() {
		if recover() == nil {
			t.Fatal("expected StopAndWait to panic with a pending task")
		}
		q.AsyncCancel(task)
		q.CancelAndWait(task)
	}()

	q.StopAndWait()
}

// TestScheduleAfterStopPanics verifies that submitting to a stopped queue
// is a fatal misuse.
func TestScheduleAfterStopPanics(t *testing.T) {
	q := NewQueue()
	q.StopAndWait()

	defer func() {
		if recover() == nil {
			t.Fatal("expected Schedule on a stopped queue to panic")
		}
	}()

	q.Schedule(NewTask(func() bool { return true }, nil))
}

// TestNegativeDelayPanics verifies that a negative delay is a fatal misuse.
func TestNegativeDelayPanics(t *testing.T) {
	q := NewQueue()
	defer q.StopAndWait()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a negative delay to panic")
		}
	}()

	q.ScheduleAt(NewTask(func() bool { return true }, nil), -1*time.Second)
}
