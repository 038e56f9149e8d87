package pipeline

import (
	"sync"
	"time"

	"github.com/roc-streaming/rocpipe/internal/taskqueue"
)

// Scheduler is the Pipeline's drainage callback, per spec §6.3: it re-arms
// (or cancels) a single `drain_tasks`-equivalent operation at a computed
// deadline. A Pipeline is agnostic to how that's implemented; tests supply
// a stub that records calls instead of touching a real Task Queue, exactly
// as the original's TestPipeline implements ITaskScheduler itself rather
// than driving a real roc_ctl::TaskQueue (see
// original_source/.../test_task_pipeline.cpp).
type Scheduler interface {
	// ScheduleTaskProcessing (re-)arms drainage for the given pipeline to
	// fire at deadline (absolute, per the pipeline's clock).
	ScheduleTaskProcessing(p *Pipeline, deadline time.Duration)
	// CancelTaskProcessing cancels any armed drainage for the pipeline.
	CancelTaskProcessing(p *Pipeline)
}

// QueueScheduler is the production Scheduler, grounded on
// roc_ctl::ControlLoop: it owns one reusable taskqueue.Task per pipeline
// (the `drain_tasks` task) and implements scheduling/cancellation via
// taskqueue.Queue.RescheduleAt/AsyncCancel on that task.
type QueueScheduler struct {
	queue *taskqueue.Queue

	mu    sync.Mutex
	tasks map[*Pipeline]*taskqueue.Task
}

// NewQueueScheduler creates a Scheduler backed by queue. The same
// QueueScheduler may drive multiple pipelines; each gets its own drain
// task, lazily created on first use.
func NewQueueScheduler(queue *taskqueue.Queue) *QueueScheduler {
	return &QueueScheduler{
		queue: queue,
		tasks: make(map[*Pipeline]*taskqueue.Task),
	}
}

func (s *QueueScheduler) drainTaskFor(p *Pipeline) *taskqueue.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[p]; ok {
		return t
	}
	t := taskqueue.NewTask(func() bool {
		p.processTasks()
		return true
	}, nil)
	s.tasks[p] = t
	return t
}

// ScheduleTaskProcessing implements Scheduler.
func (s *QueueScheduler) ScheduleTaskProcessing(p *Pipeline, deadline time.Duration) {
	task := s.drainTaskFor(p)

	delay := deadline - p.now()
	if delay < 0 {
		delay = 0
	}

	// RescheduleAt's idle/finished case behaves exactly like ScheduleAt
	// (spec §4.1), so a single call handles both "first arm" and
	// "re-arm" uniformly.
	s.queue.RescheduleAt(task, delay)
}

// CancelTaskProcessing implements Scheduler.
func (s *QueueScheduler) CancelTaskProcessing(p *Pipeline) {
	s.mu.Lock()
	task, ok := s.tasks[p]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.queue.AsyncCancel(task)
}
