package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/roc-streaming/rocpipe/internal/audio"
	rocclock "github.com/roc-streaming/rocpipe/internal/clock"
)

// pipelineTestTimeout bounds how long a test waits on a channel before
// failing.
const pipelineTestTimeout = 2 * time.Second

// startTime mirrors spec §8's concrete scenarios, which all start at
// T0 = 10,000,000 x 1s.
const startTime = 10_000_000 * time.Second

// stubScheduler is a Scheduler that records calls instead of driving a
// real task queue, exactly as the original's TestPipeline implements
// ITaskScheduler itself rather than exercising roc_ctl::TaskQueue (see
// original_source/.../test_task_pipeline.cpp).
type stubScheduler struct {
	mu        sync.Mutex
	scheduled bool
	deadline  time.Duration
}

func (s *stubScheduler) ScheduleTaskProcessing(_ *Pipeline, deadline time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = true
	s.deadline = deadline
}

func (s *stubScheduler) CancelTaskProcessing(_ *Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = false
}

func (s *stubScheduler) armedDeadline() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, s.scheduled
}

// nopProcessor processes frames by doing nothing and always succeeding.
type nopProcessor struct{}

func (nopProcessor) ProcessFrame(int) bool { return true }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = 48000 // divides evenly into the 5ms scenario frame
	return cfg
}

func newTestPipeline(clock *rocclock.VirtualClock, sched *stubScheduler, processor FrameProcessor) *Pipeline {
	return New(testConfig(), clock, sched, processor, nil)
}

// TestInPlaceFastPath reproduces spec §8 scenario 1: with no prior
// activity, schedule(t) completes synchronously and counts as in-place.
func TestInPlaceFastPath(t *testing.T) {
	clock := rocclock.NewVirtualClock(startTime)
	sched := &stubScheduler{}
	p := newTestPipeline(clock, sched, nopProcessor{})

	task := p.Schedule(func() bool { return true }, nil)

	if !task.Succeeded() {
		t.Fatal("expected task to succeed synchronously")
	}

	stats := p.Stats()
	if stats.TasksProcessedInPlace != 1 {
		t.Fatalf("expected 1 in-place task, got %d", stats.TasksProcessedInPlace)
	}
	if stats.SchedulerCalls != 0 {
		t.Fatalf("expected 0 scheduler calls, got %d", stats.SchedulerCalls)
	}
	if stats.Preemptions != 0 {
		t.Fatalf("expected 0 preemptions, got %d", stats.Preemptions)
	}
}

// TestProhibitedBandDeferral reproduces spec §8 scenario 2: a task
// submitted inside the prohibited band around the next frame deadline is
// deferred and drained by the following frame, not executed in-place.
func TestProhibitedBandDeferral(t *testing.T) {
	clock := rocclock.NewVirtualClock(startTime)
	sched := &stubScheduler{}
	p := newTestPipeline(clock, sched, nopProcessor{})

	frameSamples := 240 // 5ms @ 48kHz

	// First frame publishes next_frame_deadline = T0 + 5ms.
	if !p.ProcessFrameAndTasks(audio.Frame{Samples: frameSamples}) {
		t.Fatal("frame processing failed")
	}

	frameDeadline := startTime + 5*time.Millisecond
	clock.Set(frameDeadline - 100*time.Microsecond)

	task := p.Schedule(func() bool { return true }, nil)
	if task.Finished() {
		t.Fatal("expected task to be deferred, not executed in-place")
	}

	stats := p.Stats()
	if stats.SchedulerCalls != 1 {
		t.Fatalf("expected 1 scheduler call, got %d", stats.SchedulerCalls)
	}
	deadline, scheduled := sched.armedDeadline()
	if !scheduled {
		t.Fatal("expected drainage to be armed")
	}
	if deadline != frameDeadline+100*time.Microsecond {
		t.Fatalf("expected armed deadline %v, got %v", frameDeadline+100*time.Microsecond, deadline)
	}

	clock.Set(frameDeadline)
	if !p.ProcessFrameAndTasks(audio.Frame{Samples: frameSamples}) {
		t.Fatal("second frame processing failed")
	}

	if !task.Finished() || !task.Succeeded() {
		t.Fatal("expected deferred task to be drained by the following frame")
	}

	stats = p.Stats()
	if stats.TasksProcessedInFrame != 1 {
		t.Fatalf("expected 1 in-frame task, got %d", stats.TasksProcessedInFrame)
	}
	if stats.SchedulerCancellations != 1 {
		t.Fatalf("expected 1 scheduler cancellation, got %d", stats.SchedulerCancellations)
	}
}

// TestFramePreemptsTask reproduces spec §8 scenario 6: a frame call that
// contends with an in-progress in-place task execution blocks on the
// exclusive mutex until the task finishes, recording a preemption; any
// task enqueued meanwhile is drained inside the frame rather than through a
// fresh scheduler request.
func TestFramePreemptsTask(t *testing.T) {
	clock := rocclock.NewVirtualClock(startTime)
	sched := &stubScheduler{}
	cfg := testConfig()
	cfg.MinFrameLengthBetweenTasks = 0 // make in-frame drainage eligible immediately
	p := New(cfg, clock, sched, nopProcessor{}, nil)

	blockHandler := make(chan struct{})
	release := make(chan struct{})

	t1Done := make(chan struct{})
	go func() {
		p.Schedule(func() bool {
			close(blockHandler)
			<-release
			return true
		}, nil)
		close(t1Done)
	}()

	select {
	case <-blockHandler:
	case <-time.After(pipelineTestTimeout):
		t.Fatal("timed out waiting for t1 to start executing")
	}

	frameDone := make(chan bool, 1)
	go func() {
		frameDone <- p.ProcessFrameAndTasks(audio.Frame{Samples: 240})
	}()

	// Give the frame goroutine time to observe the contended exclusive
	// mutex and start blocking on it.
	time.Sleep(50 * time.Millisecond)

	t2 := p.Schedule(func() bool { return true }, nil)
	if t2.Finished() {
		t.Fatal("expected t2 to be queued behind t1's execution, not run in-place")
	}

	close(release)

	select {
	case <-t1Done:
	case <-time.After(pipelineTestTimeout):
		t.Fatal("timed out waiting for t1 to finish")
	}

	select {
	case ok := <-frameDone:
		if !ok {
			t.Fatal("frame processing failed")
		}
	case <-time.After(pipelineTestTimeout):
		t.Fatal("timed out waiting for frame to finish")
	}

	if !t2.Finished() || !t2.Succeeded() {
		t.Fatal("expected t2 to be drained during the frame")
	}

	stats := p.Stats()
	if stats.Preemptions != 1 {
		t.Fatalf("expected 1 preemption, got %d", stats.Preemptions)
	}
	if stats.TasksProcessedInFrame != 1 {
		t.Fatalf("expected t2 to be counted as an in-frame task, got %d", stats.TasksProcessedInFrame)
	}
	if stats.SchedulerCalls != 0 {
		t.Fatalf("expected t2 to be drained without a fresh scheduler request, got %d calls", stats.SchedulerCalls)
	}
}
