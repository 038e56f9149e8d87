package pipeline

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roc-streaming/rocpipe/internal/audio"
	rocclock "github.com/roc-streaming/rocpipe/internal/clock"
	"github.com/roc-streaming/rocpipe/pkg/logging"
)

// noFrameDeadline is the sentinel published before any frame has ever been
// processed. It stands in for the original's "unavailable" next-frame
// deadline (design note "Atomic publication of next_frame_deadline"), but
// unlike the C++ split-store scheme, Go's atomic.Value never yields a torn
// read, so there is no actual "read failed" case to handle here — the
// sentinel instead models "no frame is pending yet" as a deadline so far in
// the future that it can never fall inside the prohibited band, which is
// exactly the behavior spec §8 scenario 1 ("in-place fast path" with no
// prior frame activity) requires.
const noFrameDeadline = time.Duration(math.MaxInt64 / 2)

// FrameProcessor does the real work of a frame (or sub-frame); it stands in
// for process_frame_imp (spec §6.2). PCM formats and DSP are out of scope,
// so a frame is abstracted down to a sample count.
type FrameProcessor interface {
	ProcessFrame(samples int) bool
}

type processingPhase int

const (
	phaseNotScheduled processingPhase = iota
	phaseScheduled
)

// Pipeline serializes frame and task execution on caller threads, using a
// Scheduler to arrange asynchronous task drainage. It is grounded on
// roc_pipeline::TaskPipeline.
type Pipeline struct {
	cfg       Config
	clock     rocclock.Clock
	scheduler Scheduler
	processor FrameProcessor
	logger    *logging.Logger

	// exclusive is held during frame processing and during each
	// individual in-place/drained task execution (spec §5).
	exclusive sync.Mutex

	// fifo is the task-FIFO, guarded by its own mutex (spec §3.4/§5):
	// distinct from exclusive so Schedule can enqueue without blocking on
	// a running task or frame.
	fifo fifo

	// pendingTasks mirrors the FIFO's size plus any task currently being
	// executed in-place/in-frame/drained — i.e. "submitted but not yet
	// finished". Atomic so Schedule/process_tasks/frame processing can
	// all read/decrement it without taking the FIFO mutex.
	pendingTasks int32
	// pendingFrames counts process_frame_and_tasks calls currently
	// active.
	pendingFrames int32

	// frameDeadline holds the published next_frame_deadline (a
	// time.Duration). See noFrameDeadline.
	frameDeadline atomic.Value

	// samplesSinceDrain is the "samples since last drain" counter (spec
	// §3.4). It is only ever touched from processPrecise, which holds
	// exclusive for the whole frame, so it needs no atomics of its own;
	// deliberately NOT reset at frame boundaries, only when drainage
	// actually starts (spec §9, third ambiguity) — preserved as-is.
	samplesSinceDrain int64

	// schedulerMu guards phase; never held together with exclusive
	// (spec §5's lock-ordering rule: scheduler mutex is always leaf).
	schedulerMu sync.Mutex
	phase       processingPhase

	stats stats
}

// New creates a Pipeline. scheduler arranges asynchronous task drainage
// (production code passes a QueueScheduler; tests pass a stub).
func New(cfg Config, clock rocclock.Clock, scheduler Scheduler, processor FrameProcessor, logger *logging.Logger) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		clock:     clock,
		scheduler: scheduler,
		processor: processor,
		logger:    logger,
	}
	p.frameDeadline.Store(noFrameDeadline)
	return p
}

func (p *Pipeline) now() time.Duration {
	return p.clock.Now()
}

func (p *Pipeline) loadFrameDeadline() time.Duration {
	return p.frameDeadline.Load().(time.Duration)
}

func (p *Pipeline) publishFrameDeadline(d time.Duration) {
	p.frameDeadline.Store(d)
}

func (p *Pipeline) inProhibitedBand(deadline, now time.Duration) bool {
	half := p.cfg.prohibitedHalf()
	return now >= deadline-half && now <= deadline+half
}

func (p *Pipeline) samplesFor(d time.Duration) int {
	if p.cfg.SampleRate <= 0 {
		return 0
	}
	return int(int64(d) * int64(p.cfg.SampleRate) / int64(time.Second))
}

// Stats returns a snapshot of the pipeline's counters (spec §6.4).
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot()
}

// Schedule submits a task for execution. It may run synchronously,
// in-place, on the calling goroutine (spec §4.2 "schedule algorithm") if no
// frame or other task contends for the pipeline.
func (p *Pipeline) Schedule(handler Handler, onFinished CompletionHandler) *Task {
	t := newTask(handler, onFinished)
	p.scheduleTask(t)
	return t
}

// ScheduleAndWait submits a task and blocks the caller until it finishes,
// returning whether it succeeded.
func (p *Pipeline) ScheduleAndWait(handler Handler) bool {
	t := newTask(handler, nil)
	t.wait = make(chan struct{})
	p.scheduleTask(t)
	<-t.wait
	return t.success
}

// scheduleTask implements spec §4.2's schedule(task, handler) algorithm.
func (p *Pipeline) scheduleTask(t *Task) {
	t.st = taskScheduled
	n := atomic.AddInt32(&p.pendingTasks, 1)

	if n > 1 {
		p.logger.Tracef("queuing task, %d pending ahead of it", n-1)
		p.fifo.push(t)
		return
	}

	if p.cfg.EnablePreciseTaskScheduling {
		deadline := p.loadFrameDeadline()
		if p.inProhibitedBand(deadline, p.now()) {
			p.logger.Trace("queuing task, next frame deadline is inside the prohibited band")
			p.fifo.push(t)
			if atomic.LoadInt32(&p.pendingFrames) == 0 {
				p.requestAsyncDrainage()
			}
			return
		}
	}

	if !p.exclusive.TryLock() {
		p.logger.Trace("queuing task, pipeline is busy")
		p.fifo.push(t)
		return
	}

	p.logger.Trace("running task in place")
	t.run()
	atomic.AddInt32(&p.pendingTasks, -1)
	p.stats.recordInPlace()
	p.exclusive.Unlock()

	if atomic.LoadInt32(&p.pendingFrames) != 0 {
		p.stats.recordPreemption()
		return
	}
	if atomic.LoadInt32(&p.pendingTasks) > 0 {
		p.requestAsyncDrainage()
	}
}

// processTasks is the asynchronous-drainage entry point, invoked (via the
// Scheduler's drain_tasks task) outside of any caller's schedule/frame
// call. Implements spec §4.2's process_tasks() algorithm.
func (p *Pipeline) processTasks() {
	p.logger.Debug("draining tasks")
	defer p.logger.Debug("done draining tasks")

	p.markDrainageEntered()

	if !p.exclusive.TryLock() {
		p.logger.Trace("drainage deferred, pipeline is busy")
		return
	}

	for {
		if p.cfg.EnablePreciseTaskScheduling {
			now := p.now()
			deadline := p.loadFrameDeadline()
			if p.inProhibitedBand(deadline, now) {
				break
			}
		}
		if atomic.LoadInt32(&p.pendingFrames) != 0 {
			break
		}

		t, _ := p.fifo.pop()
		if t == nil {
			break
		}

		p.logger.Trace("running task asynchronously")
		t.run()
		atomic.AddInt32(&p.pendingTasks, -1)
		p.stats.recordAsync()
	}

	p.exclusive.Unlock()

	if atomic.LoadInt32(&p.pendingTasks) > 0 {
		p.requestAsyncDrainage()
	}
}

// ProcessFrameAndTasks processes one real-time audio frame, draining queued
// tasks opportunistically between sub-frames in precise mode. Implements
// spec §4.2's process_frame_and_tasks(frame) algorithm (both modes).
func (p *Pipeline) ProcessFrameAndTasks(frame audio.Frame) bool {
	atomic.AddInt32(&p.pendingFrames, 1)
	p.cancelAsyncDrainage()

	var ok bool
	if p.cfg.EnablePreciseTaskScheduling {
		ok = p.processPrecise(frame)
	} else {
		ok = p.processSimple(frame)
	}

	atomic.AddInt32(&p.pendingFrames, -1)
	if atomic.LoadInt32(&p.pendingTasks) > 0 {
		p.requestAsyncDrainage()
	}
	return ok
}

func (p *Pipeline) processSimple(frame audio.Frame) bool {
	p.exclusive.Lock()
	defer p.exclusive.Unlock()
	return p.processor.ProcessFrame(frame.Samples)
}

func (p *Pipeline) processPrecise(frame audio.Frame) bool {
	frameStart := p.now()
	frameDuration := audio.Duration(frame.Samples, p.cfg.SampleRate)

	p.logger.Tracef("processing frame of %d samples", frame.Samples)

	p.exclusive.Lock()
	defer p.exclusive.Unlock()

	maxSub := p.samplesFor(p.cfg.MaxFrameLengthBetweenTasks)
	if maxSub <= 0 {
		maxSub = frame.Samples
	}
	minSamples := int64(p.samplesFor(p.cfg.MinFrameLengthBetweenTasks))

	remaining := frame.Samples
	first := true
	ok := true

	for remaining > 0 {
		n := remaining
		if n > maxSub {
			n = maxSub
		}

		if !p.processor.ProcessFrame(n) {
			ok = false
		}
		remaining -= n

		if first {
			p.publishFrameDeadline(frameStart + frameDuration)
			first = false
		}

		p.samplesSinceDrain += int64(n)
		eligible := p.samplesSinceDrain >= minSamples

		if eligible && p.fifo.len() > 0 {
			p.samplesSinceDrain = 0
			p.drainWithinFrame(frameStart + frameDuration)
		}
	}

	return ok
}

// drainWithinFrame pops and runs queued tasks while staying inside both the
// max_inframe_task_processing window and clear of the prohibited band
// around nextFrameDeadline (spec §4.2, step 4c).
func (p *Pipeline) drainWithinFrame(nextFrameDeadline time.Duration) {
	subDeadline := p.now() + p.cfg.MaxInframeTaskProcessing
	half := p.cfg.prohibitedHalf()

	for {
		now := p.now()
		if now >= subDeadline || now >= nextFrameDeadline-half {
			return
		}

		t, _ := p.fifo.pop()
		if t == nil {
			return
		}

		p.logger.Trace("draining task within frame")
		t.run()
		atomic.AddInt32(&p.pendingTasks, -1)
		p.stats.recordInFrame()
	}
}

// requestAsyncDrainage implements the "request asynchronous drainage"
// operation of spec §4.2: compute D, transition the processing-phase state
// machine, and ask the Scheduler to (re-)arm drainage at D.
func (p *Pipeline) requestAsyncDrainage() {
	d := p.drainDeadline()

	p.schedulerMu.Lock()
	p.phase = phaseScheduled
	p.schedulerMu.Unlock()

	p.logger.Tracef("requesting asynchronous drainage at %d", d)
	p.stats.recordSchedulerCall()
	p.scheduler.ScheduleTaskProcessing(p, d)
}

// cancelAsyncDrainage implements "cancel asynchronous drainage": always
// tells the Scheduler to cancel, but only counts it in stats when drainage
// was actually armed (phase was scheduled), matching spec §8 scenario 2's
// scheduler_cancellations bookkeeping.
func (p *Pipeline) cancelAsyncDrainage() {
	p.schedulerMu.Lock()
	wasScheduled := p.phase == phaseScheduled
	p.phase = phaseNotScheduled
	p.schedulerMu.Unlock()

	if wasScheduled {
		p.logger.Trace("cancelling asynchronous drainage")
		p.stats.recordSchedulerCancellation()
	}
	p.scheduler.CancelTaskProcessing(p)
}

// markDrainageEntered transitions scheduled -> not-scheduled on entry to
// process_tasks, per the state machine in spec §4.2. This is a natural
// completion of the armed drainage firing, not a cancellation, so it is not
// counted as one.
func (p *Pipeline) markDrainageEntered() {
	p.schedulerMu.Lock()
	p.phase = phaseNotScheduled
	p.schedulerMu.Unlock()
}

// drainDeadline computes D for "request asynchronous drainage at deadline
// D" (spec §4.2 "Drainage requests").
func (p *Pipeline) drainDeadline() time.Duration {
	if !p.cfg.EnablePreciseTaskScheduling {
		return 0
	}

	deadline := p.loadFrameDeadline()
	now := p.now()
	half := p.cfg.prohibitedHalf()
	lower, upper := deadline-half, deadline+half

	if now < lower || now > upper {
		return 0
	}
	if now < upper {
		return upper
	}
	return 0
}
