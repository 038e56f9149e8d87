// Package clock provides the time abstractions shared by the task queue and
// task pipeline: a injectable notion of "now" and a single-shot, preemptable
// wakeup timer.
package clock

import (
	"math"
	"sync"
	"time"
)

// DeadlineNone is the sentinel deadline meaning "no wakeup scheduled". It
// mirrors the original implementation's use of -1 for an empty pending list
// in update_next_deadline_().
const DeadlineNone = time.Duration(math.MaxInt64)

// Clock provides the current time as a duration since some fixed, arbitrary
// epoch. It stands in for the injected timestamp_imp() callback of spec §6.2:
// production code uses SystemClock, tests use VirtualClock so that the
// concrete scenarios in spec §8 can be reproduced exactly.
type Clock interface {
	// Now returns the current time.
	Now() time.Duration
}

// SystemClock is a Clock backed by the real monotonic clock.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock creates a SystemClock whose epoch is the time of creation.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Now implements Clock.Now.
func (c *SystemClock) Now() time.Duration {
	return time.Since(c.epoch)
}

// VirtualClock is a Clock that only advances when explicitly told to. It
// exists to drive the deterministic scenarios in spec §8, which start at a
// fixed instant and advance by exact, named increments.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewVirtualClock creates a VirtualClock starting at the given instant.
func NewVirtualClock(start time.Duration) *VirtualClock {
	return &VirtualClock{now: start}
}

// Now implements Clock.Now.
func (c *VirtualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to an absolute instant. It must not move the clock
// backwards; callers are responsible for monotonicity.
func (c *VirtualClock) Set(instant time.Duration) {
	c.mu.Lock()
	c.now = instant
	c.mu.Unlock()
}

// Advance moves the clock forward by the given duration.
func (c *VirtualClock) Advance(delta time.Duration) {
	c.mu.Lock()
	c.now += delta
	c.mu.Unlock()
}

// DeadlineTimer is a single-shot, thread-safe deadline register, matching the
// external timer primitive assumed in spec §6.1: set_deadline atomically
// replaces the deadline and wakes any waiter if the new deadline is sooner;
// wait_deadline blocks until the deadline has passed.
//
// DeadlineTimer reads "now" from the Clock it is created with, but its waits
// are real time.Timer sleeps: it is only ever driven by the task queue's
// background worker, which must actually sleep. Pipeline-level tests never
// touch it directly since TaskPipeline's tests supply their own Scheduler
// stub (see internal/pipeline).
type DeadlineTimer struct {
	clock Clock

	mu       sync.Mutex
	deadline time.Duration
	wake     chan struct{}
}

// NewDeadlineTimer creates a timer with no deadline set (infinite wait).
func NewDeadlineTimer(clock Clock) *DeadlineTimer {
	return &DeadlineTimer{
		clock:    clock,
		deadline: DeadlineNone,
		wake:     make(chan struct{}),
	}
}

// SetDeadline atomically replaces the deadline. If the deadline changes, any
// in-progress WaitDeadline call is woken so that it can re-evaluate against
// the new deadline, whether or not the new deadline is sooner; a wakeup
// against a later deadline is simply spurious and the waiter re-sleeps.
// Setting the deadline it already has is a no-op and wakes nobody.
func (t *DeadlineTimer) SetDeadline(deadline time.Duration) {
	t.mu.Lock()
	if deadline == t.deadline {
		t.mu.Unlock()
		return
	}
	t.deadline = deadline
	wake := t.wake
	t.wake = make(chan struct{})
	t.mu.Unlock()
	close(wake)
}

// WaitDeadline blocks until the current deadline has passed. It returns
// immediately if the deadline is already in the past.
func (t *DeadlineTimer) WaitDeadline() {
	for {
		t.mu.Lock()
		deadline := t.deadline
		wake := t.wake
		t.mu.Unlock()

		if deadline == DeadlineNone {
			<-wake
			continue
		}

		remaining := deadline - t.clock.Now()
		if remaining <= 0 {
			return
		}

		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			return
		case <-wake:
			timer.Stop()
		}
	}
}
