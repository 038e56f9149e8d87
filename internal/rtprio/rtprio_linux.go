//go:build linux

// Package rtprio gives the calling goroutine's underlying OS thread a
// best-effort real-time scheduling priority boost, for the audio thread
// driving ProcessFrameAndTasks. It is a natural extension of the teacher's
// OS-specific syscall shims (see pkg/filesystem's per-platform syscall_*.go
// files) applied to a concern the teacher itself never needed.
package rtprio

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Boost raises the calling OS thread to SCHED_FIFO at the given priority
// (1-99; higher runs sooner). The caller must have called
// runtime.LockOSThread first, since Go's scheduler otherwise may migrate
// the goroutine to an unboosted thread between calls.
func Boost(priority int) error {
	if priority < 1 || priority > 99 {
		return errors.Errorf("rtprio: priority %d out of range [1, 99]", priority)
	}

	param := unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, &param); err != nil {
		return errors.Wrap(err, "rtprio: sched_setscheduler failed")
	}
	return nil
}

// Supported reports whether Boost has a real implementation on this
// platform.
func Supported() bool {
	return true
}
