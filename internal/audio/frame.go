// Package audio defines the minimal frame representation the task pipeline
// processes. It intentionally carries no format, channel layout, or sample
// type: real-time audio processing (resampling, mixing, codec work) is out
// of scope, per the non-goals this package's caller is built against. A
// Frame here stands in for "one unit of real-time work arriving on a
// schedule," nothing more.
package audio

import "time"

// Frame is a single real-time audio buffer handed to the pipeline for
// processing. Samples is the frame's payload size in samples (not bytes);
// callers that care about wall-clock frame length derive it from their own
// sample rate.
type Frame struct {
	Samples int
}

// Duration reports how long a frame of Samples samples represents at the
// given sample rate, matching the "frame length" quantity spec §3.2 and
// §3.4 reason about (max_frame_length_between_tasks, the prohibited band,
// and so on) are all expressed in.
func Duration(samples int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
