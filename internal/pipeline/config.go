package pipeline

import "time"

// Config holds the Task Pipeline's tunable parameters, per spec §4.2. The
// zero value is usable but disables precise scheduling (every field is its
// zero, which maps to EnablePreciseTaskScheduling = false); production
// callers should use DefaultConfig or internal/config.
type Config struct {
	// EnablePreciseTaskScheduling, when false, makes frames and tasks
	// compete with a simple mutex: all the scheduling heuristics below
	// (prohibited band, sub-frame drainage windows) are disabled.
	EnablePreciseTaskScheduling bool

	// MinFrameLengthBetweenTasks is the lower bound on audio processed
	// before any in-frame task drainage is allowed.
	MinFrameLengthBetweenTasks time.Duration

	// MaxFrameLengthBetweenTasks is the upper bound on one sub-frame;
	// larger frames are split.
	MaxFrameLengthBetweenTasks time.Duration

	// MaxInframeTaskProcessing is the maximum time in-frame drainage may
	// consume between two sub-frames.
	MaxInframeTaskProcessing time.Duration

	// TaskProcessingProhibitedInterval is the symmetric guard band (G)
	// around the next frame deadline during which tasks are neither
	// executed in-place nor asynchronously.
	TaskProcessingProhibitedInterval time.Duration

	// SampleRate is used to convert a Frame's sample count into a
	// wall-clock duration for frame_duration/sub-frame math.
	SampleRate int
}

// DefaultConfig returns the parameters used by spec §8's concrete scenarios:
// 5ms frames, G = 200us, min_between = 4ms.
func DefaultConfig() Config {
	return Config{
		EnablePreciseTaskScheduling:      true,
		MinFrameLengthBetweenTasks:       4 * time.Millisecond,
		MaxFrameLengthBetweenTasks:       5 * time.Millisecond,
		MaxInframeTaskProcessing:         100 * time.Microsecond,
		TaskProcessingProhibitedInterval: 200 * time.Microsecond,
		SampleRate:                       44100,
	}
}

// prohibitedHalf returns G/2, the "no-task-proc half interval".
func (c Config) prohibitedHalf() time.Duration {
	return c.TaskProcessingProhibitedInterval / 2
}
