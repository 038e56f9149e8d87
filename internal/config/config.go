// Package config loads and merges the task pipeline's tunable parameters
// from YAML files, following the layered-configuration pattern of the
// teacher repo's pkg/configuration/synchronization package: a file-based
// Configuration with zero-value defaults, mergeable across priority layers
// (global, then per-run overrides).
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/roc-streaming/rocpipe/internal/pipeline"
)

// Configuration is the human-readable, YAML-loadable form of
// pipeline.Config. Durations are specified in milliseconds/microseconds as
// plain numbers so config files stay readable without a duration parser.
type Configuration struct {
	// PreciseTaskScheduling enables the prohibited-band/sub-frame
	// scheduling heuristics. A nil value means "unset", letting a lower
	// layer's value (or the built-in default) take effect.
	PreciseTaskScheduling *bool `yaml:"preciseTaskScheduling"`
	// MinFrameLengthBetweenTasksMS is the lower bound, in milliseconds,
	// on audio processed before in-frame task drainage is allowed.
	MinFrameLengthBetweenTasksMS uint32 `yaml:"minFrameLengthBetweenTasksMs"`
	// MaxFrameLengthBetweenTasksMS is the sub-frame length cap, in
	// milliseconds.
	MaxFrameLengthBetweenTasksMS uint32 `yaml:"maxFrameLengthBetweenTasksMs"`
	// MaxInframeTaskProcessingUS is the in-frame drainage window, in
	// microseconds.
	MaxInframeTaskProcessingUS uint32 `yaml:"maxInframeTaskProcessingUs"`
	// TaskProcessingProhibitedIntervalUS is the prohibited-band width, in
	// microseconds.
	TaskProcessingProhibitedIntervalUS uint32 `yaml:"taskProcessingProhibitedIntervalUs"`
	// SampleRate is the audio sample rate used to convert sample counts
	// to/from wall-clock durations.
	SampleRate uint32 `yaml:"sampleRate"`
}

// IsDefault reports whether every field of c is at its zero value.
func (c *Configuration) IsDefault() bool {
	return c.PreciseTaskScheduling == nil &&
		c.MinFrameLengthBetweenTasksMS == 0 &&
		c.MaxFrameLengthBetweenTasksMS == 0 &&
		c.MaxInframeTaskProcessingUS == 0 &&
		c.TaskProcessingProhibitedIntervalUS == 0 &&
		c.SampleRate == 0
}

// Load reads and parses a YAML configuration file at path. A missing file
// is not an error; it is treated as an empty (all-default) configuration,
// matching the teacher's tolerance for an absent per-user config file.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Configuration{}, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration file")
	}

	var result Configuration
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration file")
	}

	return &result, nil
}

// Merge merges two configurations of differing priorities: any field set in
// higher overrides the corresponding field in lower. Both arguments must be
// non-nil.
func Merge(lower, higher *Configuration) *Configuration {
	result := &Configuration{}

	if higher.PreciseTaskScheduling != nil {
		result.PreciseTaskScheduling = higher.PreciseTaskScheduling
	} else {
		result.PreciseTaskScheduling = lower.PreciseTaskScheduling
	}

	if higher.MinFrameLengthBetweenTasksMS != 0 {
		result.MinFrameLengthBetweenTasksMS = higher.MinFrameLengthBetweenTasksMS
	} else {
		result.MinFrameLengthBetweenTasksMS = lower.MinFrameLengthBetweenTasksMS
	}

	if higher.MaxFrameLengthBetweenTasksMS != 0 {
		result.MaxFrameLengthBetweenTasksMS = higher.MaxFrameLengthBetweenTasksMS
	} else {
		result.MaxFrameLengthBetweenTasksMS = lower.MaxFrameLengthBetweenTasksMS
	}

	if higher.MaxInframeTaskProcessingUS != 0 {
		result.MaxInframeTaskProcessingUS = higher.MaxInframeTaskProcessingUS
	} else {
		result.MaxInframeTaskProcessingUS = lower.MaxInframeTaskProcessingUS
	}

	if higher.TaskProcessingProhibitedIntervalUS != 0 {
		result.TaskProcessingProhibitedIntervalUS = higher.TaskProcessingProhibitedIntervalUS
	} else {
		result.TaskProcessingProhibitedIntervalUS = lower.TaskProcessingProhibitedIntervalUS
	}

	if higher.SampleRate != 0 {
		result.SampleRate = higher.SampleRate
	} else {
		result.SampleRate = lower.SampleRate
	}

	return result
}

// PipelineConfig converts the YAML configuration into a pipeline.Config,
// layering it over pipeline.DefaultConfig() for any field left unset.
func (c *Configuration) PipelineConfig() pipeline.Config {
	result := pipeline.DefaultConfig()

	if c.PreciseTaskScheduling != nil {
		result.EnablePreciseTaskScheduling = *c.PreciseTaskScheduling
	}
	if c.MinFrameLengthBetweenTasksMS != 0 {
		result.MinFrameLengthBetweenTasks = time.Duration(c.MinFrameLengthBetweenTasksMS) * time.Millisecond
	}
	if c.MaxFrameLengthBetweenTasksMS != 0 {
		result.MaxFrameLengthBetweenTasks = time.Duration(c.MaxFrameLengthBetweenTasksMS) * time.Millisecond
	}
	if c.MaxInframeTaskProcessingUS != 0 {
		result.MaxInframeTaskProcessing = time.Duration(c.MaxInframeTaskProcessingUS) * time.Microsecond
	}
	if c.TaskProcessingProhibitedIntervalUS != 0 {
		result.TaskProcessingProhibitedInterval = time.Duration(c.TaskProcessingProhibitedIntervalUS) * time.Microsecond
	}
	if c.SampleRate != 0 {
		result.SampleRate = int(c.SampleRate)
	}

	return result
}
