package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roc-streaming/rocpipe/cmd"
	"github.com/roc-streaming/rocpipe/internal/audio"
	"github.com/roc-streaming/rocpipe/internal/rtprio"
	"github.com/roc-streaming/rocpipe/internal/session"
	"github.com/roc-streaming/rocpipe/pkg/logging"
)

// framePriority is the SCHED_FIFO priority requested for the goroutine
// driving ProcessFrameAndTasks, on platforms where rtprio.Boost is
// supported.
const framePriority = 10

var runConfiguration struct {
	// duration is how long the demo session runs before stopping.
	duration time.Duration
	// taskRate is how often a synthetic control task is submitted.
	taskRate time.Duration
	// statsInterval is how often a stats snapshot is logged.
	statsInterval time.Duration
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "run a demo pipeline session against a synthetic audio source",
	RunE:  runMain,
}

func init() {
	flags := runCommand.Flags()
	flags.DurationVar(&runConfiguration.duration, "duration", 10*time.Second, "how long to run the demo")
	flags.DurationVar(&runConfiguration.taskRate, "task-rate", 50*time.Millisecond, "average interval between synthetic control tasks")
	flags.DurationVar(&runConfiguration.statsInterval, "stats-interval", 2*time.Second, "how often to log a statistics snapshot")
}

func runMain(*cobra.Command, []string) error {
	logger := logging.RootLogger.Sublogger("rocpipe")

	pipelineConfig := loadedConfig.PipelineConfig()
	processor := &syntheticProcessor{}

	sess, err := session.New("demo", pipelineConfig, processor, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), runConfiguration.duration)
	defer cancel()

	ctx, stop := signal.NotifyContext(ctx, cmd.TerminationSignals...)
	defer stop()

	frameDuration := pipelineConfig.MaxFrameLengthBetweenTasks
	frameSamples := int(int64(frameDuration) * int64(pipelineConfig.SampleRate) / int64(time.Second))

	go generateTasks(ctx, sess, logger)
	go logStats(ctx, sess, processor, logger)

	// The frame-processing loop runs on a dedicated, priority-boosted OS
	// thread where the platform supports it, the way a real audio thread
	// would be scheduled; LockOSThread is required before SchedSetscheduler
	// affects the right thread and must never be undone while boosted.
	runtime.LockOSThread()
	if rtprio.Supported() {
		if err := rtprio.Boost(framePriority); err != nil {
			cmd.Warning(fmt.Sprintf("could not raise frame thread priority: %v", err))
		}
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			return sess.Close(closeCtx)
		case <-ticker.C:
			sess.Pipeline().ProcessFrameAndTasks(audio.Frame{Samples: frameSamples})
		}
	}
}

func generateTasks(ctx context.Context, sess *session.Session, logger *logging.Logger) {
	for {
		wait := time.Duration(float64(runConfiguration.taskRate) * (0.5 + rand.Float64()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		taskID := uuid.New().String()
		sess.Pipeline().Schedule(func() bool {
			logger.Tracef("processing synthetic task %s", taskID)
			return true
		}, nil)
	}
}

func logStats(ctx context.Context, sess *session.Session, processor *syntheticProcessor, logger *logging.Logger) {
	ticker := time.NewTicker(runConfiguration.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printStats(sess, processor, logger)
		}
	}
}

func printStats(sess *session.Session, processor *syntheticProcessor, logger *logging.Logger) {
	s := sess.Pipeline().Stats()
	logger.Infof(
		"samples=%s tasks(total=%d in_place=%d in_frame=%d async=%d) preemptions=%d scheduler(calls=%d cancellations=%d)",
		humanize.Comma(processor.SamplesProcessed()),
		s.TasksProcessedTotal, s.TasksProcessedInPlace, s.TasksProcessedInFrame, s.TasksProcessedAsync,
		s.Preemptions, s.SchedulerCalls, s.SchedulerCancellations,
	)
}
