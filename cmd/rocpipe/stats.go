package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/roc-streaming/rocpipe/internal/audio"
	"github.com/roc-streaming/rocpipe/internal/session"
	"github.com/roc-streaming/rocpipe/pkg/logging"
)

var statsConfiguration struct {
	// warmup is how long to run the synthetic pipeline before taking the
	// snapshot. There is no persisted daemon state to query (the
	// daemon/IPC stack is out of scope, see SPEC_FULL.md), so "stats"
	// runs a short session and reports what it observed.
	warmup time.Duration
}

var statsCommand = &cobra.Command{
	Use:   "stats",
	Short: "run a brief pipeline session and print a single statistics snapshot",
	RunE:  statsMain,
}

func init() {
	statsCommand.Flags().DurationVar(&statsConfiguration.warmup, "warmup", time.Second, "how long to exercise the pipeline before snapshotting")
}

func statsMain(*cobra.Command, []string) error {
	logger := logging.RootLogger.Sublogger("rocpipe")

	pipelineConfig := loadedConfig.PipelineConfig()
	processor := &syntheticProcessor{}

	sess, err := session.New("stats", pipelineConfig, processor, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), statsConfiguration.warmup)
	defer cancel()

	frameDuration := pipelineConfig.MaxFrameLengthBetweenTasks
	frameSamples := int(int64(frameDuration) * int64(pipelineConfig.SampleRate) / int64(time.Second))

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			sess.Pipeline().ProcessFrameAndTasks(audio.Frame{Samples: frameSamples})
		}
	}

	printStats(sess, processor, logger)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	return sess.Close(closeCtx)
}
