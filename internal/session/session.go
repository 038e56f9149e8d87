// Package session wires a task queue and a task pipeline together into one
// lifecycle-managed unit. It is grounded on
// pkg/synchronization/controller.go's newSession/run/halt shape, stripped
// down to what a pipeline needs: no endpoints, no reconciliation loop, just
// ownership of a taskqueue.Queue and the pipeline.Pipeline bound to it.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/roc-streaming/rocpipe/internal/clock"
	"github.com/roc-streaming/rocpipe/internal/pipeline"
	"github.com/roc-streaming/rocpipe/internal/taskqueue"
	"github.com/roc-streaming/rocpipe/pkg/logging"
)

// Session owns a task queue and a task pipeline scheduled on it.
type Session struct {
	// Identifier uniquely names the session, for logging/tracing
	// correlation, mirroring the teacher's use of uuid for session
	// identifiers in pkg/synchronization.
	Identifier string

	logger    *logging.Logger
	queue     *taskqueue.Queue
	scheduler *pipeline.QueueScheduler
	pipe      *pipeline.Pipeline
}

// New starts a Session: a background task queue worker and a pipeline
// scheduled on it via a fresh QueueScheduler.
func New(name string, cfg pipeline.Config, processor pipeline.FrameProcessor, logger *logging.Logger) (*Session, error) {
	if processor == nil {
		return nil, errors.New("frame processor is required")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate session identifier")
	}
	identifier := fmt.Sprintf("%s-%s", name, id.String())

	sessionLogger := logger.Sublogger(identifier)

	queue := taskqueue.NewQueue(
		taskqueue.WithLogger(sessionLogger.Sublogger("taskqueue")),
	)
	scheduler := pipeline.NewQueueScheduler(queue)
	pipe := pipeline.New(cfg, clock.NewSystemClock(), scheduler, processor, sessionLogger.Sublogger("pipeline"))

	sessionLogger.Info("session started")

	return &Session{
		Identifier: identifier,
		logger:     sessionLogger,
		queue:      queue,
		scheduler:  scheduler,
		pipe:       pipe,
	}, nil
}

// Pipeline returns the session's pipeline.
func (s *Session) Pipeline() *pipeline.Pipeline {
	return s.pipe
}

// Close shuts down the session's task queue. It requires that there be no
// pipeline tasks still pending drainage, propagating the Task Queue's
// stop_and_wait precondition: Close does not wait for pending tasks to
// drain, and StopAndWait panics if the pipeline's drain task is still
// queued. ctx bounds how long Close waits for the queue's worker to exit.
func (s *Session) Close(ctx context.Context) error {
	s.logger.Info("session stopping")

	done := make(chan struct{})
	go func() {
		s.queue.StopAndWait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("session stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for session to stop")
	}
}
