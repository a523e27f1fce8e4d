package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/logging"
)

const defaultDrainTimeout = 30 * time.Second

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor on a fixed interval. When it stops it runs the
// processor one last time, so entries logged since the last tick are not
// left behind.
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	drainTimeout time.Duration
	log          *logging.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(processor JobProcessor, pollInterval time.Duration, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.Nop()
	}
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		drainTimeout: defaultDrainTimeout,
		log:          log,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the polling loop and blocks until ctx is cancelled or Stop is
// called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.log.Info().Dur("poll_interval", w.pollInterval).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			w.drain("context cancelled")
			return
		case <-w.stopChan:
			w.drain("stop requested")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *Worker) run(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		w.log.Error().Err(err).Msg("error processing jobs")
	}
}

// drain gets a fresh context: the caller's is usually already cancelled.
func (w *Worker) drain(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()

	w.log.Info().Str("reason", reason).Msg("worker stopping, running final pass")
	w.run(ctx)
}

// Stop asks the worker to finish and waits for the final pass. It is safe
// to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
}
