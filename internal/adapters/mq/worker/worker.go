// Package worker runs the single writer that drains the job mailbox.
//
// Exactly one Worker consumes a queue, so jobs never run concurrently and a
// rebuild holds the store until it returns.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/pkg/logger"
	"github.com/okian/skillboard/pkg/metrics"
)

// Handler executes one job.
type Handler interface {
	Handle(ctx context.Context, job model.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job model.Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job model.Job) error { return f(ctx, job) } //nolint:gocritic // hugeParam: jobs travel by value

// Queue defines how the worker receives jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// Worker drains a queue serially.
type Worker struct {
	queue   Queue
	handler Handler
	name    string

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewWorker creates a worker.
func NewWorker(q Queue, h Handler, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until the queue is closed and drained, ctx ends, or
// Shutdown gives up waiting.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "job failed",
					logger.String("job_id", job.ID),
					logger.String("kind", string(job.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Shutdown waits for Run to return. Close the queue first so the worker can
// drain it; when ctx ends first the worker is stopped after its current job.
func (w *Worker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
	}
	w.stopOnce.Do(func() { close(w.shutdown) })
	w.logger.Warn(ctx, "shutdown timed out, pending jobs dropped")
	return fmt.Errorf("shutdown timed out: %w", ctx.Err())
}

func (w *Worker) process(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	start := time.Now()
	err := w.handler.Handle(ctx, job)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordJob(string(job.Kind), outcome, float64(time.Since(start).Milliseconds()))
	return err
}
