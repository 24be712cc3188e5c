package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/observability"
)

// Handler processes one job. Returning an error triggers the retry policy.
type Handler func(ctx context.Context, job *Job) error

// Worker consumes registered queues until its context is cancelled.
type Worker struct {
	queue    *Queue
	logger   *zap.Logger
	metrics  *observability.Metrics
	handlers map[string]Handler
	wg       sync.WaitGroup
}

// NewWorker builds a worker pool over the queue.
func NewWorker(queue *Queue, logger *zap.Logger, metrics *observability.Metrics) *Worker {
	return &Worker{
		queue:    queue,
		logger:   logger,
		metrics:  metrics,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a queue name. Must be called before Start.
func (w *Worker) Register(queueName string, handler Handler) {
	w.handlers[queueName] = handler
}

// Start launches one consumer goroutine per registered queue.
func (w *Worker) Start(ctx context.Context) {
	for name := range w.handlers {
		w.wg.Add(1)
		go w.consume(ctx, name)
	}
}

// Wait blocks until all consumers have drained after context cancellation.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context, queueName string) {
	defer w.wg.Done()
	handler := w.handlers[queueName]

	// Requeue anything a previous process left in flight.
	if moved, err := w.queue.RecoverInFlight(ctx, queueName); err != nil {
		w.logger.Error("in-flight recovery failed", zap.String("queue", queueName), zap.Error(err))
	} else if moved > 0 {
		w.logger.Info("requeued in-flight jobs", zap.String("queue", queueName), zap.Int("count", moved))
	}

	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Dequeue(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("dequeue failed", zap.String("queue", queueName), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.run(ctx, queueName, handler, job)
	}
}

func (w *Worker) run(ctx context.Context, queueName string, handler Handler, job *Job) {
	start := time.Now()
	err := handler(ctx, job)
	if w.metrics != nil {
		w.metrics.RecordJob(queueName, err == nil, time.Since(start))
	}
	if err == nil {
		w.ack(ctx, job)
		return
	}
	w.logger.Warn("job failed",
		zap.String("queue", queueName),
		zap.String("job_id", job.ID),
		zap.String("dispute_id", job.DisputeID()),
		zap.Int("attempts", job.Attempts),
		zap.Error(err))
	if retryErr := w.queue.Retry(ctx, job); retryErr != nil {
		// Leave the job in flight; recovery redelivers it on restart.
		w.logger.Error("retry scheduling failed", zap.String("job_id", job.ID), zap.Error(retryErr))
		return
	}
	w.ack(ctx, job)
}

func (w *Worker) ack(ctx context.Context, job *Job) {
	if err := w.queue.Ack(ctx, job); err != nil {
		w.logger.Error("ack failed", zap.String("queue", job.Queue), zap.String("job_id", job.ID), zap.Error(err))
	}
}
