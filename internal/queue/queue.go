// Package queue implements named job queues on Redis lists with at-least-once
// delivery: LPUSH to enqueue, BLMOVE into a per-queue in-flight list to
// consume, LREM to acknowledge, a sorted set for delayed jobs, bounded
// retries and a dead-letter list per queue. A job surviving a crash sits in
// the in-flight list and is moved back on the next worker start. Handlers
// must be idempotent; the timeline ledger's unique payload hash is what makes
// redelivered jobs safe.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
)

// Queue names consumed by the worker pool.
const (
	QueueAssignment         = "assignment"
	QueueAutoResolution     = "auto_resolution"
	QueueRefund             = "refund"
	QueueSLACheck           = "sla_check"
	QueueNotification       = "notification"
	QueueEvidenceProcessing = "evidence_processing"
)

// Names lists every queue the worker pool consumes.
var Names = []string{
	QueueAssignment, QueueAutoResolution, QueueRefund,
	QueueSLACheck, QueueNotification, QueueEvidenceProcessing,
}

// Job is the wire format stored in Redis.
type Job struct {
	ID         string         `json:"id"`
	Queue      string         `json:"queue"`
	Payload    map[string]any `json:"payload"`
	Attempts   int            `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueued_at"`

	// raw is the exact list member this job was dequeued as; Ack removes it
	// from the in-flight list by value.
	raw string
}

// DisputeID returns the dispute the job targets, if any.
func (j *Job) DisputeID() string {
	if v, ok := j.Payload["dispute_id"].(string); ok {
		return v
	}
	return ""
}

// Option customizes an enqueue.
type Option func(*enqueueOptions)

type enqueueOptions struct {
	delay time.Duration
}

// WithDelay schedules the job to become visible after d.
func WithDelay(d time.Duration) Option {
	return func(o *enqueueOptions) { o.delay = d }
}

// redisCommander is the slice of the go-redis client the queue uses.
type redisCommander interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// Queue wraps the Redis client with enqueue/dequeue operations.
type Queue struct {
	client redisCommander
	cfg    config.QueueConfig
	logger *zap.Logger
}

// New builds a queue facade.
func New(client *redis.Client, cfg config.QueueConfig, logger *zap.Logger) *Queue {
	return &Queue{client: client, cfg: cfg, logger: logger}
}

// Enqueue pushes a job onto a named queue, optionally delayed.
func (q *Queue) Enqueue(ctx context.Context, queueName string, payload map[string]any, opts ...Option) (string, error) {
	var options enqueueOptions
	for _, opt := range opts {
		opt(&options)
	}

	job := &Job{
		ID:         uuid.NewString(),
		Queue:      queueName,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	if options.delay > 0 {
		score := float64(time.Now().Add(options.delay).UnixMilli())
		if err := q.client.ZAdd(ctx, delayedKey(queueName), redis.Z{Score: score, Member: raw}).Err(); err != nil {
			return "", err
		}
		return job.ID, nil
	}

	if err := q.client.LPush(ctx, listKey(queueName), raw).Err(); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Dequeue blocks up to the configured pop timeout for the next job. The job
// is moved onto the queue's in-flight list rather than popped outright, so a
// crash between delivery and acknowledgement leaves it recoverable. A nil
// job with nil error means the timeout elapsed with nothing to do.
func (q *Queue) Dequeue(ctx context.Context, queueName string) (*Job, error) {
	timeout := time.Duration(q.cfg.PopTimeoutSeconds) * time.Second
	raw, err := q.client.BLMove(ctx, listKey(queueName), processingKey(queueName), "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// An unparseable member would otherwise wedge the in-flight list.
		if remErr := q.client.LRem(ctx, processingKey(queueName), 1, raw).Err(); remErr != nil {
			q.logger.Error("drop malformed job", zap.String("queue", queueName), zap.Error(remErr))
		}
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	job.raw = raw
	return &job, nil
}

// Ack removes a delivered job from the in-flight list once its handler (or
// its retry scheduling) has finished.
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	if job.raw == "" {
		return nil
	}
	return q.client.LRem(ctx, processingKey(job.Queue), 1, job.raw).Err()
}

// RecoverInFlight moves jobs a dead consumer left on the in-flight list back
// onto the queue. Callers run it once at startup, before consuming.
func (q *Queue) RecoverInFlight(ctx context.Context, queueName string) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, processingKey(queueName), listKey(queueName), "RIGHT", "RIGHT").Err()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return moved, nil
			}
			return moved, err
		}
		moved++
	}
}

// Retry requeues a failed job with backoff, or parks it on the dead-letter
// list once attempts are exhausted.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempts++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempts >= q.cfg.MaxAttempts {
		q.logger.Warn("job exhausted retries; moving to dead letter",
			zap.String("queue", job.Queue), zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts))
		return q.client.LPush(ctx, deadKey(job.Queue), raw).Err()
	}
	backoff := time.Duration(job.Attempts) * 30 * time.Second
	score := float64(time.Now().Add(backoff).UnixMilli())
	return q.client.ZAdd(ctx, delayedKey(job.Queue), redis.Z{Score: score, Member: raw}).Err()
}

// PromoteDelayed moves due jobs from every delayed set onto their queues.
// Invoked periodically by the scheduler.
func (q *Queue) PromoteDelayed(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	for _, name := range Names {
		members, err := q.client.ZRangeByScore(ctx, delayedKey(name), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
		if err != nil {
			return err
		}
		for _, raw := range members {
			if err := q.client.LPush(ctx, listKey(name), raw).Err(); err != nil {
				return err
			}
			if err := q.client.ZRem(ctx, delayedKey(name), raw).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func listKey(name string) string       { return "queue:" + name }
func processingKey(name string) string { return "queue:" + name + ":processing" }
func delayedKey(name string) string    { return "queue:" + name + ":delayed" }
func deadKey(name string) string       { return "queue:" + name + ":dead" }
