package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/dispute-service/internal/config"
)

// fakeRedis covers the list and sorted-set commands the queue issues. Lists
// are stored head-first: index 0 is the leftmost element.
type fakeRedis struct {
	mu    sync.Mutex
	lists map[string][]string
	zsets map[string]map[string]float64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{lists: map[string][]string{}, zsets: map[string]map[string]float64{}}
}

func memberString(v interface{}) string {
	switch m := v.(type) {
	case string:
		return m
	case []byte:
		return string(m)
	default:
		return ""
	}
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append([]string{memberString(v)}, f.lists[key]...)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeRedis) move(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	src := f.lists[source]
	if len(src) == 0 {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	var val string
	if srcpos == "RIGHT" {
		val = src[len(src)-1]
		f.lists[source] = src[:len(src)-1]
	} else {
		val = src[0]
		f.lists[source] = src[1:]
	}
	if destpos == "LEFT" {
		f.lists[destination] = append([]string{val}, f.lists[destination]...)
	} else {
		f.lists[destination] = append(f.lists[destination], val)
	}
	cmd.SetVal(val)
	return cmd
}

func (f *fakeRedis) BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd {
	return f.move(ctx, source, destination, srcpos, destpos)
}

func (f *fakeRedis) LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd {
	return f.move(ctx, source, destination, srcpos, destpos)
}

func (f *fakeRedis) LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := memberString(value)
	removed := int64(0)
	out := f.lists[key][:0]
	for _, v := range f.lists[key] {
		if removed < count && v == want {
			removed++
			continue
		}
		out = append(out, v)
	}
	f.lists[key] = out
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func (f *fakeRedis) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.zsets[key] == nil {
		f.zsets[key] = map[string]float64{}
	}
	for _, m := range members {
		f.zsets[key][memberString(m.Member)] = m.Score
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (f *fakeRedis) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	max, err := strconv.ParseFloat(opt.Max, 64)
	cmd := redis.NewStringSliceCmd(ctx)
	if err != nil {
		cmd.SetErr(err)
		return cmd
	}
	var out []string
	for member, score := range f.zsets[key] {
		if score <= max {
			out = append(out, member)
		}
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeRedis) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := int64(0)
	for _, m := range members {
		member := memberString(m)
		if _, ok := f.zsets[key][member]; ok {
			delete(f.zsets[key], member)
			removed++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(removed)
	return cmd
}

func newTestQueue(client redisCommander) *Queue {
	return &Queue{
		client: client,
		cfg:    config.QueueConfig{MaxAttempts: 2, PopTimeoutSeconds: 1},
		logger: zap.NewNop(),
	}
}

func TestEnqueueDequeueAck(t *testing.T) {
	fake := newFakeRedis()
	q := newTestQueue(fake)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, QueueAssignment, map[string]any{"dispute_id": "dsp-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.Dequeue(ctx, QueueAssignment)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "dsp-1", job.DisputeID())

	// Delivered but not yet acknowledged: the job sits in the in-flight list.
	assert.Empty(t, fake.lists[listKey(QueueAssignment)])
	assert.Len(t, fake.lists[processingKey(QueueAssignment)], 1)

	require.NoError(t, q.Ack(ctx, job))
	assert.Empty(t, fake.lists[processingKey(QueueAssignment)])
}

func TestDequeue_EmptyQueueReturnsNil(t *testing.T) {
	q := newTestQueue(newFakeRedis())

	job, err := q.Dequeue(context.Background(), QueueAssignment)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRecoverInFlight_RequeuesUnacknowledged(t *testing.T) {
	fake := newFakeRedis()
	q := newTestQueue(fake)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, QueueRefund, map[string]any{"dispute_id": "dsp-1"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, QueueRefund)
	require.NoError(t, err)
	require.NotNil(t, job)

	// The process dies here: no ack, no retry. A fresh consumer recovers the
	// delivery instead of losing it.
	moved, err := q.RecoverInFlight(ctx, QueueRefund)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Empty(t, fake.lists[processingKey(QueueRefund)])

	again, err := q.Dequeue(ctx, QueueRefund)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, id, again.ID)
}

func TestRetry_BacksOffThenDeadLetters(t *testing.T) {
	fake := newFakeRedis()
	q := newTestQueue(fake)
	ctx := context.Background()

	job := &Job{ID: "job-1", Queue: QueueNotification, Payload: map[string]any{"dispute_id": "dsp-1"}}
	require.NoError(t, q.Retry(ctx, job))
	assert.Equal(t, 1, job.Attempts)
	assert.Len(t, fake.zsets[delayedKey(QueueNotification)], 1)
	assert.Empty(t, fake.lists[deadKey(QueueNotification)])

	require.NoError(t, q.Retry(ctx, job))
	assert.Equal(t, 2, job.Attempts)
	assert.Len(t, fake.lists[deadKey(QueueNotification)], 1)
}

func TestPromoteDelayed(t *testing.T) {
	fake := newFakeRedis()
	q := newTestQueue(fake)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, QueueAutoResolution, map[string]any{"dispute_id": "dsp-1"}, WithDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Empty(t, fake.lists[listKey(QueueAutoResolution)])

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, q.PromoteDelayed(ctx))

	assert.Len(t, fake.lists[listKey(QueueAutoResolution)], 1)
	assert.Empty(t, fake.zsets[delayedKey(QueueAutoResolution)])
}

func TestWorkerRun_AcksAfterHandling(t *testing.T) {
	fake := newFakeRedis()
	q := newTestQueue(fake)
	w := NewWorker(q, zap.NewNop(), nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, QueueAssignment, map[string]any{"dispute_id": "dsp-1"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, QueueAssignment)
	require.NoError(t, err)
	require.NotNil(t, job)

	w.run(ctx, QueueAssignment, func(ctx context.Context, job *Job) error { return nil }, job)
	assert.Empty(t, fake.lists[processingKey(QueueAssignment)])
}

func TestWorkerRun_FailureSchedulesRetryAndAcks(t *testing.T) {
	fake := newFakeRedis()
	q := newTestQueue(fake)
	w := NewWorker(q, zap.NewNop(), nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, QueueAssignment, map[string]any{"dispute_id": "dsp-1"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, QueueAssignment)
	require.NoError(t, err)
	require.NotNil(t, job)

	w.run(ctx, QueueAssignment, func(ctx context.Context, job *Job) error { return errors.New("boom") }, job)

	// The failure is parked on the delayed set and the delivery acknowledged;
	// it is not lost and not duplicated.
	assert.Len(t, fake.zsets[delayedKey(QueueAssignment)], 1)
	assert.Empty(t, fake.lists[processingKey(QueueAssignment)])
}
