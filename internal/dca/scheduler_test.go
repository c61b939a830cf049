package dca

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsave/savings-engine/internal/tasks"
)

type stubReader struct {
	pending    bool
	pendingErr error
	length     uint64
}

func (s stubReader) HasPendingDailySavings(ctx context.Context, user gcommon.Address) (bool, error) {
	return s.pending, s.pendingErr
}

func (s stubReader) QueueLength(ctx context.Context, user gcommon.Address) (uint64, error) {
	return s.length, nil
}

type captureEnqueuer struct {
	enqueued []*asynq.Task
	err      error
}

func (c *captureEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.enqueued = append(c.enqueued, task)
	return &asynq.TaskInfo{}, nil
}

func newTestScheduler(t *testing.T, reader QueueReader, queue TaskEnqueuer) *Scheduler {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	s, err := NewScheduler(reader, queue, []gcommon.Address{dcaUser}, "@hourly", logger)
	require.NoError(t, err)
	return s
}

func TestSweepUserEnqueuesWhenPending(t *testing.T) {
	queue := &captureEnqueuer{}
	s := newTestScheduler(t, stubReader{pending: true}, queue)

	require.NoError(t, s.sweepUser(context.Background(), dcaUser))
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, tasks.TypeDCAProcess, queue.enqueued[0].Type())

	var payload tasks.DCAPayload
	require.NoError(t, json.Unmarshal(queue.enqueued[0].Payload(), &payload))
	assert.Equal(t, dcaUser.Hex(), payload.UserAddress)
	assert.Equal(t, uint64(defaultBatchSize), payload.MaxCount)
}

func TestSweepUserEnqueuesOnNonEmptyQueue(t *testing.T) {
	queue := &captureEnqueuer{}
	s := newTestScheduler(t, stubReader{pending: false, length: 3}, queue)

	require.NoError(t, s.sweepUser(context.Background(), dcaUser))
	assert.Len(t, queue.enqueued, 1)
}

func TestSweepUserSkipsIdleUser(t *testing.T) {
	queue := &captureEnqueuer{}
	s := newTestScheduler(t, stubReader{}, queue)

	require.NoError(t, s.sweepUser(context.Background(), dcaUser))
	assert.Empty(t, queue.enqueued)
}

func TestSweepUserReaderError(t *testing.T) {
	queue := &captureEnqueuer{}
	s := newTestScheduler(t, stubReader{pendingErr: errors.New("rpc down")}, queue)

	err := s.sweepUser(context.Background(), dcaUser)
	require.Error(t, err)
	assert.Empty(t, queue.enqueued)
}

func TestSweepUserEnqueueError(t *testing.T) {
	queue := &captureEnqueuer{err: errors.New("redis down")}
	s := newTestScheduler(t, stubReader{pending: true}, queue)

	require.Error(t, s.sweepUser(context.Background(), dcaUser))
}
