package dca

import (
	"context"
	"fmt"
	"time"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/tasks"
)

const (
	defaultBatchSize = 5
	tickTimeout      = 2 * time.Minute
)

// QueueReader is the slice of the DCA client the scheduler needs.
type QueueReader interface {
	HasPendingDailySavings(ctx context.Context, user gcommon.Address) (bool, error)
	QueueLength(ctx context.Context, user gcommon.Address) (uint64, error)
}

// TaskEnqueuer hands queue processing to the worker.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler periodically sweeps a watch list of users and enqueues a
// processing task for anyone with pending DCA work. Execution itself
// happens in the worker so a slow chain never stalls the cron loop.
type Scheduler struct {
	reader    QueueReader
	queue     TaskEnqueuer
	users     []gcommon.Address
	batchSize uint64
	cron      *cron.Cron
	spec      string
	logger    *logrus.Logger
}

func NewScheduler(reader QueueReader, queue TaskEnqueuer, users []gcommon.Address, spec string, logger *logrus.Logger) (*Scheduler, error) {
	if reader == nil {
		return nil, fmt.Errorf("queue reader cannot be nil")
	}
	if queue == nil {
		return nil, fmt.Errorf("task enqueuer cannot be nil")
	}
	if spec == "" {
		spec = "@hourly"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		reader:    reader,
		queue:     queue,
		users:     users,
		batchSize: defaultBatchSize,
		cron:      cron.New(),
		spec:      spec,
		logger:    logger,
	}, nil
}

// Start registers the sweep and begins ticking.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return fmt.Errorf("fail to register dca sweep: %w", err)
	}
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"spec":  s.spec,
		"users": len(s.users),
	}).Info("dca scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	for _, user := range s.users {
		if err := s.sweepUser(ctx, user); err != nil {
			s.logger.WithError(err).WithField("user", user.Hex()).Warn("dca sweep failed for user")
		}
	}
}

func (s *Scheduler) sweepUser(ctx context.Context, user gcommon.Address) error {
	pending, err := s.reader.HasPendingDailySavings(ctx, user)
	if err != nil {
		return fmt.Errorf("fail to check pending savings: %w", err)
	}
	if !pending {
		length, err := s.reader.QueueLength(ctx, user)
		if err != nil {
			return fmt.Errorf("fail to read queue length: %w", err)
		}
		if length == 0 {
			return nil
		}
	}

	task, err := tasks.NewDCAProcessTask(user.Hex(), "", s.batchSize)
	if err != nil {
		return fmt.Errorf("fail to build dca task: %w", err)
	}
	if _, err := s.queue.Enqueue(task); err != nil {
		return fmt.Errorf("fail to enqueue dca task: %w", err)
	}
	s.logger.WithField("user", user.Hex()).Debug("dca processing enqueued")
	return nil
}
