package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/queue/tasks"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher hands runs to cmd/worker through Redis.
type AsynqDispatcher struct {
	client Enqueuer
	opts   []asynq.Option
}

// NewAsynqDispatcher enqueues with opts, for example asynq.Queue or
// asynq.MaxRetry.
func NewAsynqDispatcher(client Enqueuer, opts ...asynq.Option) *AsynqDispatcher {
	if len(opts) == 0 {
		opts = []asynq.Option{asynq.MaxRetry(5)}
	}
	return &AsynqDispatcher{client: client, opts: opts}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	task, err := tasks.NewProvisionTask(id, d.opts...)
	if err != nil {
		return fmt.Errorf("build provision task: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue provision task: %w", err)
	}
	logger.L().Info("provision task enqueued", logger.Deployment(id), zap.String("task_id", info.ID), zap.String("queue", info.Queue))
	return nil
}
