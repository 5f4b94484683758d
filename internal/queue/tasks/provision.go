package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

// TypeDeploymentProvision runs the provisioning pipeline for one deployment.
const TypeDeploymentProvision = "deployment:provision"

// ErrDeploymentBusy means another worker holds the deployment's pipeline
// lock. The task is retried without counting against its retry budget.
var ErrDeploymentBusy = errors.New("deployment pipeline already running")

// ProvisionPayload is the task payload for provision tasks.
type ProvisionPayload struct {
	DeploymentID string `json:"deployment_id"`
}

// NewProvisionTask builds the task that runs the pipeline for id.
func NewProvisionTask(id uuid.UUID, opts ...asynq.Option) (*asynq.Task, error) {
	b, err := json.Marshal(ProvisionPayload{DeploymentID: id.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeploymentProvision, b, opts...), nil
}

// Executor runs one pipeline pass.
type Executor interface {
	Execute(ctx context.Context, deploymentID uuid.UUID) error
}

// ProvisionTaskHandler handles provision tasks.
type ProvisionTaskHandler struct {
	executor Executor
	locks    Locker
	lockTTL  time.Duration
}

// NewProvisionTaskHandler holds each deployment's lock for at most lockTTL,
// which must exceed the longest possible pipeline run.
func NewProvisionTaskHandler(executor Executor, locks Locker, lockTTL time.Duration) *ProvisionTaskHandler {
	return &ProvisionTaskHandler{executor: executor, locks: locks, lockTTL: lockTTL}
}

func (h *ProvisionTaskHandler) HandleProvision(ctx context.Context, t *asynq.Task) error {
	var p ProvisionPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid provision task payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(p.DeploymentID)
	if err != nil {
		logger.L().Error("invalid deployment id in task", zap.Error(err))
		return fmt.Errorf("parse deployment id: %v: %w", err, asynq.SkipRetry)
	}

	release, ok, err := h.locks.Acquire(ctx, LockKey(id), h.lockTTL)
	if err != nil {
		return fmt.Errorf("acquire pipeline lock: %w", err)
	}
	if !ok {
		logger.L().Info("deployment busy, provision task will be retried", logger.Deployment(id))
		return ErrDeploymentBusy
	}
	defer release()

	logger.L().Info("handling provision task", logger.Deployment(id))
	if err := h.executor.Execute(ctx, id); err != nil {
		switch appErr.CodeOf(err) {
		case appErr.CodeNotFound, appErr.CodeInvalidState:
			logger.L().Warn("provision task dropped", logger.Deployment(id), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.L().Error("provision task failed", logger.Deployment(id), zap.Error(err))
		return err
	}
	return nil
}

// IsFailure tells the asynq server which handler errors count as failures.
func IsFailure(err error) bool {
	return !errors.Is(err, ErrDeploymentBusy)
}

// RetryDelay retries busy deployments quickly and backs off otherwise.
func RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	if errors.Is(err, ErrDeploymentBusy) {
		return 5 * time.Second
	}
	return asynq.DefaultRetryDelayFunc(n, err, t)
}
