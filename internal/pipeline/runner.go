package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/metrics"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

// LogWriter is the audit sink the runner reports to.
type LogWriter interface {
	Append(ctx context.Context, deploymentID uuid.UUID, level models.LogLevel, message string, details map[string]any) (*models.DeploymentLog, error)
}

// Runner executes stages in order, fail-fast. Completed stages are not
// rolled back when a later one fails; the next run converges them again.
type Runner struct {
	stages       []Stage
	logs         LogWriter
	stageTimeout time.Duration
	metrics      *metrics.Metrics
}

func NewRunner(stages []Stage, logs LogWriter, stageTimeout time.Duration, m *metrics.Metrics) *Runner {
	return &Runner{stages: stages, logs: logs, stageTimeout: stageTimeout, metrics: m}
}

// Stages returns the stage names in execution order.
func (r *Runner) Stages() []string {
	out := make([]string, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, s.Name())
	}
	return out
}

// Run executes every applicable stage against d. A stage error or timeout
// is logged and returned as *errors.StageFailure. Any other error means
// the audit log could not be written.
func (r *Runner) Run(ctx context.Context, d *models.Deployment) error {
	// audit writes outlive cancellation of the run itself
	audit := context.WithoutCancel(ctx)
	for _, stage := range r.stages {
		if !stage.Applies(d) {
			logger.L().Debug("stage skipped", logger.Deployment(d.ID), logger.Stage(stage.Name()))
			continue
		}

		res, err := r.execute(ctx, stage, d)
		if err != nil {
			failure := &appErr.StageFailure{Stage: stage.Name(), Cause: err}
			logger.L().Warn("stage failed", logger.Deployment(d.ID), logger.Stage(stage.Name()), zap.Error(err))
			details := map[string]any{"stage": stage.Name(), "error": err.Error()}
			if _, lerr := r.logs.Append(audit, d.ID, models.LevelError, fmt.Sprintf("Stage %s failed", stage.Name()), details); lerr != nil {
				return errors.Join(failure, lerr)
			}
			return failure
		}

		details := map[string]any{"stage": stage.Name()}
		for k, v := range res.Details {
			details[k] = v
		}
		if _, err := r.logs.Append(audit, d.ID, models.LevelInfo, res.Message, details); err != nil {
			return err
		}
	}
	return nil
}

type stageOutcome struct {
	res *Result
	err error
}

// execute bounds one stage by the stage timeout. A stage that ignores its
// context is abandoned when the deadline passes.
func (r *Runner) execute(ctx context.Context, stage Stage, d *models.Deployment) (*Result, error) {
	sctx, cancel := ctx, context.CancelFunc(func() {})
	if r.stageTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, r.stageTimeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan stageOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- stageOutcome{err: fmt.Errorf("stage panicked: %v", p)}
			}
		}()
		res, err := stage.Execute(sctx, d)
		done <- stageOutcome{res: res, err: err}
	}()

	var out stageOutcome
	select {
	case out = <-done:
	case <-sctx.Done():
		out = stageOutcome{err: sctx.Err()}
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case out.err != nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		outcome = metrics.OutcomeTimeout
		out.err = fmt.Errorf("timed out after %s: %w", r.stageTimeout, out.err)
	case out.err != nil:
		outcome = metrics.OutcomeFailure
	}
	r.metrics.StageDone(stage.Name(), outcome, time.Since(start))

	if out.err != nil {
		return nil, out.err
	}
	if out.res == nil {
		out.res = &Result{Message: fmt.Sprintf("Stage %s completed", stage.Name())}
	}
	return out.res, nil
}
