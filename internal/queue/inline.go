// Package queue schedules deployment pipeline runs, either in process or
// through an asynq queue served by cmd/worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

// ErrClosed is returned by Dispatch after Shutdown has begun.
var ErrClosed = errors.New("dispatcher is shutting down")

// RunFunc executes one pipeline pass for a deployment.
type RunFunc func(ctx context.Context, deploymentID uuid.UUID) error

// InlineDispatcher runs pipelines on goroutines in this process. At most
// one run per deployment is active; dispatches that arrive while it runs
// collapse into a single follow-up run.
type InlineDispatcher struct {
	run RunFunc

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running map[uuid.UUID]bool
	again   map[uuid.UUID]bool
}

func NewInlineDispatcher(run RunFunc) *InlineDispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &InlineDispatcher{
		run:     run,
		base:    base,
		cancel:  cancel,
		running: map[uuid.UUID]bool{},
		again:   map[uuid.UUID]bool{},
	}
}

// Dispatch schedules a run and returns immediately. Runs are detached from
// ctx so they outlive the request that triggered them.
func (d *InlineDispatcher) Dispatch(ctx context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.running[id] {
		d.again[id] = true
		logger.L().Debug("pipeline run coalesced", logger.Deployment(id))
		return nil
	}
	d.running[id] = true
	d.wg.Add(1)
	go d.loop(id)
	return nil
}

func (d *InlineDispatcher) loop(id uuid.UUID) {
	defer d.wg.Done()
	for {
		d.runOnce(id)

		d.mu.Lock()
		if d.again[id] && d.base.Err() == nil {
			delete(d.again, id)
			d.mu.Unlock()
			continue
		}
		delete(d.again, id)
		delete(d.running, id)
		d.mu.Unlock()
		return
	}
}

func (d *InlineDispatcher) runOnce(id uuid.UUID) {
	defer func() {
		if p := recover(); p != nil {
			logger.L().Error("pipeline run panicked", logger.Deployment(id), zap.Any("panic", p))
		}
	}()
	if err := d.run(d.base, id); err != nil {
		logger.L().Error("pipeline run failed", logger.Deployment(id), zap.Error(err))
	}
}

// Running reports whether a run for id is in progress.
func (d *InlineDispatcher) Running(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[id]
}

// Shutdown stops accepting work and waits for in-flight runs. When ctx
// expires first, the runs' contexts are cancelled and Shutdown returns
// once they have unwound.
func (d *InlineDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		logger.L().Warn("shutdown deadline reached, cancelling pipeline runs")
		d.cancel()
		<-done
		return fmt.Errorf("drain pipelines: %w", ctx.Err())
	}
}
