// Package terraform manages deployment infrastructure with terraform.
package terraform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

// Infrastructure implements provisioner.Infrastructure by applying a
// per-deployment module. State survives between runs in a StateStore.
type Infrastructure struct {
	baseWorkingDir string
	execPath       string
	compiler       *Compiler
	state          StateStore
}

var _ provisioner.Infrastructure = (*Infrastructure)(nil)

// Options configures Infrastructure.
type Options struct {
	WorkingDir string
	ExecPath   string
	Region     string
}

func NewInfrastructure(opts Options, state StateStore) *Infrastructure {
	if opts.WorkingDir == "" {
		opts.WorkingDir = filepath.Join(os.TempDir(), "ikon-engine")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	return &Infrastructure{
		baseWorkingDir: opts.WorkingDir,
		execPath:       opts.ExecPath,
		compiler:       NewCompiler(opts.Region),
		state:          state,
	}
}

func (i *Infrastructure) workingDir(t provisioner.Target) string {
	return filepath.Join(i.baseWorkingDir, t.DeploymentID.String(), strconv.FormatInt(time.Now().UnixNano(), 10))
}

func (i *Infrastructure) prepare(ctx context.Context, t provisioner.Target) (*Executor, error) {
	code, err := i.compiler.Compile(t)
	if err != nil {
		return nil, fmt.Errorf("compile stack: %w", err)
	}
	prior, err := i.state.GetState(ctx, t.DeploymentID)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	dir := i.workingDir(t)
	logger.L().Info("using terraform working dir", zap.String("dir", dir), logger.Deployment(t.DeploymentID))
	exec := NewExecutor(dir, i.execPath)
	if err := exec.Initialize(ctx, code, prior); err != nil {
		_ = exec.Cleanup()
		return nil, err
	}
	return exec, nil
}

// Ensure applies the stack. Re-applying an unchanged stack is a no-op.
func (i *Infrastructure) Ensure(ctx context.Context, t provisioner.Target) (*provisioner.InfraResult, error) {
	exec, err := i.prepare(ctx, t)
	if err != nil {
		return nil, err
	}
	defer func() { _ = exec.Cleanup() }()

	res, err := exec.Apply(ctx)
	if err != nil {
		return nil, err
	}
	if err := i.state.SaveState(ctx, t.DeploymentID, res.State); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	return &provisioner.InfraResult{ResourceID: t.Workload, Outputs: res.Outputs}, nil
}

// Destroy removes the stack and clears the stored state.
func (i *Infrastructure) Destroy(ctx context.Context, t provisioner.Target) error {
	exec, err := i.prepare(ctx, t)
	if err != nil {
		return err
	}
	defer func() { _ = exec.Cleanup() }()

	if err := exec.Destroy(ctx); err != nil {
		return err
	}
	return i.state.SaveState(ctx, t.DeploymentID, nil)
}
