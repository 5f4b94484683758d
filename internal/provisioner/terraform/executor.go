package terraform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/terraform-exec/tfexec"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

const stateFile = "terraform.tfstate"

// Executor wraps terraform-exec for one working directory.
type Executor struct {
	workingDir string
	execPath   string
	tf         *tfexec.Terraform
}

// NewExecutor runs terraform from execPath, or from PATH when empty.
func NewExecutor(workingDir, execPath string) *Executor {
	return &Executor{workingDir: workingDir, execPath: execPath}
}

// Initialize writes the module and any previous state, then runs init.
func (e *Executor) Initialize(ctx context.Context, code *Code, priorState []byte) error {
	if err := os.MkdirAll(e.workingDir, 0o755); err != nil {
		return fmt.Errorf("create working dir: %w", err)
	}

	files := map[string]string{
		"main.tf":      code.MainTF,
		"variables.tf": code.VariablesTF,
		"outputs.tf":   code.OutputsTF,
		"provider.tf":  code.ProviderTF,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(e.workingDir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	if len(priorState) > 0 {
		if err := os.WriteFile(filepath.Join(e.workingDir, stateFile), priorState, 0o600); err != nil {
			return fmt.Errorf("write state file: %w", err)
		}
	}

	tfPath := e.execPath
	if tfPath == "" {
		p, err := exec.LookPath("terraform")
		if err != nil {
			return fmt.Errorf("terraform not found in PATH: %w", err)
		}
		tfPath = p
	}

	tf, err := tfexec.NewTerraform(e.workingDir, tfPath)
	if err != nil {
		return fmt.Errorf("create terraform executor: %w", err)
	}
	e.tf = tf

	logger.L().Info("running terraform init", zap.String("working_dir", e.workingDir))
	if err := tf.Init(ctx); err != nil {
		return fmt.Errorf("terraform init: %w", err)
	}
	return nil
}

// ApplyResult is what a successful apply leaves behind.
type ApplyResult struct {
	Outputs map[string]any
	State   []byte
}

// Apply converges the infrastructure and returns the raw state file.
func (e *Executor) Apply(ctx context.Context) (*ApplyResult, error) {
	if e.tf == nil {
		return nil, errors.New("executor not initialized")
	}
	logger.L().Info("running terraform apply", zap.String("working_dir", e.workingDir))

	if err := e.tf.Apply(ctx); err != nil {
		return nil, fmt.Errorf("terraform apply: %w", err)
	}

	outputs, err := e.tf.Output(ctx)
	if err != nil {
		logger.L().Warn("failed to read terraform outputs", zap.Error(err))
	}

	state, err := os.ReadFile(filepath.Join(e.workingDir, stateFile))
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return &ApplyResult{Outputs: convertOutputs(outputs), State: state}, nil
}

// Destroy tears down everything recorded in the state.
func (e *Executor) Destroy(ctx context.Context) error {
	if e.tf == nil {
		return errors.New("executor not initialized")
	}
	logger.L().Info("running terraform destroy", zap.String("working_dir", e.workingDir))
	if err := e.tf.Destroy(ctx); err != nil {
		return fmt.Errorf("terraform destroy: %w", err)
	}
	return nil
}

// Cleanup removes the working directory.
func (e *Executor) Cleanup() error {
	return os.RemoveAll(e.workingDir)
}

func convertOutputs(tfOutputs map[string]tfexec.OutputMeta) map[string]any {
	outputs := make(map[string]any, len(tfOutputs))
	for key, output := range tfOutputs {
		outputs[key] = output.Value
	}
	return outputs
}
