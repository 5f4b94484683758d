// Package simulated provides collaborators that only wait. They let the
// engine run end to end on a laptop.
package simulated

import (
	"context"
	"fmt"
	"time"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

const certificateLifetime = 90 * 24 * time.Hour

type base struct {
	delay time.Duration
}

func (b base) wait(ctx context.Context, op string, t provisioner.Target) error {
	logger.L().Debug("simulated provisioning step",
		zap.String("op", op), logger.Deployment(t.DeploymentID), zap.Duration("delay", b.delay))
	if b.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(b.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// New returns a full collaborator set in which every call takes delay.
func New(delay time.Duration) provisioner.Set {
	b := base{delay: delay}
	return provisioner.Set{
		Infrastructure: infrastructure{b},
		Runtime:        runtime{b},
		Artifacts:      artifacts{b},
		Certificates:   certificates{b},
		Integrations:   integrations{b},
		Liveness:       liveness{},
	}
}

type infrastructure struct{ base }

func (i infrastructure) Ensure(ctx context.Context, t provisioner.Target) (*provisioner.InfraResult, error) {
	if err := i.wait(ctx, "infrastructure.ensure", t); err != nil {
		return nil, err
	}
	return &provisioner.InfraResult{
		ResourceID: "sim-" + t.Workload,
		Outputs:    map[string]any{"region": "local"},
	}, nil
}

func (i infrastructure) Destroy(ctx context.Context, t provisioner.Target) error {
	return i.wait(ctx, "infrastructure.destroy", t)
}

type runtime struct{ base }

func (r runtime) Configure(ctx context.Context, t provisioner.Target, env map[string]string) error {
	return r.wait(ctx, "runtime.configure", t)
}

type artifacts struct{ base }

func (a artifacts) Deploy(ctx context.Context, t provisioner.Target, artifact string) (*provisioner.Release, error) {
	if artifact == "" {
		return nil, fmt.Errorf("no artifact for template %s", t.TemplateID)
	}
	if err := a.wait(ctx, "artifacts.deploy", t); err != nil {
		return nil, err
	}
	return &provisioner.Release{Artifact: artifact, Version: t.Version}, nil
}

type certificates struct{ base }

func (c certificates) Issue(ctx context.Context, t provisioner.Target, domains []string) (*provisioner.Certificate, error) {
	if err := c.wait(ctx, "certificates.issue", t); err != nil {
		return nil, err
	}
	return &provisioner.Certificate{
		Domains:   append([]string(nil), domains...),
		ExpiresAt: time.Now().UTC().Add(certificateLifetime),
	}, nil
}

type integrations struct{ base }

func (i integrations) Configure(ctx context.Context, t provisioner.Target, integration string) error {
	return i.wait(ctx, "integrations."+integration, t)
}

type liveness struct{}

func (liveness) Probe(ctx context.Context, domain string) error { return ctx.Err() }
