package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/catalog"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/pipeline"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner/simulated"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/queue"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/testutil"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// recordingDispatcher remembers dispatches and runs nothing.
type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// trackingInfra wraps an infrastructure collaborator, optionally holding
// Ensure until the gate is opened.
type trackingInfra struct {
	inner     provisioner.Infrastructure
	gate      chan struct{}
	started   chan struct{}
	ensures   atomic.Int32
	destroyed atomic.Int32
}

func (i *trackingInfra) Ensure(ctx context.Context, t provisioner.Target) (*provisioner.InfraResult, error) {
	i.ensures.Add(1)
	if i.started != nil {
		select {
		case i.started <- struct{}{}:
		default:
		}
	}
	if i.gate != nil {
		select {
		case <-i.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return i.inner.Ensure(ctx, t)
}

func (i *trackingInfra) Destroy(ctx context.Context, t provisioner.Target) error {
	i.destroyed.Add(1)
	return i.inner.Destroy(ctx, t)
}

type failingCertificates struct{}

func (failingCertificates) Issue(context.Context, provisioner.Target, []string) (*provisioner.Certificate, error) {
	return nil, errors.New("acme challenge failed")
}

type fakeLiveness struct {
	err   error
	calls atomic.Int32
}

func (f *fakeLiveness) Probe(ctx context.Context, domain string) error {
	f.calls.Add(1)
	return f.err
}

type env struct {
	svc         DeploymentService
	orch        *Orchestrator
	deployments repository.DeploymentRepository
	logs        repository.LogRepository
	infra       *trackingInfra
	live        *fakeLiveness
	recorder    *recordingDispatcher
	inline      *queue.InlineDispatcher
}

type envOptions struct {
	inline   bool
	gate     bool
	set      func(*provisioner.Set)
	cacheTTL time.Duration
	// wrap decorates the dispatcher handed to the service
	wrap func(Dispatcher) Dispatcher
}

func newEnv(t *testing.T, opts envOptions) *env {
	t.Helper()
	db := testutil.NewDB(t)
	templates := catalog.MustDefault()

	e := &env{
		deployments: repository.NewDeploymentRepository(db, repository.WithBaseDomain("apps.example.test")),
		logs:        repository.NewLogRepository(db),
		live:        &fakeLiveness{},
		recorder:    &recordingDispatcher{},
	}

	set := simulated.New(0)
	e.infra = &trackingInfra{inner: set.Infrastructure}
	if opts.gate {
		e.infra.gate = make(chan struct{})
		e.infra.started = make(chan struct{}, 8)
	}
	set.Infrastructure = e.infra
	set.Liveness = e.live
	if opts.set != nil {
		opts.set(&set)
	}

	runner := pipeline.NewRunner(pipeline.DefaultStages(set, templates), e.logs, 2*time.Second, nil)
	e.orch = NewOrchestrator(e.deployments, e.logs, runner, nil)
	health := NewHealthService(e.deployments, set.Liveness, time.Second, opts.cacheTTL, nil)

	var dispatcher Dispatcher = e.recorder
	if opts.inline {
		e.inline = queue.NewInlineDispatcher(e.orch.Execute)
		dispatcher = e.inline
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = e.inline.Shutdown(ctx)
		})
	}
	if opts.wrap != nil {
		dispatcher = opts.wrap(dispatcher)
	}
	e.svc = NewDeploymentService(templates, e.deployments, e.logs, dispatcher, health)
	return e
}

// stall stores a deployment in status without scheduling a run, as if the
// process stopped right after accepting it.
func (e *env) stall(t *testing.T, status models.Status) *models.Deployment {
	t.Helper()
	ctx := context.Background()
	d := &models.Deployment{TenantID: "tenant-1", TemplateID: "basic-crm", AppName: "Acme Basic CRM"}
	tpl, err := catalog.MustDefault().Get("basic-crm")
	require.NoError(t, err)
	d.SetConfig(tpl.Settings())
	require.NoError(t, e.deployments.Create(ctx, d))
	if status != models.StatusPending {
		_, err := e.deployments.Mutate(ctx, d.ID, func(rec *models.Deployment) error {
			rec.Status = status
			return nil
		})
		require.NoError(t, err)
	}
	return e.get(t, d.ID)
}

func acmeInput() CreateDeploymentInput {
	return CreateDeploymentInput{
		TenantID:   "tenant-1",
		TemplateID: "basic-crm",
		Config:     models.ConfigPatch{Branding: &models.BrandingPatch{CompanyName: strPtr("Acme")}},
	}
}

func (e *env) create(t *testing.T, in CreateDeploymentInput) *models.Deployment {
	t.Helper()
	d, err := e.svc.CreateDeployment(context.Background(), in)
	require.NoError(t, err)
	return d
}

func (e *env) get(t *testing.T, id uuid.UUID) *models.Deployment {
	t.Helper()
	d, err := e.svc.GetDeployment(context.Background(), id)
	require.NoError(t, err)
	return d
}

// chronological returns the log in the order it was written.
func (e *env) chronological(t *testing.T, id uuid.UUID) []models.DeploymentLog {
	t.Helper()
	entries, err := e.svc.GetDeploymentLogs(context.Background(), id)
	require.NoError(t, err)
	out := make([]models.DeploymentLog, len(entries))
	for i, entry := range entries {
		out[len(entries)-1-i] = entry
	}
	return out
}

func stageEntries(entries []models.DeploymentLog) []models.DeploymentLog {
	var out []models.DeploymentLog
	for _, entry := range entries {
		if entry.Stage() != "" {
			out = append(out, entry)
		}
	}
	return out
}

func stageNames(entries []models.DeploymentLog) []string {
	var out []string
	for _, entry := range stageEntries(entries) {
		out = append(out, entry.Stage())
	}
	return out
}

func (e *env) waitForStatus(t *testing.T, id uuid.UUID, status models.Status) *models.Deployment {
	t.Helper()
	require.Eventually(t, func() bool {
		d, err := e.svc.GetDeployment(context.Background(), id)
		return err == nil && d.Status == status
	}, 5*time.Second, 5*time.Millisecond, "deployment never reached %s", status)
	return e.get(t, id)
}

// activate runs the pipeline for a freshly created deployment synchronously.
func (e *env) activate(t *testing.T, in CreateDeploymentInput) *models.Deployment {
	t.Helper()
	d := e.create(t, in)
	require.NoError(t, e.orch.Execute(context.Background(), d.ID))
	d = e.get(t, d.ID)
	require.Equal(t, models.StatusActive, d.Status)
	return d
}

func TestCreateDeploymentIsPendingWithCreatedLog(t *testing.T) {
	e := newEnv(t, envOptions{})

	d := e.create(t, acmeInput())

	assert.Equal(t, models.StatusPending, d.Status)
	assert.Equal(t, models.EnvironmentStaging, d.Environment)
	assert.Equal(t, 0, d.Version)
	assert.Nil(t, d.DeployedAt)
	assert.Equal(t, "Acme Basic CRM", d.AppName)
	assert.Equal(t, d.Subdomain+".apps.example.test", d.Domain)

	cfg := d.Config()
	assert.Equal(t, "Acme", cfg.Branding.CompanyName)
	assert.Equal(t, "#1f6feb", cfg.Branding.PrimaryColor, "template defaults fill the gaps")
	assert.True(t, cfg.Features["crm"])
	assert.True(t, cfg.Customizations.SSLEnabled)

	logs := e.chronological(t, d.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, "Deployment created", logs[0].Message)
	assert.Equal(t, models.LevelInfo, logs[0].Level)

	assert.Equal(t, 1, e.recorder.count())
}

func TestCreateDeploymentExplicitEmptyBranding(t *testing.T) {
	e := newEnv(t, envOptions{})

	d := e.create(t, acmeInput())
	assert.NotEmpty(t, d.Config().Branding.LogoURL, "template default")

	in := acmeInput()
	in.Config.Branding.LogoURL = strPtr("")
	d = e.create(t, in)
	assert.Empty(t, d.Config().Branding.LogoURL)
	assert.Empty(t, e.get(t, d.ID).Config().Branding.LogoURL)
}

func TestCreateDeploymentUnknownTemplate(t *testing.T) {
	e := newEnv(t, envOptions{})

	_, err := e.svc.CreateDeployment(context.Background(), CreateDeploymentInput{TenantID: "t", TemplateID: "nope"})
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	all, err := e.svc.GetDeployments(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, e.recorder.count())
}

func TestCreateDeploymentValidatesInput(t *testing.T) {
	e := newEnv(t, envOptions{})

	_, err := e.svc.CreateDeployment(context.Background(), CreateDeploymentInput{TemplateID: "basic-crm"})
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	in := acmeInput()
	in.Config.Branding.PrimaryColor = strPtr("blue")
	_, err = e.svc.CreateDeployment(context.Background(), in)
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestCreateDeploymentDispatchFailure(t *testing.T) {
	e := newEnv(t, envOptions{})
	e.recorder.err = errors.New("redis unreachable")

	_, err := e.svc.CreateDeployment(context.Background(), acmeInput())
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodeUnavailable))

	all, err := e.svc.GetDeployments(context.Background(), "tenant-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.StatusFailed, all[0].Status)

	logs := e.chronological(t, all[0].ID)
	require.Len(t, logs, 2)
	assert.Equal(t, models.LevelError, logs[1].Level)
}

func TestPipelineSuccess(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())

	assert.Equal(t, models.EnvironmentProduction, d.Environment)
	require.NotNil(t, d.DeployedAt)
	require.NotNil(t, d.LastDeployedAt)
	assert.Equal(t, 1, d.Version)
	assert.NotEmpty(t, d.ConfigHash)

	logs := e.chronological(t, d.ID)
	assert.Equal(t, []string{"infrastructure", "environment", "application", "ssl", "integrations"}, stageNames(logs))
	for _, entry := range stageEntries(logs) {
		assert.Equal(t, models.LevelInfo, entry.Level)
	}
	assert.Equal(t, "Deployment created", logs[0].Message)
	assert.Equal(t, "Deployment completed successfully", logs[len(logs)-1].Message)
	for i := 1; i < len(logs); i++ {
		assert.False(t, logs[i].Timestamp.Before(logs[i-1].Timestamp), "timestamps are non-decreasing")
	}
}

func TestPipelineWithoutSSL(t *testing.T) {
	e := newEnv(t, envOptions{})
	in := acmeInput()
	in.Config.Customizations = &models.CustomizationsPatch{SSLEnabled: boolPtr(false)}

	d := e.activate(t, in)
	assert.Equal(t, []string{"infrastructure", "environment", "application", "integrations"}, stageNames(e.chronological(t, d.ID)))
}

func TestPipelineStageFailure(t *testing.T) {
	e := newEnv(t, envOptions{set: func(s *provisioner.Set) { s.Certificates = failingCertificates{} }})
	d := e.create(t, acmeInput())

	// a stage failure is recorded, not returned
	require.NoError(t, e.orch.Execute(context.Background(), d.ID))

	d = e.get(t, d.ID)
	assert.Equal(t, models.StatusFailed, d.Status)
	assert.Nil(t, d.DeployedAt)
	assert.Equal(t, 0, d.Version)

	stages := stageEntries(e.chronological(t, d.ID))
	require.Len(t, stages, 4)
	for _, entry := range stages[:3] {
		assert.Equal(t, models.LevelInfo, entry.Level)
	}
	failed := stages[3]
	assert.Equal(t, models.LevelError, failed.Level)
	assert.Equal(t, "ssl", failed.Stage())
	assert.Equal(t, "acme challenge failed", failed.Details["error"])
	assert.NotContains(t, stageNames(stages), "integrations")

	// no rollback of the stages that did run
	assert.Equal(t, int32(0), e.infra.destroyed.Load())
}

func TestRedeployAfterFailure(t *testing.T) {
	failing := true
	var mu sync.Mutex
	e := newEnv(t, envOptions{set: func(s *provisioner.Set) {
		inner := s.Certificates
		s.Certificates = certificatesFunc(func(ctx context.Context, target provisioner.Target, domains []string) (*provisioner.Certificate, error) {
			mu.Lock()
			defer mu.Unlock()
			if failing {
				return nil, errors.New("rate limited")
			}
			return inner.Issue(ctx, target, domains)
		})
	}})
	d := e.create(t, acmeInput())
	require.NoError(t, e.orch.Execute(context.Background(), d.ID))
	require.Equal(t, models.StatusFailed, e.get(t, d.ID).Status)

	mu.Lock()
	failing = false
	mu.Unlock()

	require.NoError(t, e.svc.RedeployApp(context.Background(), d.ID))
	assert.Equal(t, models.StatusDeploying, e.get(t, d.ID).Status)
	require.NoError(t, e.orch.Execute(context.Background(), d.ID))

	d = e.get(t, d.ID)
	assert.Equal(t, models.StatusActive, d.Status)
	assert.Equal(t, 1, d.Version)
	assert.Equal(t, int32(2), e.infra.ensures.Load(), "infrastructure is converged again, not rolled back")
	assert.Equal(t, int32(0), e.infra.destroyed.Load())
}

type certificatesFunc func(ctx context.Context, t provisioner.Target, domains []string) (*provisioner.Certificate, error)

func (f certificatesFunc) Issue(ctx context.Context, t provisioner.Target, domains []string) (*provisioner.Certificate, error) {
	return f(ctx, t, domains)
}

func TestRedeployRejectedWhileInFlight(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.create(t, acmeInput())

	err := e.svc.RedeployApp(context.Background(), d.ID)
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalidState))
	assert.Equal(t, models.StatusPending, e.get(t, d.ID).Status)
	assert.Len(t, e.chronological(t, d.ID), 1)
}

func TestRedeployActiveAndSuspended(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())
	first := *d.LastDeployedAt

	require.NoError(t, e.svc.RedeployApp(context.Background(), d.ID))
	require.NoError(t, e.orch.Execute(context.Background(), d.ID))
	d = e.get(t, d.ID)
	assert.Equal(t, 2, d.Version)
	assert.True(t, d.LastDeployedAt.After(first) || d.LastDeployedAt.Equal(first))

	require.NoError(t, e.svc.SuspendDeployment(context.Background(), d.ID))
	require.NoError(t, e.svc.RedeployApp(context.Background(), d.ID))
	require.NoError(t, e.orch.Execute(context.Background(), d.ID))
	assert.Equal(t, models.StatusActive, e.get(t, d.ID).Status)
}

func TestSuspendFromActive(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())
	before := len(e.chronological(t, d.ID))

	require.NoError(t, e.svc.SuspendDeployment(context.Background(), d.ID))

	assert.Equal(t, models.StatusSuspended, e.get(t, d.ID).Status)
	logs := e.chronological(t, d.ID)
	require.Len(t, logs, before+1)
	assert.Equal(t, "Deployment suspended", logs[len(logs)-1].Message)
	assert.Equal(t, models.LevelInfo, logs[len(logs)-1].Level)
	assert.Equal(t, int32(0), e.infra.destroyed.Load(), "suspend keeps infrastructure")
}

func TestSuspendFromOtherStatesDoesNothing(t *testing.T) {
	e := newEnv(t, envOptions{set: func(s *provisioner.Set) { s.Certificates = failingCertificates{} }})

	pending := e.create(t, acmeInput())
	failed := e.create(t, acmeInput())
	require.NoError(t, e.orch.Execute(context.Background(), failed.ID))

	for _, id := range []uuid.UUID{pending.ID, failed.ID} {
		before := e.get(t, id)
		logsBefore := len(e.chronological(t, id))

		err := e.svc.SuspendDeployment(context.Background(), id)
		require.Error(t, err)
		assert.True(t, appErr.IsCode(err, appErr.CodeInvalidState))

		after := e.get(t, id)
		assert.Equal(t, before.Status, after.Status)
		assert.Len(t, e.chronological(t, id), logsBefore)
	}

	err := e.svc.SuspendDeployment(context.Background(), uuid.New())
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestSuspendTwiceIsRejected(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())

	require.NoError(t, e.svc.SuspendDeployment(context.Background(), d.ID))
	err := e.svc.SuspendDeployment(context.Background(), d.ID)
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalidState))
}

func TestActivateFromSuspendedRunsNoStages(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())
	require.NoError(t, e.svc.SuspendDeployment(context.Background(), d.ID))
	stagesBefore := len(stageEntries(e.chronological(t, d.ID)))
	ensures := e.infra.ensures.Load()

	require.NoError(t, e.svc.ActivateDeployment(context.Background(), d.ID))

	after := e.get(t, d.ID)
	assert.Equal(t, models.StatusActive, after.Status)
	assert.Equal(t, d.Version, after.Version)
	assert.Equal(t, d.LastDeployedAt.UnixNano(), after.LastDeployedAt.UnixNano())

	logs := e.chronological(t, d.ID)
	assert.Len(t, stageEntries(logs), stagesBefore)
	assert.Equal(t, "Deployment activated", logs[len(logs)-1].Message)
	assert.Equal(t, ensures, e.infra.ensures.Load())
	assert.Equal(t, 1, e.recorder.count(), "only the create dispatched")
}

func TestActivateFromOtherStatesDoesNothing(t *testing.T) {
	e := newEnv(t, envOptions{})
	active := e.activate(t, acmeInput())
	pending := e.create(t, acmeInput())

	for _, d := range []*models.Deployment{active, pending} {
		logsBefore := len(e.chronological(t, d.ID))
		err := e.svc.ActivateDeployment(context.Background(), d.ID)
		assert.True(t, appErr.IsCode(err, appErr.CodeInvalidState))
		assert.Equal(t, d.Status, e.get(t, d.ID).Status)
		assert.Len(t, e.chronological(t, d.ID), logsBefore)
	}
}

func TestUpdateCustomizationsDoesNotRedeploy(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())
	dispatches := e.recorder.count()
	stagesBefore := len(stageEntries(e.chronological(t, d.ID)))

	patch := models.ConfigPatch{Customizations: &models.CustomizationsPatch{MaintenanceMode: boolPtr(true)}}
	require.NoError(t, e.svc.UpdateDeploymentConfig(context.Background(), d.ID, patch))

	after := e.get(t, d.ID)
	assert.Equal(t, models.StatusActive, after.Status)
	assert.True(t, after.Config().Customizations.MaintenanceMode)
	assert.Equal(t, d.LastDeployedAt.UnixNano(), after.LastDeployedAt.UnixNano())
	assert.Equal(t, dispatches, e.recorder.count())

	logs := e.chronological(t, d.ID)
	assert.Len(t, stageEntries(logs), stagesBefore)
	last := logs[len(logs)-1]
	assert.Equal(t, "Configuration updated", last.Message)
	assert.Equal(t, false, last.Details["redeploy"])
}

func TestUpdateBrandingRedeploys(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())
	dispatches := e.recorder.count()

	patch := models.ConfigPatch{Branding: &models.BrandingPatch{CompanyName: strPtr("X")}}
	require.NoError(t, e.svc.UpdateDeploymentConfig(context.Background(), d.ID, patch))

	mid := e.get(t, d.ID)
	assert.Equal(t, models.StatusDeploying, mid.Status)
	assert.Equal(t, "X", mid.Config().Branding.CompanyName)
	assert.Equal(t, "#1f6feb", mid.Config().Branding.PrimaryColor)
	assert.Equal(t, dispatches+1, e.recorder.count())

	require.NoError(t, e.orch.Execute(context.Background(), d.ID))

	after := e.get(t, d.ID)
	assert.Equal(t, models.StatusActive, after.Status)
	assert.Equal(t, 2, after.Version)
	assert.True(t, after.LastDeployedAt.After(*d.LastDeployedAt))
	assert.Equal(t, d.DeployedAt.UnixNano(), after.DeployedAt.UnixNano(), "first deploy time is kept")
	assert.NotEqual(t, d.ConfigHash, after.ConfigHash)
	assert.Len(t, stageEntries(e.chronological(t, d.ID)), 10)
}

func TestUpdateUnknownDeployment(t *testing.T) {
	e := newEnv(t, envOptions{})
	err := e.svc.UpdateDeploymentConfig(context.Background(), uuid.New(), models.ConfigPatch{Features: map[string]bool{"crm": false}})
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestOrchestratorSkipsSuspended(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())
	require.NoError(t, e.svc.SuspendDeployment(context.Background(), d.ID))
	ensures := e.infra.ensures.Load()

	require.NoError(t, e.orch.Execute(context.Background(), d.ID))
	assert.Equal(t, models.StatusSuspended, e.get(t, d.ID).Status)
	assert.Equal(t, ensures, e.infra.ensures.Load())
}

func TestOrchestratorUnknownDeployment(t *testing.T) {
	e := newEnv(t, envOptions{})
	err := e.orch.Execute(context.Background(), uuid.New())
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestEndToEnd(t *testing.T) {
	e := newEnv(t, envOptions{inline: true})
	ctx := context.Background()

	d, err := e.svc.CreateDeployment(ctx, acmeInput())
	require.NoError(t, err)

	d = e.waitForStatus(t, d.ID, models.StatusActive)
	assert.Equal(t, models.EnvironmentProduction, d.Environment)

	logs, err := e.svc.GetDeploymentLogs(ctx, d.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(logs), 4)
	// newest first
	assert.Equal(t, "Deployment completed successfully", logs[0].Message)
	assert.Equal(t, models.LevelInfo, logs[0].Level)
	assert.Equal(t, "Deployment created", logs[len(logs)-1].Message)

	health, err := e.svc.CheckDeploymentHealth(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", health.Status)
	assert.GreaterOrEqual(t, health.UptimeMs, int64(0))

	listed, err := e.svc.GetDeployments(ctx, "tenant-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, d.ID, listed[0].ID)
}

func TestConfigUpdateDuringRunIsCoalesced(t *testing.T) {
	e := newEnv(t, envOptions{inline: true, gate: true})
	ctx := context.Background()

	d := e.create(t, acmeInput())
	<-e.infra.started
	assert.Equal(t, models.StatusDeploying, e.get(t, d.ID).Status)

	// lifecycle calls are refused while the pipeline owns the record
	assert.True(t, appErr.IsCode(e.svc.SuspendDeployment(ctx, d.ID), appErr.CodeInvalidState))
	assert.True(t, appErr.IsCode(e.svc.RedeployApp(ctx, d.ID), appErr.CodeInvalidState))

	patch := models.ConfigPatch{Features: map[string]bool{"calendar": true}}
	require.NoError(t, e.svc.UpdateDeploymentConfig(ctx, d.ID, patch))
	require.NoError(t, e.svc.UpdateDeploymentConfig(ctx, d.ID, models.ConfigPatch{Branding: &models.BrandingPatch{CompanyName: strPtr("Acme 2")}}))
	close(e.infra.gate)

	require.Eventually(t, func() bool {
		got, err := e.svc.GetDeployment(ctx, d.ID)
		return err == nil && got.Status == models.StatusActive && got.Version == 2
	}, 5*time.Second, 5*time.Millisecond)

	final := e.get(t, d.ID)
	assert.True(t, final.Config().Features["calendar"])
	assert.Equal(t, "Acme 2", final.Config().Branding.CompanyName)
	assert.Equal(t, int32(2), e.infra.ensures.Load(), "one run plus exactly one follow-up")

	completed := 0
	for _, entry := range e.chronological(t, d.ID) {
		if entry.Message == "Deployment completed successfully" {
			completed++
		}
	}
	assert.Equal(t, 2, completed)
}

func TestFailedFollowUpDispatchLeavesRunAlone(t *testing.T) {
	var calls atomic.Int32
	e := newEnv(t, envOptions{inline: true, gate: true, wrap: func(next Dispatcher) Dispatcher {
		return DispatcherFunc(func(ctx context.Context, id uuid.UUID) error {
			if calls.Add(1) > 1 {
				return errors.New("redis unreachable")
			}
			return next.Dispatch(ctx, id)
		})
	}})
	ctx := context.Background()

	d := e.create(t, acmeInput())
	<-e.infra.started

	err := e.svc.UpdateDeploymentConfig(ctx, d.ID, models.ConfigPatch{Features: map[string]bool{"calendar": true}})
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodeUnavailable))
	assert.Equal(t, models.StatusDeploying, e.get(t, d.ID).Status, "the running pipeline still owns the record")

	close(e.infra.gate)
	final := e.waitForStatus(t, d.ID, models.StatusActive)
	assert.Equal(t, 1, final.Version)
	assert.True(t, final.Config().Features["calendar"], "the patch is stored")

	var warnings, errs int
	for _, entry := range e.chronological(t, d.ID) {
		switch entry.Level {
		case models.LevelWarning:
			assert.Equal(t, "Pipeline could not be scheduled", entry.Message)
			warnings++
		case models.LevelError:
			errs++
		}
	}
	assert.Equal(t, 1, warnings)
	assert.Zero(t, errs)
}

func TestUpdateDispatchFailureFailsOwnedRedeploy(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())
	e.recorder.err = errors.New("redis unreachable")

	err := e.svc.UpdateDeploymentConfig(context.Background(), d.ID, models.ConfigPatch{Features: map[string]bool{"calendar": true}})
	assert.True(t, appErr.IsCode(err, appErr.CodeUnavailable))

	assert.Equal(t, models.StatusFailed, e.get(t, d.ID).Status)
	logs := e.chronological(t, d.ID)
	last := logs[len(logs)-1]
	assert.Equal(t, models.LevelError, last.Level)
	assert.Equal(t, "Pipeline could not be scheduled", last.Message)
}

func TestRedeployRecoversStalledDeployment(t *testing.T) {
	for _, status := range []models.Status{models.StatusPending, models.StatusDeploying} {
		t.Run(string(status), func(t *testing.T) {
			e := newEnv(t, envOptions{inline: true})
			d := e.stall(t, status)

			require.NoError(t, e.svc.RedeployApp(context.Background(), d.ID))
			final := e.waitForStatus(t, d.ID, models.StatusActive)
			assert.Equal(t, 1, final.Version)
			assert.Equal(t, int32(1), e.infra.ensures.Load())
		})
	}
}

func TestRedeployOfStalledDeploymentNeedsRunTracking(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.stall(t, models.StatusDeploying)

	err := e.svc.RedeployApp(context.Background(), d.ID)
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalidState))
	assert.Zero(t, e.recorder.count())
}

func TestResumeInFlight(t *testing.T) {
	e := newEnv(t, envOptions{inline: true})
	ctx := context.Background()

	pending := e.stall(t, models.StatusPending)
	deploying := e.stall(t, models.StatusDeploying)
	failed := e.stall(t, models.StatusFailed)

	n, err := ResumeInFlight(ctx, e.deployments, e.logs, e.inline)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, d := range []*models.Deployment{pending, deploying} {
		e.waitForStatus(t, d.ID, models.StatusActive)
		assert.Equal(t, "Pipeline resumed after restart", e.chronological(t, d.ID)[0].Message)
	}
	assert.Equal(t, models.StatusFailed, e.get(t, failed.ID).Status)
	assert.Empty(t, e.chronological(t, failed.ID))
}

func TestConcurrentCreatesAcrossTenants(t *testing.T) {
	e := newEnv(t, envOptions{})
	const n = 20

	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := acmeInput()
			if i%2 == 0 {
				in.TenantID = "tenant-2"
			}
			d, err := e.svc.CreateDeployment(context.Background(), in)
			if assert.NoError(t, err) {
				ids <- d.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		d := e.get(t, id)
		assert.False(t, seen[d.Subdomain])
		seen[d.Subdomain] = true
	}
	assert.Len(t, seen, n)

	t1, err := e.svc.GetDeployments(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Len(t, t1, n/2)
}

func TestTemplatesAndLookups(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := context.Background()

	assert.Len(t, e.svc.GetDeploymentTemplates(ctx), 3)
	tpl, err := e.svc.GetDeploymentTemplate(ctx, "voice-agent")
	require.NoError(t, err)
	assert.Equal(t, "voice-agent", tpl.ID)

	_, err = e.svc.GetDeployment(ctx, uuid.New())
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	_, err = e.svc.GetDeploymentLogs(ctx, uuid.New())
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestHealthReportsStatusAndUptime(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())

	res, err := e.svc.CheckDeploymentHealth(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusActive), res.Status)
	assert.GreaterOrEqual(t, res.UptimeMs, int64(0))
	assert.GreaterOrEqual(t, res.ResponseTimeMs, int64(0))
	assert.False(t, res.CheckedAt.IsZero())

	// probing never changes the deployment
	assert.Equal(t, d.Status, e.get(t, d.ID).Status)
}

func TestHealthProbeFailure(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.activate(t, acmeInput())
	e.live.err = errors.New("connection refused")

	res, err := e.svc.CheckDeploymentHealth(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, int64(0), res.UptimeMs)
	assert.Equal(t, models.StatusActive, e.get(t, d.ID).Status)
}

func TestHealthUnknownDeployment(t *testing.T) {
	e := newEnv(t, envOptions{})
	_, err := e.svc.CheckDeploymentHealth(context.Background(), uuid.New())
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	assert.Equal(t, int32(0), e.live.calls.Load())
}

func TestHealthResultsAreCached(t *testing.T) {
	e := newEnv(t, envOptions{cacheTTL: time.Minute})
	d := e.activate(t, acmeInput())

	first, err := e.svc.CheckDeploymentHealth(context.Background(), d.ID)
	require.NoError(t, err)
	second, err := e.svc.CheckDeploymentHealth(context.Background(), d.ID)
	require.NoError(t, err)

	assert.Equal(t, int32(1), e.live.calls.Load())
	assert.Equal(t, first.CheckedAt, second.CheckedAt)
}

func TestHealthCacheKeepsStatusCurrent(t *testing.T) {
	e := newEnv(t, envOptions{cacheTTL: time.Minute})
	ctx := context.Background()
	d := e.activate(t, acmeInput())

	res, err := e.svc.CheckDeploymentHealth(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusActive), res.Status)

	require.NoError(t, e.svc.SuspendDeployment(ctx, d.ID))
	res, err = e.svc.CheckDeploymentHealth(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusSuspended), res.Status)
	assert.Equal(t, int32(1), e.live.calls.Load(), "the probe outcome is still cached")
}

func TestHealthBeforeFirstDeploy(t *testing.T) {
	e := newEnv(t, envOptions{})
	d := e.create(t, acmeInput())

	res, err := e.svc.CheckDeploymentHealth(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusPending), res.Status)
	assert.Equal(t, int64(0), res.UptimeMs)
}
