package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/engine"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/services"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/testutil"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/config"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	text.DisableColors()
	os.Exit(m.Run())
}

// newServer runs the API with pipelines executed synchronously.
func newServer(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		ProvisionerDriver: "simulated",
		StageTimeout:      time.Second,
		HealthTimeout:     time.Second,
		LivenessPath:      "/healthz",
		BaseDomain:        "apps.example.test",
	}
	eng, err := engine.New(cfg, testutil.NewDB(t), nil)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(api.Dependencies{
		Deployments: eng.Service(services.DispatcherFunc(eng.Orchestrator.Execute)),
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--api-url", url}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTemplatesList(t *testing.T) {
	url := newServer(t)

	out, err := run(t, url, "templates", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "basic-crm")
	assert.Contains(t, out, "$49.00")
	assert.Contains(t, out, "voice-agent")
}

func TestCreateInspectAndSuspend(t *testing.T) {
	url := newServer(t)

	out, err := run(t, url, "-o", "json", "deployments", "create", "--tenant", "t-42", "--template", "basic-crm", "--company", "Acme", "--wait")
	require.NoError(t, err, out)
	var d models.Deployment
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, models.StatusActive, d.Status)
	assert.Equal(t, "Acme Basic CRM", d.AppName)
	id := d.ID.String()

	out, err = run(t, url, "deployments", "list", "--tenant", "t-42")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "active")

	out, err = run(t, url, "deployments", "logs", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deployment completed successfully")
	assert.Contains(t, out, "stage=infrastructure")

	out, err = run(t, url, "deployments", "health", id)
	require.NoError(t, err)
	assert.Contains(t, out, "active")

	_, err = run(t, url, "deployments", "suspend", id)
	require.NoError(t, err)

	out, err = run(t, url, "deployments", "suspend", id)
	require.Error(t, err)
	assert.Contains(t, out, "invalid_state")
}

func TestConfigRequiresAFlag(t *testing.T) {
	url := newServer(t)
	_, err := run(t, url, "deployments", "config", "6f1c2a52-3f7e-4e55-9a4c-2b1f0d7a1e11")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", "-o", "yaml", "templates", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestInvalidDeploymentID(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", "deployments", "get", "nope")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid deployment id"))
}

func TestPatchFromFlags(t *testing.T) {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(f)
	require.NoError(t, f.Parse([]string{"--maintenance=true", "--feature", "crm=false", "--feature", "calendar=true"}))

	p, err := patchFromFlags(f)
	require.NoError(t, err)
	assert.Nil(t, p.Branding)
	assert.Nil(t, p.Integrations)
	require.NotNil(t, p.Customizations)
	assert.True(t, *p.Customizations.MaintenanceMode)
	assert.Nil(t, p.Customizations.SSLEnabled, "unset flags stay out of the patch")
	assert.Equal(t, map[string]bool{"crm": false, "calendar": true}, p.Features)

	f = pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(f)
	require.NoError(t, f.Parse([]string{"--integration", "stripe=maybe"}))
	_, err = patchFromFlags(f)
	assert.Error(t, err)
}
