package wizard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/platform/cloud"
	"github.com/imamik/hostlock/internal/recovery"
	"github.com/imamik/hostlock/internal/state"
	hltest "github.com/imamik/hostlock/internal/testing"
)

type fakeScaffolder struct {
	calls int
	err   error
}

func (f *fakeScaffolder) Scaffold(_ context.Context, projectPath, _ string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []string{filepath.Join(projectPath, "compose.yaml")}, nil
}

type fakeDNS struct {
	records map[string]string
}

func (f *fakeDNS) EnsureRecord(_ context.Context, domain, _, value string) error {
	if f.records == nil {
		f.records = make(map[string]string)
	}
	f.records[domain] = value
	return nil
}

func (f *fakeDNS) Resolve(_ context.Context, domain string) ([]string, error) {
	if v, ok := f.records[domain]; ok {
		return []string{v}, nil
	}
	return nil, nil
}

type fakeCerts struct {
	err       error
	lastEmail string
}

func (f *fakeCerts) Issue(_ context.Context, domain, email string) (CertInfo, error) {
	f.lastEmail = email
	if f.err != nil {
		return CertInfo{}, f.err
	}
	return CertInfo{Domain: domain, NotAfter: time.Now().Add(90 * 24 * time.Hour)}, nil
}

type fakeDeployer struct {
	deployErr   error
	validateErr error
}

func (f *fakeDeployer) Deploy(_ context.Context, _, host string) (DeployResult, error) {
	if f.deployErr != nil {
		return DeployResult{}, f.deployErr
	}
	return DeployResult{Release: "v1", URL: "https://" + host}, nil
}

func (f *fakeDeployer) Validate(_ context.Context, _ string) error {
	return f.validateErr
}

type fakeHardener struct {
	calls    int
	failures int
	err      error
}

func (f *fakeHardener) Harden(_ context.Context, _ *config.Config) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.err
}

type fixture struct {
	cfg        *config.Config
	sess       *state.Session
	scaffolder *fakeScaffolder
	dns        *fakeDNS
	certs      *fakeCerts
	deployer   *fakeDeployer
	hardener   *fakeHardener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	projectDir := t.TempDir()
	sess, err := state.NewStore(t.TempDir()).NewSession(projectDir, StepOrder())
	require.NoError(t, err)

	return &fixture{
		cfg: &config.Config{
			Domain:      "example.test",
			ProjectPath: projectDir,
			SSH:         hltest.TestSSHConfig(t, t.TempDir()),
			Cloud:       config.Cloud{ServerName: "web-1", ServerType: "cx22", Image: "ubuntu-24.04", Location: "nbg1", DryRun: true},
		},
		sess:       sess,
		scaffolder: &fakeScaffolder{},
		dns:        &fakeDNS{},
		certs:      &fakeCerts{},
		deployer:   &fakeDeployer{},
		hardener:   &fakeHardener{},
	}
}

func (f *fixture) context(t *testing.T, creds Credentials) *Context {
	t.Helper()
	deps := Deps{
		Credentials: Static{Creds: creds},
		Scaffolder:  f.scaffolder,
		Cloud:       cloud.NewDryRun(),
		DNS:         f.dns,
		Certs:       f.certs,
		Deployer:    f.deployer,
		Hardener:    f.hardener,
	}
	return NewContext(hltest.TestContext(t), f.cfg, f.sess, deps, observe.Noop{})
}

func TestStepOrder(t *testing.T) {
	want := []string{
		StepCollectCredentials,
		StepScaffoldProject,
		StepProvisionServer,
		StepConfigureDNS,
		StepAwaitDNSPropagation,
		StepHardenServer,
		StepIssueCertificate,
		StepDeployApplication,
		StepValidateDeployment,
		StepWriteAccessSummary,
	}
	assert.Equal(t, want, StepOrder())

	critical := map[string]bool{}
	for _, s := range Registry() {
		critical[s.Name()] = s.Critical()
	}
	assert.True(t, critical[StepCollectCredentials])
	assert.True(t, critical[StepDeployApplication])
	assert.True(t, critical[StepValidateDeployment])
	assert.False(t, critical[StepScaffoldProject])
	assert.False(t, critical[StepHardenServer])
}

func TestFullRunDryRun(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")
	f := newFixture(t)
	c := f.context(t, Credentials{Email: "ops@example.test"})

	r := NewRunner(recovery.NewController(&recovery.Scripted{}), observe.Noop{})
	require.NoError(t, r.Run(c))

	assert.True(t, f.sess.Completed)
	for _, name := range StepOrder() {
		assert.True(t, f.sess.StepDone(name), name)
	}

	// Provisioning recorded the simulated server and propagated its
	// address into the run configuration.
	prov := f.sess.StepResults[StepProvisionServer]
	require.NotNil(t, prov)
	assert.Equal(t, true, prov["simulated"])
	assert.Equal(t, "192.0.2.1", f.cfg.Host)
	assert.Equal(t, "192.0.2.1", f.dns.records["example.test"])

	assert.Equal(t, 1, f.scaffolder.calls)
	assert.Equal(t, 1, f.hardener.calls)
	assert.Equal(t, "ops@example.test", f.certs.lastEmail)

	summary, err := os.ReadFile(filepath.Join(f.cfg.ProjectPath, "ACCESS.md"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "deploy@192.0.2.1")
	assert.Contains(t, string(summary), "-p 2222")
}

func TestResumeSkipsRecordedSteps(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")
	f := newFixture(t)
	require.NoError(t, f.sess.MarkStepCompleted(StepCollectCredentials, map[string]any{"email": "ops@example.test"}))
	require.NoError(t, f.sess.MarkStepCompleted(StepScaffoldProject, nil))

	c := f.context(t, Credentials{})

	r := NewRunner(recovery.NewController(&recovery.Scripted{}), observe.Noop{})
	require.NoError(t, r.Run(c))

	assert.Equal(t, 0, f.scaffolder.calls, "recorded steps must not re-run")
	assert.True(t, f.sess.Completed)
	// Certificate contact came from the recorded result, not memory.
	assert.Equal(t, "ops@example.test", f.certs.lastEmail)
}

func TestMissingCloudTokenIsConfigError(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")
	f := newFixture(t)
	f.cfg.Cloud.DryRun = false
	c := f.context(t, Credentials{})

	// A config-class failure offers no retry; the empty script defaults
	// to save-and-exit.
	r := NewRunner(recovery.NewController(&recovery.Scripted{}), observe.Noop{})
	err := r.Run(c)
	require.ErrorIs(t, err, recovery.ErrSaveAndExit)
	assert.False(t, f.sess.StepDone(StepCollectCredentials))
	assert.False(t, f.sess.Completed)
}

func TestCriticalStepCannotBeSkipped(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")
	f := newFixture(t)
	f.deployer.deployErr = errors.New("push rejected")
	c := f.context(t, Credentials{Email: "ops@example.test"})

	r := NewRunner(recovery.NewController(&recovery.Scripted{
		Actions: []recovery.Action{recovery.ActionSkip},
	}), observe.Noop{})

	err := r.Run(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable action")
	assert.False(t, f.sess.StepDone(StepDeployApplication))
}

func TestNonCriticalStepSkipRecordsAndContinues(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")
	f := newFixture(t)
	f.certs.err = errors.New("acme unreachable")
	c := f.context(t, Credentials{Email: "ops@example.test"})

	r := NewRunner(recovery.NewController(&recovery.Scripted{
		Actions: []recovery.Action{recovery.ActionSkip},
	}), observe.Noop{})
	require.NoError(t, r.Run(c))

	result := f.sess.StepResults[StepIssueCertificate]
	require.NotNil(t, result)
	assert.Equal(t, true, result["skipped"])
	assert.True(t, f.sess.Completed)
	assert.True(t, f.sess.StepDone(StepDeployApplication))
}

func TestRetryAfterTransientFailure(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")
	f := newFixture(t)
	f.hardener.failures = 1
	c := f.context(t, Credentials{Email: "ops@example.test"})

	r := NewRunner(recovery.NewController(&recovery.Scripted{
		Actions: []recovery.Action{recovery.ActionRetry},
	}), observe.Noop{})
	require.NoError(t, r.Run(c))

	assert.Equal(t, 2, f.hardener.calls)
	assert.True(t, f.sess.StepDone(StepHardenServer))
	assert.True(t, f.sess.Completed)
}

func TestSessionImmutableAfterCompletion(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")
	f := newFixture(t)
	c := f.context(t, Credentials{Email: "ops@example.test"})

	r := NewRunner(recovery.NewController(&recovery.Scripted{}), observe.Noop{})
	require.NoError(t, r.Run(c))
	require.True(t, f.sess.Completed)

	err := f.sess.MarkStepCompleted(StepScaffoldProject, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}
