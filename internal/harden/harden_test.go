package harden

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/negotiate"
	"github.com/imamik/hostlock/internal/observe"
	sshx "github.com/imamik/hostlock/internal/platform/ssh"
	"github.com/imamik/hostlock/internal/recovery"
	"github.com/imamik/hostlock/internal/state"
	hltest "github.com/imamik/hostlock/internal/testing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Host:     "203.0.113.10",
		SSH:      hltest.TestSSHConfig(t, t.TempDir()),
		Firewall: config.Firewall{AllowPorts: []int{80, 443}},
		Timeouts: config.Timeouts{Connect: time.Second, Command: 5 * time.Second},
	}
}

func newHostState(t *testing.T, cfg *config.Config) *state.HostState {
	t.Helper()
	store := state.NewStore(t.TempDir())
	st, err := store.NewHost(cfg.Host, cfg.Snapshot(), cfg.SSH.OriginalUser, cfg.SSH.DeployUser)
	require.NoError(t, err)
	return st
}

func newTestContext(t *testing.T, cfg *config.Config, st *state.HostState, host *hltest.FakeHost) *Context {
	t.Helper()
	n := negotiate.New(host, observe.Noop{}, time.Second)
	return NewContext(hltest.TestContext(t), cfg, st, n, observe.Noop{})
}

func markEarlyStepsComplete(t *testing.T, cfg *config.Config, st *state.HostState) {
	t.Helper()
	// Deployment key material on disk, as generateKeyPair would leave it.
	hltest.WriteTestKey(t, cfg.SSH.KeyDir, "deploy_ed25519")
	require.NoError(t, st.MarkStepCompleted(StepGenerateKeyPair, nil))
	require.NoError(t, st.MarkStepCompleted(StepDeployPublicKey, nil))
	require.NoError(t, st.MarkStepCompleted(StepCreateDeploymentUser, nil))
}

func commandsContain(commands []string, substr string) bool {
	for _, c := range commands {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func TestRegistryOrder(t *testing.T) {
	want := []string{
		StepGenerateKeyPair,
		StepDeployPublicKey,
		StepCreateDeploymentUser,
		StepApplySSHHardening,
		StepConfigureFirewall,
		StepConfigureIntrusionPrevention,
		StepEnableAutoUpdates,
	}
	steps := Registry()
	require.Len(t, steps, len(want))
	for i, step := range steps {
		assert.Equal(t, want[i], step.Name())
	}
	// Narrowing access or losing the replacement path must never be
	// skippable.
	assert.True(t, steps[0].Critical())
	assert.True(t, steps[1].Critical())
	assert.True(t, steps[2].Critical())
	assert.True(t, steps[3].Critical())
	assert.False(t, steps[4].Critical())
}

func TestNextIncomplete(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	steps := Registry()

	step, ok := NextIncomplete(st, steps)
	require.True(t, ok)
	assert.Equal(t, StepGenerateKeyPair, step.Name())

	markEarlyStepsComplete(t, cfg, st)
	step, ok = NextIncomplete(st, steps)
	require.True(t, ok)
	assert.Equal(t, StepApplySSHHardening, step.Name())

	done, total := Progress(st, steps)
	assert.Equal(t, 3, done)
	assert.Equal(t, 7, total)
}

func TestExecutorRejectsOutOfOrderStep(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	host := hltest.NewFakeHost(hltest.Endpoint{User: "root", Port: 22})
	c := newTestContext(t, cfg, st, host)

	e := NewExecutor(Registry(), observe.Noop{})
	outcome := e.Run(c, Registry()[3], 1)
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "cannot run before")
	assert.Equal(t, 0, host.DialCount(), "ordering guard must fire before any remote work")
}

func TestGenerateKeyPairReusesExistingKey(t *testing.T) {
	cfg := testConfig(t)
	c := NewContext(hltest.TestContext(t), cfg, nil, nil, observe.Noop{})

	first, err := generateKeyPair{}.Run(c)
	require.NoError(t, err)
	second, err := generateKeyPair{}.Run(c)
	require.NoError(t, err)

	assert.Equal(t, first["fingerprint"], second["fingerprint"])
	assert.Equal(t, true, second["reused"])
}

func TestFullRunOnFreshHost(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	host := hltest.NewFakeHost(
		hltest.Endpoint{User: "root", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 2222},
	)
	c := newTestContext(t, cfg, st, host)

	orch := NewOrchestrator(recovery.NewController(&recovery.Scripted{}), observe.Noop{}, t.TempDir())
	require.NoError(t, orch.Run(c))

	for _, step := range Registry() {
		assert.True(t, st.StepCompleted(step.Name()), step.Name())
	}

	// The verified hardened path is what got persisted.
	assert.Equal(t, "deploy", st.Connection.CurrentUsername)
	assert.Equal(t, 2222, st.Connection.CurrentPort)
	assert.True(t, st.Connection.HardeningApplied)

	assert.True(t, commandsContain(host.Commands, "authorized_keys"))
	assert.True(t, commandsContain(host.Commands, "useradd"))
	assert.True(t, commandsContain(host.Commands, "sshd -t"))
	assert.True(t, commandsContain(host.Commands, "ufw --force enable"))
	assert.True(t, commandsContain(host.Commands, "fail2ban"))
	assert.True(t, commandsContain(host.Commands, "unattended-upgrades"))

	data := st.StepData(StepGenerateKeyPair)
	require.NotNil(t, data)
	assert.NotEmpty(t, data["fingerprint"])
}

func TestResumeSkipsCompletedSteps(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	markEarlyStepsComplete(t, cfg, st)

	host := hltest.NewFakeHost(
		hltest.Endpoint{User: "root", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 2222},
	)
	c := newTestContext(t, cfg, st, host)

	orch := NewOrchestrator(recovery.NewController(&recovery.Scripted{}), observe.Noop{}, t.TempDir())
	require.NoError(t, orch.Run(c))

	for _, step := range Registry() {
		assert.True(t, st.StepCompleted(step.Name()), step.Name())
	}
	assert.False(t, commandsContain(host.Commands, "useradd"),
		"completed steps must not re-execute on resume")
}

func TestHardeningRefusesWithoutDeployPath(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	markEarlyStepsComplete(t, cfg, st)

	// Deployment user path is not actually reachable.
	host := hltest.NewFakeHost(hltest.Endpoint{User: "root", Port: 22})
	c := newTestContext(t, cfg, st, host)

	// Skip is scripted but must be rejected: the step is critical.
	orch := NewOrchestrator(recovery.NewController(&recovery.Scripted{
		Actions: []recovery.Action{recovery.ActionSkip},
	}), observe.Noop{}, t.TempDir())

	err := orch.Run(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable action")
	assert.False(t, st.StepDone(StepApplySSHHardening))
	assert.False(t, commandsContain(host.Commands, "sshd_config.d"),
		"nothing may be narrowed while the replacement path is unproven")
	assert.NotEmpty(t, st.Errors)
}

func TestNonCriticalStepCanBeSkipped(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	host := hltest.NewFakeHost(
		hltest.Endpoint{User: "root", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 2222},
	)
	host.Exec = func(sc sshx.Config, command string) (sshx.Result, error) {
		if command == "whoami" {
			return sshx.Result{Stdout: sc.User + "\n"}, nil
		}
		if strings.Contains(command, "ufw --force enable") {
			return sshx.Result{ExitCode: 1, Stderr: "ufw: iptables unavailable"}, nil
		}
		return sshx.Result{}, nil
	}
	c := newTestContext(t, cfg, st, host)

	orch := NewOrchestrator(recovery.NewController(&recovery.Scripted{
		Actions: []recovery.Action{recovery.ActionSkip},
	}), observe.Noop{}, t.TempDir())
	require.NoError(t, orch.Run(c))

	assert.True(t, st.StepSkipped(StepConfigureFirewall))
	assert.False(t, st.StepCompleted(StepConfigureFirewall))
	// The pipeline continued past the skip.
	assert.True(t, st.StepCompleted(StepConfigureIntrusionPrevention))
	assert.True(t, st.StepCompleted(StepEnableAutoUpdates))
}

func TestTransientFailureRetriesAfterRenegotiation(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	host := hltest.NewFakeHost(
		hltest.Endpoint{User: "root", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 2222},
	)
	failures := 0
	host.Exec = func(sc sshx.Config, command string) (sshx.Result, error) {
		if command == "whoami" {
			return sshx.Result{Stdout: sc.User + "\n"}, nil
		}
		if strings.Contains(command, "ufw --force enable") && failures == 0 {
			failures++
			return sshx.Result{ExitCode: 1, Stderr: "transient failure"}, nil
		}
		return sshx.Result{}, nil
	}
	c := newTestContext(t, cfg, st, host)

	orch := NewOrchestrator(recovery.NewController(&recovery.Scripted{
		Actions: []recovery.Action{recovery.ActionRetry},
	}), observe.Noop{}, t.TempDir())
	require.NoError(t, orch.Run(c))

	assert.True(t, st.StepCompleted(StepConfigureFirewall))
	assert.Len(t, st.Errors, 1)
}

func TestSaveAndExitPersistsProgress(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	host := hltest.NewFakeHost(
		hltest.Endpoint{User: "root", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 22},
		hltest.Endpoint{User: "deploy", Port: 2222},
	)
	host.Exec = func(sc sshx.Config, command string) (sshx.Result, error) {
		if command == "whoami" {
			return sshx.Result{Stdout: sc.User + "\n"}, nil
		}
		if strings.Contains(command, "ufw --force enable") {
			return sshx.Result{ExitCode: 1, Stderr: "broken"}, nil
		}
		return sshx.Result{}, nil
	}
	c := newTestContext(t, cfg, st, host)

	// Empty script: the decision source defaults to save-and-exit.
	orch := NewOrchestrator(recovery.NewController(&recovery.Scripted{}), observe.Noop{}, t.TempDir())
	err := orch.Run(c)
	require.ErrorIs(t, err, recovery.ErrSaveAndExit)

	assert.True(t, st.StepCompleted(StepApplySSHHardening))
	assert.False(t, st.StepDone(StepConfigureFirewall))
	assert.NotEmpty(t, st.Errors)
}

func TestLockoutBypassesRecovery(t *testing.T) {
	cfg := testConfig(t)
	st := newHostState(t, cfg)
	host := hltest.NewFakeHost() // nothing reachable
	c := newTestContext(t, cfg, st, host)

	orch := NewOrchestrator(recovery.NewController(&recovery.Scripted{
		Actions: []recovery.Action{recovery.ActionRetry, recovery.ActionRetry},
	}), observe.Noop{}, t.TempDir())

	err := orch.Run(c)
	require.Error(t, err)
	assert.ErrorIs(t, err, negotiate.ErrLockout)

	// The local step completed before the first remote contact.
	assert.True(t, st.StepCompleted(StepGenerateKeyPair))
	assert.False(t, st.StepDone(StepDeployPublicKey))
	// Exactly one probe pass, no recovery-driven re-dials.
	assert.Equal(t, 3, host.DialCount())
}
