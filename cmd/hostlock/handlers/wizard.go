package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/platform/cloud"
	"github.com/imamik/hostlock/internal/recovery"
	"github.com/imamik/hostlock/internal/state"
	"github.com/imamik/hostlock/internal/wizard"
)

// InitOptions holds the init command's flags.
type InitOptions struct {
	ConfigPath     string
	DryRun         bool
	NonInteractive bool
	StateDir       string
	LogJSON        bool
}

// ResumeOptions holds the resume command's flags and arguments.
type ResumeOptions struct {
	ConfigPath     string
	SessionID      string
	DryRun         bool
	NonInteractive bool
	StateDir       string
	LogJSON        bool
}

// Init starts a fresh setup flow with a new session.
func Init(ctx context.Context, opts InitOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.DryRun {
		cfg.Cloud.DryRun = true
	}

	store := newStore(stateDir(opts.StateDir))
	sess, err := store.NewSession(cfg.ProjectPath, wizard.StepOrder())
	if err != nil {
		return err
	}

	obs := newObserver(opts.LogJSON)
	obs.Printf("started session %s", sess.ID)
	return runWizard(ctx, cfg, sess, obs, opts.StateDir, opts.NonInteractive)
}

// Resume continues an interrupted setup flow. With no session id it picks
// the most recently updated incomplete session.
func Resume(ctx context.Context, opts ResumeOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.DryRun {
		cfg.Cloud.DryRun = true
	}

	store := newStore(stateDir(opts.StateDir))

	var sess *state.Session
	if opts.SessionID != "" {
		sess, err = store.LoadSession(opts.SessionID)
	} else {
		sess, err = store.MostRecentSession()
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no incomplete session found; run 'hostlock init' to start one")
		}
	}
	if err != nil {
		return err
	}

	obs := newObserver(opts.LogJSON)

	ok, warning := state.CanResume(sess)
	if !ok {
		return fmt.Errorf("session %s is already completed", sess.ID)
	}
	if warning != "" {
		obs.Printf("warning: %s", warning)
	}

	obs.Printf("resuming session %s", sess.ID)
	return runWizard(ctx, cfg, sess, obs, opts.StateDir, opts.NonInteractive)
}

// newWizardDeps builds the production collaborators. Replaced in tests.
var newWizardDeps = func(obs observe.Observer, stateDirOverride string, nonInteractive bool) wizard.Deps {
	return wizard.Deps{
		Credentials: credentialSource(nonInteractive),
		Scaffolder:  composeScaffolder{},
		DNS:         manualDNS{obs: obs},
		Certs:       stubCertIssuer{obs: obs},
		Deployer:    probeDeployer{obs: obs},
		Hardener:    hardener{obs: obs, stateDir: stateDirOverride, nonInteractive: nonInteractive},
	}
}

// runWizard wires the collaborators and drives the flow over the session.
func runWizard(ctx context.Context, cfg *config.Config, sess *state.Session, obs observe.Observer, stateDirOverride string, nonInteractive bool) error {
	c := wizard.NewContext(ctx, cfg, sess, newWizardDeps(obs, stateDirOverride, nonInteractive), obs)
	if c.Deps.Cloud == nil {
		if cfg.Cloud.DryRun {
			c.Deps.Cloud = cloud.NewDryRun()
		} else {
			// The cloud token is collected by the first flow step, after
			// the provisioner is wired; resolve it lazily at first use.
			c.Deps.Cloud = &lazyCloud{token: func() string { return c.Creds.CloudToken }}
		}
	}

	ctl := recovery.NewController(decisionSource(nonInteractive))
	return wizard.NewRunner(ctl, obs).Run(c)
}

// credentialSource picks how missing credentials are obtained: prompts on
// a terminal, environment-only otherwise.
func credentialSource(nonInteractive bool) wizard.CredentialSource {
	if !nonInteractive && stdinIsTerminal() {
		return wizard.Interactive{}
	}
	return wizard.Static{Creds: wizard.Credentials{
		Email: os.Getenv("HOSTLOCK_EMAIL"),
	}}
}

// lazyCloud defers building the Hetzner client until a step actually
// needs it, so the token collected in memory at the start of the flow can
// be used without ever touching the session document.
type lazyCloud struct {
	token func() string

	once   sync.Once
	client *cloud.Hetzner
	err    error
}

func (l *lazyCloud) get() (cloud.Provisioner, error) {
	l.once.Do(func() {
		token := l.token()
		if token == "" {
			l.err = fmt.Errorf("no cloud token available; set HCLOUD_TOKEN or enable cloud.dryRun")
			return
		}
		l.client = cloud.NewHetzner(token, map[string]string{"managed-by": "hostlock"})
	})
	return l.client, l.err
}

func (l *lazyCloud) EnsureSSHKey(ctx context.Context, name, publicKey string) (string, error) {
	p, err := l.get()
	if err != nil {
		return "", err
	}
	return p.EnsureSSHKey(ctx, name, publicKey)
}

func (l *lazyCloud) EnsureServer(ctx context.Context, opts cloud.ServerOpts) (*cloud.Server, error) {
	p, err := l.get()
	if err != nil {
		return nil, err
	}
	return p.EnsureServer(ctx, opts)
}

func (l *lazyCloud) DescribeServer(ctx context.Context, name string) (*cloud.Server, error) {
	p, err := l.get()
	if err != nil {
		return nil, err
	}
	return p.DescribeServer(ctx, name)
}

func (l *lazyCloud) DeleteServer(ctx context.Context, name string) error {
	p, err := l.get()
	if err != nil {
		return err
	}
	return p.DeleteServer(ctx, name)
}
