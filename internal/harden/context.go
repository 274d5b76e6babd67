package harden

import (
	"context"
	"fmt"
	"strings"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/negotiate"
	"github.com/imamik/hostlock/internal/observe"
	sshx "github.com/imamik/hostlock/internal/platform/ssh"
	"github.com/imamik/hostlock/internal/state"
)

// Context carries everything a step needs: the run context, the target
// configuration, the persisted host state, and a lazily-established
// remote session. The session is negotiated on first use and cached;
// steps that invalidate the current access path drop it so the next use
// renegotiates.
type Context struct {
	context.Context

	Config     *config.Config
	State      *state.HostState
	Negotiator *negotiate.Negotiator
	Observer   observe.Observer

	sess     sshx.Session
	scenario negotiate.Scenario
}

// NewContext creates a step context. The session is not opened yet;
// purely local steps never touch the network.
func NewContext(ctx context.Context, cfg *config.Config, st *state.HostState, n *negotiate.Negotiator, obs observe.Observer) *Context {
	if obs == nil {
		obs = observe.Noop{}
	}
	return &Context{
		Context:    ctx,
		Config:     cfg,
		State:      st,
		Negotiator: n,
		Observer:   obs,
	}
}

// Session returns the active remote session, negotiating one if needed.
func (c *Context) Session() (sshx.Session, negotiate.Scenario, error) {
	if c.sess != nil {
		return c.sess, c.scenario, nil
	}
	sess, sc, err := c.Negotiator.Ensure(c, c.State, c.Config.SSH)
	if err != nil {
		return nil, negotiate.Scenario{}, err
	}
	c.sess = sess
	c.scenario = sc
	return c.sess, c.scenario, nil
}

// Adopt replaces the cached session with one a step already verified,
// closing the previous one.
func (c *Context) Adopt(sess sshx.Session, sc negotiate.Scenario) {
	if c.sess != nil && c.sess != sess {
		_ = c.sess.Close()
	}
	c.sess = sess
	c.scenario = sc
}

// DropSession closes and forgets the cached session so the next use
// renegotiates from scratch.
func (c *Context) DropSession() {
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
		c.scenario = negotiate.Scenario{}
	}
}

// CloseSession releases the remote session at the end of a run.
func (c *Context) CloseSession() {
	c.DropSession()
}

// Exec runs one remote command, bounded by the configured command
// timeout. A nonzero remote exit status is returned in the Result, not
// as an error.
func (c *Context) Exec(command string) (sshx.Result, error) {
	sess, _, err := c.Session()
	if err != nil {
		return sshx.Result{}, err
	}

	ctx := context.Context(c)
	if c.Config.Timeouts.Command > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Config.Timeouts.Command)
		defer cancel()
	}
	return sess.Execute(ctx, command)
}

// RunScript executes a shell script on the remote host as root, via
// passwordless sudo when the active session user is not root. The script
// runs under `sh -e`; any failing line aborts it. A nonzero exit becomes
// an error carrying the remote stderr.
func (c *Context) RunScript(script string) error {
	return c.runScript(script, true)
}

// RunUserScript executes a shell script as the active session user,
// without privilege elevation.
func (c *Context) RunUserScript(script string) error {
	return c.runScript(script, false)
}

func (c *Context) runScript(script string, asRoot bool) error {
	_, sc, err := c.Session()
	if err != nil {
		return err
	}

	cmd := "sh -ec " + shellQuote(script)
	if asRoot && sc.Username != "root" {
		cmd = "sudo -n " + cmd
	}

	res, err := c.Exec(cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(res.Stdout)
		}
		return fmt.Errorf("remote script exited %d: %s", res.ExitCode, detail)
	}
	return nil
}

// shellQuote single-quotes s for safe embedding in a shell command line.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
