// Package negotiate turns "unknown access state" into a verified,
// persisted connection fact.
//
// Given a possibly-partially-hardened host, the negotiator determines
// which candidate (user, port, key) combination currently grants access
// without guessing destructively: once hardening is known applied it
// attempts exactly one scenario, and during probing it tries a short,
// ordered hypothesis list and stops at the first success. Only scenarios
// that actually succeeded are ever written to the state document.
package negotiate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/observe"
	sshx "github.com/imamik/hostlock/internal/platform/ssh"
	"github.com/imamik/hostlock/internal/state"
)

// ErrLockout is the terminal condition: no known-valid connection
// scenario succeeded. It must never be auto-retried; remediation is
// out-of-band (provider console or rescue system).
var ErrLockout = errors.New("locked out: no known connection scenario succeeded")

// LockoutError carries the per-scenario failure detail for diagnostics.
type LockoutError struct {
	Host     string
	Attempts []AttemptResult
}

// AttemptResult records one failed scenario attempt.
type AttemptResult struct {
	Scenario Scenario
	Err      error
}

func (e *LockoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "locked out of %s: all %d connection scenarios failed\n", e.Host, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "  - %s@%s:%d: %v\n", a.Scenario.Username, e.Host, a.Scenario.Port, a.Err)
	}
	b.WriteString("recover out-of-band (provider console or rescue system), then re-run")
	return b.String()
}

func (e *LockoutError) Unwrap() error { return ErrLockout }

// Scenario is one hypothesized (user, port, key) combination.
type Scenario struct {
	Username          string
	Port              int
	PrivateKeyPath    string
	InitialConnection bool
}

func (s Scenario) String() string {
	return fmt.Sprintf("%s@:%d key=%s", s.Username, s.Port, s.PrivateKeyPath)
}

// Negotiator establishes a working remote session for a host.
type Negotiator struct {
	Dialer   sshx.Dialer
	Observer observe.Observer

	// Timeout bounds each individual connection attempt.
	Timeout time.Duration
}

// New creates a negotiator with the given dialer.
func New(dialer sshx.Dialer, observer observe.Observer, timeout time.Duration) *Negotiator {
	if observer == nil {
		observer = observe.Noop{}
	}
	return &Negotiator{Dialer: dialer, Observer: observer, Timeout: timeout}
}

// Scenarios builds the ordered candidate list for a host.
//
// Fast path: once hardening is known applied, the single persisted
// configuration is the only candidate. Probing the old pre-hardening port
// then would waste time and risk tripping ban-on-repeated-failure
// defenses with failed attempts.
//
// Probe path order: (a) original user on the default port, the common
// never-yet-hardened case; (b) deployment user on the target port, which
// recovers from a crash after hardening succeeded remotely but before
// local persist; (c) original user on the target port, which recovers
// from a crash where the port change applied but user creation or key
// deployment did not.
func Scenarios(st *state.HostState, ssh config.SSH) []Scenario {
	if st.Connection.HardeningApplied {
		keyPath := st.Connection.PrivateKeyPath
		if keyPath == "" {
			keyPath = ssh.DeployKeyPath()
		}
		return []Scenario{{
			Username:       st.Connection.CurrentUsername,
			Port:           st.Connection.CurrentPort,
			PrivateKeyPath: keyPath,
		}}
	}
	return []Scenario{
		{Username: ssh.OriginalUser, Port: config.DefaultPort, PrivateKeyPath: ssh.InitialKeyPath, InitialConnection: true},
		{Username: ssh.DeployUser, Port: ssh.TargetPort, PrivateKeyPath: ssh.DeployKeyPath()},
		{Username: ssh.OriginalUser, Port: ssh.TargetPort, PrivateKeyPath: ssh.InitialKeyPath},
	}
}

// Ensure establishes a verified session using the scenario list, persists
// the winning scenario into the state document before returning, and
// returns the open session. All-scenarios-failed is reported as a
// *LockoutError wrapping ErrLockout; the state document is left untouched
// in that case.
func (n *Negotiator) Ensure(ctx context.Context, st *state.HostState, ssh config.SSH) (sshx.Session, Scenario, error) {
	scenarios := Scenarios(st, ssh)

	var attempts []AttemptResult
	for _, sc := range scenarios {
		n.Observer.Event(observe.Event{
			Type:    observe.EventScenarioTrying,
			Message: "trying connection scenario",
			Fields:  map[string]string{"user": sc.Username, "port": fmt.Sprintf("%d", sc.Port)},
		})

		sess, err := n.Attempt(ctx, st.Host, sc)
		if err != nil {
			// Connection failure, not workflow failure: advance to the
			// next scenario.
			attempts = append(attempts, AttemptResult{Scenario: sc, Err: err})
			if ctx.Err() != nil {
				return nil, Scenario{}, fmt.Errorf("negotiation interrupted: %w", ctx.Err())
			}
			continue
		}

		if err := st.SetVerifiedConnection(sc.Username, sc.Port, sc.PrivateKeyPath, config.DefaultPort); err != nil {
			_ = sess.Close()
			return nil, Scenario{}, fmt.Errorf("failed to persist verified connection: %w", err)
		}
		n.Observer.Event(observe.Event{
			Type:    observe.EventScenarioVerified,
			Message: "connection verified and persisted",
			Fields:  map[string]string{"user": sc.Username, "port": fmt.Sprintf("%d", sc.Port)},
		})
		return sess, sc, nil
	}

	n.Observer.Event(observe.Event{
		Type:    observe.EventLockout,
		Message: "all connection scenarios exhausted",
	})
	return nil, Scenario{}, &LockoutError{Host: st.Host, Attempts: attempts}
}

// Attempt tries exactly one scenario: open a session, run a no-op
// identity check, and return the open session. It never touches the state
// document.
func (n *Negotiator) Attempt(ctx context.Context, host string, sc Scenario) (sshx.Session, error) {
	key, err := os.ReadFile(sc.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read private key %s: %w", sc.PrivateKeyPath, err)
	}

	sess, err := n.Dialer.Dial(ctx, sshx.Config{
		Host:       host,
		Port:       sc.Port,
		User:       sc.Username,
		PrivateKey: key,
		Timeout:    n.Timeout,
	})
	if err != nil {
		return nil, err
	}

	res, err := sess.Execute(ctx, "whoami")
	if err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("identity check failed: %w", err)
	}
	if res.ExitCode != 0 {
		_ = sess.Close()
		return nil, fmt.Errorf("identity check exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	if got := strings.TrimSpace(res.Stdout); got != sc.Username {
		_ = sess.Close()
		return nil, fmt.Errorf("identity check returned %q, expected %q", got, sc.Username)
	}
	return sess, nil
}

// VerifyAndPersist tries one specific scenario and, on success, persists
// it as the verified connection. Used by steps that must prove a new
// access path before the old one is narrowed.
func (n *Negotiator) VerifyAndPersist(ctx context.Context, st *state.HostState, sc Scenario) (sshx.Session, error) {
	sess, err := n.Attempt(ctx, st.Host, sc)
	if err != nil {
		return nil, err
	}
	if err := st.SetVerifiedConnection(sc.Username, sc.Port, sc.PrivateKeyPath, config.DefaultPort); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("failed to persist verified connection: %w", err)
	}
	n.Observer.Event(observe.Event{
		Type:    observe.EventScenarioVerified,
		Message: "connection verified and persisted",
		Fields:  map[string]string{"user": sc.Username, "port": fmt.Sprintf("%d", sc.Port)},
	})
	return sess, nil
}
