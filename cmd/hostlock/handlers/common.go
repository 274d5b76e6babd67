// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command
// definitions in the commands package. Handlers are framework-agnostic
// and can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr/funcr"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/diag"
	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/platform/objstore"
	sshx "github.com/imamik/hostlock/internal/platform/ssh"
	"github.com/imamik/hostlock/internal/recovery"
	"github.com/imamik/hostlock/internal/state"
)

// Factory function variables - can be replaced in tests for dependency
// injection.
var (
	// loadConfig loads and validates the configuration file.
	loadConfig = config.Load

	// newStore opens the state store.
	newStore = state.NewStore

	// newDialer creates the SSH dialer.
	newDialer = func() sshx.Dialer { return sshx.NetDialer{} }

	// stdinIsTerminal reports whether interactive prompts are possible.
	stdinIsTerminal = recovery.StdinIsTerminal

	// newUploader builds the diagnostic bundle upload target.
	newUploader = func(c config.ObjectStorage) (diag.Uploader, error) {
		client, err := objstore.New(c.Endpoint, c.Region, c.Bucket,
			os.Getenv("HOSTLOCK_S3_ACCESS_KEY"), os.Getenv("HOSTLOCK_S3_SECRET_KEY"))
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(context.Background()); err != nil {
			return nil, err
		}
		return client, nil
	}
)

// stateDir resolves the state directory, honoring an override.
func stateDir(override string) string {
	if override != "" {
		return override
	}
	return state.DefaultDir()
}

// bundleDir is where diagnostic bundles land.
func bundleDir(stateDir string) string {
	return filepath.Join(stateDir, "diagnostics")
}

// newObserver builds the observer for a run: structured JSON when
// requested, console lines otherwise.
func newObserver(logJSON bool) observe.Observer {
	if !logJSON {
		return observe.NewConsole()
	}
	return observe.NewLogr(funcr.NewJSON(func(obj string) {
		fmt.Fprintln(os.Stderr, obj)
	}, funcr.Options{LogTimestamp: true}))
}

// decisionSource picks how step failures are resolved: an interactive
// menu on a terminal, otherwise an automatic policy.
func decisionSource(nonInteractive bool) recovery.DecisionSource {
	if !nonInteractive && stdinIsTerminal() {
		return recovery.Interactive{}
	}
	return autoDecide{}
}

// autoDecide is the non-interactive policy: retry while the budget lasts,
// then persist progress and exit with the resume instruction. It never
// skips, so unattended runs cannot silently weaken the result.
type autoDecide struct{}

func (autoDecide) Decide(_ context.Context, _ recovery.FailureContext, options []recovery.Action) (recovery.Action, error) {
	for _, opt := range options {
		if opt == recovery.ActionRetry {
			return recovery.ActionRetry, nil
		}
	}
	return recovery.ActionSaveAndExit, nil
}
