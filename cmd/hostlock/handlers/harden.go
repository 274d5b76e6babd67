package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/harden"
	"github.com/imamik/hostlock/internal/negotiate"
	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/recovery"
)

// HardenOptions holds the harden command's flags.
type HardenOptions struct {
	ConfigPath     string
	StateDir       string
	NonInteractive bool
	LogJSON        bool
}

// Harden runs the hardening pipeline against the configured host.
func Harden(ctx context.Context, opts HardenOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	obs := newObserver(opts.LogJSON)
	return hardenHost(ctx, cfg, obs, opts.StateDir, opts.NonInteractive)
}

// hardenHost is the shared core of the harden command and the wizard's
// hardenServer step.
func hardenHost(ctx context.Context, cfg *config.Config, obs observe.Observer, stateDirOverride string, nonInteractive bool) error {
	if cfg.Host == "" {
		return &config.Error{Field: "host", Hint: "set host to the target address; 'hostlock init' records it after provisioning"}
	}
	dir := stateDir(stateDirOverride)
	store := newStore(dir)

	st, err := store.LoadOrCreateHost(cfg.Host, cfg.Snapshot(), cfg.SSH.OriginalUser, cfg.SSH.DeployUser)
	if err != nil {
		return err
	}

	n := negotiate.New(newDialer(), obs, cfg.Timeouts.Connect)
	ctl := recovery.NewController(decisionSource(nonInteractive))
	orch := harden.NewOrchestrator(ctl, obs, bundleDir(dir))

	if objCfg := cfg.ObjectStorage; objCfg.Bucket != "" {
		up, err := newUploader(objCfg)
		if err != nil {
			obs.Printf("object storage unavailable, bundles stay local: %v", err)
		} else {
			orch.Uploader = up
		}
	}

	if err := orch.Run(harden.NewContext(ctx, cfg, st, n, obs)); err != nil {
		return err
	}

	obs.Printf("host %s is hardened; connect with: ssh -p %d -i %s %s@%s",
		cfg.Host, cfg.SSH.TargetPort, cfg.SSH.DeployKeyPath(), cfg.SSH.DeployUser, cfg.Host)
	return nil
}

// hardener adapts hardenHost to the wizard's collaborator interface.
type hardener struct {
	obs            observe.Observer
	stateDir       string
	nonInteractive bool
}

func (h hardener) Harden(ctx context.Context, cfg *config.Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("no host to harden; provisioning did not record an address")
	}
	return hardenHost(ctx, cfg, h.obs, h.stateDir, h.nonInteractive)
}
