package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/imamik/hostlock/internal/state"
)

// ResetOptions holds the reset command's flags.
type ResetOptions struct {
	ConfigPath string
	Host       string
	StateDir   string
	Force      bool
}

// Reset discards a host's recorded progress after confirmation.
func Reset(ctx context.Context, opts ResetOptions) error {
	host := opts.Host
	if host == "" {
		cfg, err := loadConfig(opts.ConfigPath)
		if err != nil {
			return err
		}
		host = cfg.Host
	}
	if host == "" {
		return fmt.Errorf("no host given; set host in the config or pass --host")
	}

	st, err := newStore(stateDir(opts.StateDir)).LoadHost(host)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("no recorded state for %s; nothing to reset", host)
		}
		return err
	}

	if !opts.Force {
		if !stdinIsTerminal() {
			return fmt.Errorf("refusing to reset %s without confirmation; pass --force", host)
		}
		var confirmed bool
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Reset recorded progress for %s?", host)).
					Description("Every step is marked incomplete. The host itself is not changed.").
					Value(&confirmed),
			),
		).RunWithContext(ctx)
		if err != nil {
			return err
		}
		if !confirmed {
			return fmt.Errorf("reset aborted")
		}
	}

	if err := st.Reset(); err != nil {
		return err
	}
	fmt.Printf("state for %s reset; the next 'hostlock harden' run starts from the first step\n", host)
	return nil
}
