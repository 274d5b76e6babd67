package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hostlock/cmd/hostlock/handlers"
)

// Reset returns the command that discards a host's recorded progress.
func Reset() *cobra.Command {
	var opts handlers.ResetOptions

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard recorded progress for a host",
		Long: `Replace the host's state document with a fresh one, marking every
step incomplete. The host itself is not touched; the next 'harden' run
re-converges against whatever is actually applied there.

This is the only way to un-complete steps, and it always asks first
unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Reset(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: hostlock.yaml)")
	cmd.Flags().StringVar(&opts.Host, "host", "", "Host to reset (default: the configured host)")
	cmd.Flags().StringVar(&opts.StateDir, "state-dir", "", "State directory (default: $XDG_STATE_HOME/hostlock)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Reset without confirmation")

	return cmd
}
