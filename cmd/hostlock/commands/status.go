package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hostlock/cmd/hostlock/handlers"
)

// Status returns the command that shows hardening progress for a host.
func Status() *cobra.Command {
	var opts handlers.StatusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show hardening progress for the configured host",
		Long: `Show per-step hardening progress and the verified connection
parameters recorded for the configured host.

Examples:
  hostlock status
  hostlock status --json | jq .steps`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: hostlock.yaml)")
	cmd.Flags().StringVar(&opts.Host, "host", "", "Host to inspect (default: the configured host)")
	cmd.Flags().StringVar(&opts.StateDir, "state-dir", "", "State directory (default: $XDG_STATE_HOME/hostlock)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Machine-readable JSON output")

	return cmd
}
