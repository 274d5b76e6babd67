package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hostlock/cmd/hostlock/handlers"
)

// Init returns the command that starts a new project setup session.
func Init() *cobra.Command {
	var opts handlers.InitOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up a new project end to end",
		Long: `Walk through the full project setup: collect credentials, scaffold
the project, provision a server, configure DNS, harden the server,
issue a certificate, deploy, validate, and write the access summary.

The session is persisted after every step; use 'hostlock resume' to
continue an interrupted setup.

Examples:
  # Full setup
  hostlock init -c hostlock.yaml

  # Rehearse without touching the cloud account
  hostlock init --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: hostlock.yaml)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Simulate all cloud side effects")
	cmd.Flags().BoolVarP(&opts.NonInteractive, "yes", "y", false, "Never prompt; credentials must come from the environment")
	cmd.Flags().StringVar(&opts.StateDir, "state-dir", "", "State directory (default: $XDG_STATE_HOME/hostlock)")
	cmd.Flags().BoolVar(&opts.LogJSON, "log-json", false, "Emit structured JSON logs")

	return cmd
}
