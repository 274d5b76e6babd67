package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hostlock/cmd/hostlock/handlers"
)

// Resume returns the command that continues an interrupted setup session.
func Resume() *cobra.Command {
	var opts handlers.ResumeOptions

	cmd := &cobra.Command{
		Use:   "resume [session-id]",
		Short: "Continue an interrupted setup session",
		Long: `Continue the most recently updated incomplete setup session, or a
specific one when a session id is given.

Examples:
  # Continue where the last run stopped
  hostlock resume

  # Continue a specific session
  hostlock resume 20260831-101500-a1b2c3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.SessionID = args[0]
			}
			return handlers.Resume(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: hostlock.yaml)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Simulate all cloud side effects")
	cmd.Flags().BoolVarP(&opts.NonInteractive, "yes", "y", false, "Never prompt; credentials must come from the environment")
	cmd.Flags().StringVar(&opts.StateDir, "state-dir", "", "State directory (default: $XDG_STATE_HOME/hostlock)")
	cmd.Flags().BoolVar(&opts.LogJSON, "log-json", false, "Emit structured JSON logs")

	return cmd
}
