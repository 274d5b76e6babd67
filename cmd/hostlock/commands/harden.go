package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hostlock/cmd/hostlock/handlers"
)

// Harden returns the command that runs the hardening pipeline against
// the configured host.
//
// Optional flags:
//
//	--config, -c: path to configuration file (default: hostlock.yaml)
//	--yes, -y:    non-interactive; transient failures retry automatically
//	--state-dir:  override the state directory
//	--log-json:   structured JSON logs instead of console output
func Harden() *cobra.Command {
	var opts handlers.HardenOptions

	cmd := &cobra.Command{
		Use:   "harden",
		Short: "Harden the configured host",
		Long: `Run the hardening pipeline against the host in hostlock.yaml.

The steps run in a fixed order: generate a deployment keypair, deploy
the public key, create the deployment user, narrow SSH access, then
firewall, intrusion prevention, and automatic updates. Completed steps
are skipped on re-runs.

Examples:
  # Harden using hostlock.yaml in the current directory
  hostlock harden

  # Non-interactive run for CI
  hostlock harden --yes -c production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Harden(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: hostlock.yaml)")
	cmd.Flags().BoolVarP(&opts.NonInteractive, "yes", "y", false, "Never prompt; retry transient failures and save on anything else")
	cmd.Flags().StringVar(&opts.StateDir, "state-dir", "", "State directory (default: $XDG_STATE_HOME/hostlock)")
	cmd.Flags().BoolVar(&opts.LogJSON, "log-json", false, "Emit structured JSON logs")

	return cmd
}
