// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated
// to handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the hostlock CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostlock",
		Short: "Safely harden fresh servers over SSH",
		Long: `hostlock locks down a freshly provisioned server: key-only SSH on a
non-default port, a dedicated deployment user, firewall, intrusion
prevention, and automatic security updates.

Progress is persisted after every step. If a run is interrupted, the
next run resumes exactly where it stopped, and the connection layer
works out which access path is currently valid on its own.`,
	}

	cmd.AddCommand(Init())
	cmd.AddCommand(Harden())
	cmd.AddCommand(Resume())
	cmd.AddCommand(Status())
	cmd.AddCommand(Reset())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
