// Package main is the entry point for the hostlock CLI.
//
// hostlock takes a freshly provisioned remote host and locks it down:
// key-only SSH on a non-default port, a dedicated deployment user,
// firewall, intrusion prevention, and automatic security updates. Every
// step is persisted, so an interrupted run resumes where it stopped.
//
// Commands: init, harden, resume, status, reset, version, completion.
//
// For detailed usage information, run:
//
//	hostlock --help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/hostlock/cmd/hostlock/commands"
	"github.com/imamik/hostlock/internal/recovery"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Root().ExecuteContext(ctx)
	if err == nil {
		return
	}
	// Save-and-exit is a successful outcome: progress is persisted and
	// the message carries the resume instruction.
	if errors.Is(err, recovery.ErrSaveAndExit) {
		fmt.Println(err)
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
