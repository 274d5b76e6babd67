package recovery

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// Interactive is a DecisionSource backed by a terminal menu. Every
// failure presents what failed, a best-effort cause, and the bounded set
// of next actions; raw detail stays behind the recovery menu rather than
// leading with a stack of text.
type Interactive struct{}

// StdinIsTerminal reports whether an interactive source can be used.
func StdinIsTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// Decide implements DecisionSource.
func (Interactive) Decide(ctx context.Context, fc FailureContext, options []Action) (Action, error) {
	for {
		choice, err := promptAction(ctx, fc, options)
		if err != nil {
			return ActionCancel, err
		}
		if choice != ActionRecoveryMode {
			return choice, nil
		}

		resolved, back, err := runRecoveryMenu(ctx, fc)
		if err != nil {
			return ActionCancel, err
		}
		if !back {
			return resolved, nil
		}
		// Back to the main failure menu.
	}
}

func promptAction(ctx context.Context, fc FailureContext, options []Action) (Action, error) {
	title := fmt.Sprintf("Step %q failed (attempt %d/%d)", fc.Step, fc.Attempt, fc.MaxAttempts)
	desc := fmt.Sprintf("%s failure: %v", fc.Class, fc.Err)

	opts := make([]huh.Option[Action], 0, len(options))
	for _, o := range options {
		opts = append(opts, huh.NewOption(actionLabel(o, fc), o))
	}

	var choice Action
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[Action]().
				Title(title).
				Description(desc).
				Options(opts...).
				Value(&choice),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return ActionCancel, err
	}
	return choice, nil
}

type recoveryChoice int

const (
	recoveryShowDetail recoveryChoice = iota
	recoveryDiagnostics
	recoveryResetStep
	recoveryWriteBundle
	recoveryBack
)

// runRecoveryMenu loops the diagnostic menu until it resolves to an
// action (reset-and-retry) or the operator goes back.
func runRecoveryMenu(ctx context.Context, fc FailureContext) (Action, bool, error) {
	for {
		var choice recoveryChoice
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[recoveryChoice]().
					Title("Recovery mode").
					Options(
						huh.NewOption("Show raw error detail", recoveryShowDetail),
						huh.NewOption("Run environment diagnostics", recoveryDiagnostics),
						huh.NewOption("Reset this step's data and retry", recoveryResetStep),
						huh.NewOption("Write diagnostic bundle to disk", recoveryWriteBundle),
						huh.NewOption("Back", recoveryBack),
					).
					Value(&choice),
			),
		)
		if err := form.RunWithContext(ctx); err != nil {
			return ActionCancel, false, err
		}

		switch choice {
		case recoveryShowDetail:
			detail := fc.Err.Error()
			if fc.Detail != nil {
				detail = fc.Detail()
			}
			fmt.Fprintln(os.Stderr, detail)
		case recoveryDiagnostics:
			if fc.Diagnostics == nil {
				fmt.Fprintln(os.Stderr, "no diagnostics available for this step")
				continue
			}
			for _, check := range fc.Diagnostics(ctx) {
				mark := "ok"
				if !check.OK {
					mark = "FAIL"
				}
				fmt.Fprintf(os.Stderr, "  [%s] %s: %s\n", mark, check.Name, check.Detail)
			}
		case recoveryResetStep:
			if fc.ResetStep != nil {
				if err := fc.ResetStep(); err != nil {
					fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
					continue
				}
			}
			return ActionRetry, false, nil
		case recoveryWriteBundle:
			if fc.WriteBundle == nil {
				fmt.Fprintln(os.Stderr, "no bundle writer available")
				continue
			}
			path, err := fc.WriteBundle(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "bundle failed: %v\n", err)
				continue
			}
			fmt.Fprintf(os.Stderr, "diagnostic bundle written to %s\n", path)
		case recoveryBack:
			return ActionCancel, true, nil
		}
	}
}

func actionLabel(a Action, fc FailureContext) string {
	switch a {
	case ActionRetry:
		return fmt.Sprintf("Retry (attempt %d/%d)", fc.Attempt+1, fc.MaxAttempts)
	case ActionSkip:
		return "Skip this step"
	case ActionSaveAndExit:
		return "Save progress and exit"
	case ActionRecoveryMode:
		return "Enter recovery mode"
	case ActionCancel:
		return "Cancel the run"
	default:
		return a.String()
	}
}
