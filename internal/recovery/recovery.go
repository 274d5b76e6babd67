// Package recovery implements the bounded failure decision tree applied
// when a provisioning step fails.
//
// The state machine is pure: it computes which actions are available for
// a given failure and validates the choice, while the actual choosing is
// delegated to a DecisionSource. Tests inject a scripted source; the CLI
// injects a terminal menu.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/negotiate"
)

// MaxAttempts is the silent-retry budget per step.
const MaxAttempts = 3

// Sentinel termination outcomes. SaveAndExit is a normal, successful exit
// path, not an error exit; Cancelled terminates with a failure code.
var (
	ErrSaveAndExit = errors.New("progress saved; re-run to resume")
	ErrCancelled   = errors.New("cancelled by operator")
)

// Class is the failure taxonomy.
type Class int

const (
	// ClassTransient covers timeouts and temporary remote failures;
	// retried up to the attempt budget.
	ClassTransient Class = iota
	// ClassConfig covers invalid or missing configuration; retrying
	// cannot fix it, so it is surfaced immediately.
	ClassConfig
	// ClassLockout is the terminal all-scenarios-exhausted condition;
	// it bypasses the decision tree entirely.
	ClassLockout
	// ClassCancelled is an operator interrupt; not an error.
	ClassCancelled
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassConfig:
		return "configuration"
	case ClassLockout:
		return "lockout"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps an error to its failure class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassTransient
	case errors.Is(err, context.Canceled):
		return ClassCancelled
	case errors.Is(err, negotiate.ErrLockout):
		return ClassLockout
	default:
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			return ClassConfig
		}
		return ClassTransient
	}
}

// Action is one branch of the decision tree.
type Action int

const (
	// ActionRetry loops back into another attempt of the same step.
	ActionRetry Action = iota
	// ActionSkip marks a non-critical step skipped and moves on.
	ActionSkip
	// ActionSaveAndExit persists state and terminates successfully with
	// a resume instruction.
	ActionSaveAndExit
	// ActionRecoveryMode enters the diagnostic menu; the decision source
	// resolves it to one of the other actions.
	ActionRecoveryMode
	// ActionCancel persists state and terminates with a failure code.
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionSkip:
		return "skip"
	case ActionSaveAndExit:
		return "save and exit"
	case ActionRecoveryMode:
		return "recovery mode"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Check is one diagnostic probe result.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// FailureContext describes one step failure to the decision source.
// The func fields are hooks into the surrounding run: they let the
// recovery menu act without the decision layer knowing about state
// documents or remote sessions.
type FailureContext struct {
	Step        string
	Critical    bool
	Attempt     int
	MaxAttempts int
	Class       Class
	Err         error

	// Detail returns the raw error detail on request.
	Detail func() string
	// Diagnostics runs environment/prerequisite probes.
	Diagnostics func(ctx context.Context) []Check
	// ResetStep drops this step's recorded data (other steps untouched).
	ResetStep func() error
	// WriteBundle emits a machine-readable diagnostic bundle and returns
	// its path.
	WriteBundle func(ctx context.Context) (string, error)
}

// DecisionSource chooses an action for a failure. options is the bounded
// set currently available; implementations must return one of them.
type DecisionSource interface {
	Decide(ctx context.Context, fc FailureContext, options []Action) (Action, error)
}

// AvailableActions computes the bounded action set for a failure.
//
// Retry is offered only while the attempt budget lasts and never for
// configuration errors. Skip is never offered for critical steps.
// Lockout and cancellation have no decision tree at all.
func AvailableActions(fc FailureContext) []Action {
	if fc.Class == ClassLockout || fc.Class == ClassCancelled {
		return nil
	}

	var options []Action
	if fc.Class != ClassConfig && fc.Attempt < fc.MaxAttempts {
		options = append(options, ActionRetry)
	}
	if !fc.Critical {
		options = append(options, ActionSkip)
	}
	options = append(options, ActionSaveAndExit, ActionRecoveryMode, ActionCancel)
	return options
}

// Controller drives the decision tree for step failures.
type Controller struct {
	Source      DecisionSource
	MaxAttempts int
}

// NewController creates a controller with the default attempt budget.
func NewController(source DecisionSource) *Controller {
	return &Controller{Source: source, MaxAttempts: MaxAttempts}
}

// Resolve applies the decision tree to one failure and returns the chosen
// terminal action (never ActionRecoveryMode; sources resolve that
// internally). Lockout and cancellation are rejected: they must not reach
// the decision tree.
func (c *Controller) Resolve(ctx context.Context, fc FailureContext) (Action, error) {
	fc.MaxAttempts = c.MaxAttempts

	options := AvailableActions(fc)
	if len(options) == 0 {
		return ActionCancel, fmt.Errorf("no recovery options for %s failure on step %s: %w", fc.Class, fc.Step, fc.Err)
	}

	action, err := c.Source.Decide(ctx, fc, options)
	if err != nil {
		return ActionCancel, fmt.Errorf("decision source failed: %w", err)
	}
	if action == ActionRecoveryMode {
		return ActionCancel, fmt.Errorf("decision source returned unresolved recovery mode")
	}

	// The recovery-mode submenu may resolve to a retry even after the
	// silent budget is spent (reset-and-retry), so retry stays valid for
	// transient failures beyond the top-level option list.
	allowed := options
	if fc.Class == ClassTransient {
		allowed = append(append([]Action{}, options...), ActionRetry)
	}
	for _, opt := range allowed {
		if action == opt {
			return action, nil
		}
	}
	return ActionCancel, fmt.Errorf("decision source chose unavailable action %q for step %s", action, fc.Step)
}

// Scripted is a DecisionSource that replays a fixed action sequence.
// Used by tests and non-interactive runs.
type Scripted struct {
	Actions []Action

	// OnRecovery resolves ActionRecoveryMode entries; when nil, scripted
	// recovery mode saves and exits.
	OnRecovery func(ctx context.Context, fc FailureContext) Action

	next int
}

// Decide implements DecisionSource.
func (s *Scripted) Decide(ctx context.Context, fc FailureContext, options []Action) (Action, error) {
	if s.next >= len(s.Actions) {
		return ActionSaveAndExit, nil
	}
	action := s.Actions[s.next]
	s.next++

	if action == ActionRecoveryMode {
		if s.OnRecovery != nil {
			return s.OnRecovery(ctx, fc), nil
		}
		return ActionSaveAndExit, nil
	}
	return action, nil
}
