package harden

import (
	"context"
	"fmt"

	"github.com/imamik/hostlock/internal/diag"
	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/recovery"
)

// Orchestrator walks the pipeline to completion, persisting after every
// step and routing failures through the recovery decision tree.
type Orchestrator struct {
	Steps    []Step
	Executor *Executor
	Recovery *recovery.Controller
	Observer observe.Observer

	// BundleDir is where diagnostic bundles are written on request.
	BundleDir string

	// Uploader, when set, pushes written bundles to object storage.
	Uploader diag.Uploader
}

// NewOrchestrator wires the full pipeline with the given decision source.
func NewOrchestrator(ctl *recovery.Controller, obs observe.Observer, bundleDir string) *Orchestrator {
	if obs == nil {
		obs = observe.Noop{}
	}
	steps := Registry()
	return &Orchestrator{
		Steps:     steps,
		Executor:  NewExecutor(steps, obs),
		Recovery:  ctl,
		Observer:  obs,
		BundleDir: bundleDir,
	}
}

// Run executes every remaining step in order. It returns nil when the
// pipeline completes, recovery.ErrSaveAndExit or recovery.ErrCancelled
// for operator-chosen termination, and the underlying error for lockout
// or interrupt. State is persisted on every exit path.
func (o *Orchestrator) Run(c *Context) error {
	defer c.CloseSession()

	for {
		step, ok := NextIncomplete(c.State, o.Steps)
		if !ok {
			break
		}
		if err := o.runStep(c, step); err != nil {
			return err
		}
	}

	done, total := Progress(c.State, o.Steps)
	o.Observer.Printf("hardening of %s complete (%d/%d steps)", c.State.Host, done, total)
	return nil
}

func (o *Orchestrator) runStep(c *Context, step Step) error {
	for attempt := 1; ; attempt++ {
		if err := c.Err(); err != nil {
			return o.saveOnInterrupt(c, err)
		}

		outcome := o.Executor.Run(c, step, attempt)
		if outcome.Err == nil {
			if err := c.State.MarkStepCompleted(step.Name(), outcome.Data); err != nil {
				return fmt.Errorf("step %s succeeded but could not be persisted: %w", step.Name(), err)
			}
			o.Observer.Event(observe.Event{
				Type: observe.EventStepCompleted,
				Step: step.Name(),
			})
			return nil
		}

		switch outcome.Class {
		case recovery.ClassCancelled:
			return o.saveOnInterrupt(c, outcome.Err)
		case recovery.ClassLockout:
			// Terminal: no decision tree, no retry. The error already
			// carries the out-of-band remediation instruction.
			_ = c.State.Save()
			return outcome.Err
		}

		action, err := o.Recovery.Resolve(c, o.failureContext(c, step, attempt, outcome))
		if err != nil {
			_ = c.State.Save()
			return err
		}

		switch action {
		case recovery.ActionRetry:
			// A transient failure often leaves the session dead; make the
			// next attempt renegotiate.
			c.DropSession()
		case recovery.ActionSkip:
			if err := c.State.MarkStepSkipped(step.Name()); err != nil {
				return err
			}
			o.Observer.Event(observe.Event{
				Type: observe.EventStepSkipped,
				Step: step.Name(),
			})
			return nil
		case recovery.ActionSaveAndExit:
			o.saveState(c)
			return recovery.ErrSaveAndExit
		default:
			o.saveState(c)
			return recovery.ErrCancelled
		}
	}
}

// saveOnInterrupt persists progress on ^C and returns the interrupt
// unchanged; the CLI reports the resume instruction.
func (o *Orchestrator) saveOnInterrupt(c *Context, cause error) error {
	o.saveState(c)
	return fmt.Errorf("run interrupted, progress saved: %w", cause)
}

func (o *Orchestrator) saveState(c *Context) {
	if err := c.State.Save(); err != nil {
		o.Observer.Printf("failed to save state: %v", err)
		return
	}
	o.Observer.Event(observe.Event{
		Type:    observe.EventStateSaved,
		Message: "state saved",
	})
}

func (o *Orchestrator) failureContext(c *Context, step Step, attempt int, outcome Outcome) recovery.FailureContext {
	return recovery.FailureContext{
		Step:     step.Name(),
		Critical: step.Critical(),
		Attempt:  attempt,
		Class:    outcome.Class,
		Err:      outcome.Err,

		Detail: func() string {
			return fmt.Sprintf("step %s, attempt %d: %+v", step.Name(), attempt, outcome.Err)
		},
		Diagnostics: diag.Probes(c.Config),
		ResetStep: func() error {
			c.DropSession()
			return c.State.ResetStepData(step.Name())
		},
		WriteBundle: func(ctx context.Context) (string, error) {
			checks := diag.Probes(c.Config)(ctx)
			path, err := diag.WriteBundle(o.BundleDir, c.State, step.Name(), outcome.Err, checks)
			if err != nil || o.Uploader == nil {
				return path, err
			}
			key, upErr := diag.Upload(ctx, o.Uploader, path)
			if upErr != nil {
				// The local bundle is the deliverable; a failed upload is
				// reported but does not void it.
				o.Observer.Printf("bundle upload failed: %v", upErr)
				return path, nil
			}
			o.Observer.Printf("bundle uploaded as %s", key)
			return path, nil
		},
	}
}
