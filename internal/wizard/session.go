package wizard

import (
	"fmt"

	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/recovery"
)

// Runner walks the wizard flow to completion, persisting the session
// after every step and routing failures through the recovery tree.
type Runner struct {
	Steps    []Step
	Recovery *recovery.Controller
	Observer observe.Observer
}

// NewRunner wires the full flow with the given decision source.
func NewRunner(ctl *recovery.Controller, obs observe.Observer) *Runner {
	if obs == nil {
		obs = observe.Noop{}
	}
	return &Runner{Steps: Registry(), Recovery: ctl, Observer: obs}
}

// Run executes every remaining step in order and seals the session when
// all are done. Exit semantics match the hardening orchestrator:
// recovery.ErrSaveAndExit and recovery.ErrCancelled for operator-chosen
// termination, the underlying error otherwise.
func (r *Runner) Run(c *Context) error {
	for {
		step, ok := NextIncomplete(c.Session, r.Steps)
		if !ok {
			break
		}
		if err := r.runStep(c, step); err != nil {
			return err
		}
	}

	if err := c.Session.MarkCompleted(); err != nil {
		return fmt.Errorf("flow finished but session could not be sealed: %w", err)
	}
	done, total := Progress(c.Session, r.Steps)
	r.Observer.Printf("setup complete (%d/%d steps), session %s", done, total, c.Session.ID)
	return nil
}

func (r *Runner) runStep(c *Context, step Step) error {
	for attempt := 1; ; attempt++ {
		if err := c.Err(); err != nil {
			_ = c.Session.Save()
			return fmt.Errorf("run interrupted, session saved: %w", err)
		}

		r.Observer.Event(observe.Event{
			Type:    observe.EventStepStarted,
			Step:    step.Name(),
			Message: fmt.Sprintf("attempt %d", attempt),
		})

		result, err := step.Run(c)
		if err == nil {
			if err := c.Session.MarkStepCompleted(step.Name(), result); err != nil {
				return fmt.Errorf("step %s succeeded but could not be persisted: %w", step.Name(), err)
			}
			r.Observer.Event(observe.Event{
				Type: observe.EventStepCompleted,
				Step: step.Name(),
			})
			return nil
		}

		r.Observer.Event(observe.Event{
			Type:    observe.EventStepFailed,
			Step:    step.Name(),
			Message: err.Error(),
		})

		class := recovery.Classify(err)
		if class == recovery.ClassCancelled {
			_ = c.Session.Save()
			return err
		}

		action, resolveErr := r.Recovery.Resolve(c, recovery.FailureContext{
			Step:     step.Name(),
			Critical: step.Critical(),
			Attempt:  attempt,
			Class:    class,
			Err:      err,
			Detail: func() string {
				return fmt.Sprintf("step %s, attempt %d: %+v", step.Name(), attempt, err)
			},
		})
		if resolveErr != nil {
			_ = c.Session.Save()
			return resolveErr
		}

		switch action {
		case recovery.ActionRetry:
			continue
		case recovery.ActionSkip:
			if err := c.Session.MarkStepCompleted(step.Name(), map[string]any{"skipped": true}); err != nil {
				return err
			}
			r.Observer.Event(observe.Event{
				Type: observe.EventStepSkipped,
				Step: step.Name(),
			})
			return nil
		case recovery.ActionSaveAndExit:
			_ = c.Session.Save()
			return recovery.ErrSaveAndExit
		default:
			_ = c.Session.Save()
			return recovery.ErrCancelled
		}
	}
}
