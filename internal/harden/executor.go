package harden

import (
	"fmt"

	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/recovery"
)

// Outcome is the result of one step attempt.
type Outcome struct {
	Step  Step
	Data  map[string]any
	Err   error
	Class recovery.Class
}

// Executor runs a single step attempt: ordering guard, the step itself,
// failure recording, and classification. Completion persistence belongs
// to the orchestrator, which also owns the skip/retry decisions.
type Executor struct {
	Steps    []Step
	Observer observe.Observer
}

// NewExecutor creates an executor over the given pipeline.
func NewExecutor(steps []Step, obs observe.Observer) *Executor {
	if obs == nil {
		obs = observe.Noop{}
	}
	return &Executor{Steps: steps, Observer: obs}
}

// Run attempts one step. On failure the error is appended to the state
// document before anything else happens, so a post-mortem survives even
// a subsequent crash.
func (e *Executor) Run(c *Context, step Step, attempt int) Outcome {
	if err := e.checkOrder(c, step); err != nil {
		return Outcome{Step: step, Err: err, Class: recovery.Classify(err)}
	}

	e.Observer.Event(observe.Event{
		Type:    observe.EventStepStarted,
		Step:    step.Name(),
		Message: fmt.Sprintf("attempt %d", attempt),
	})

	data, err := step.Run(c)
	if err != nil {
		_ = c.State.AppendError(step.Name(), err)
		e.Observer.Event(observe.Event{
			Type:    observe.EventStepFailed,
			Step:    step.Name(),
			Message: err.Error(),
		})
		return Outcome{Step: step, Err: err, Class: recovery.Classify(err)}
	}
	return Outcome{Step: step, Data: data}
}

// checkOrder enforces the fixed pipeline order: every earlier step must
// be completed or explicitly skipped before this one may run.
func (e *Executor) checkOrder(c *Context, step Step) error {
	for _, prior := range e.Steps {
		if prior.Name() == step.Name() {
			return nil
		}
		if !c.State.StepDone(prior.Name()) {
			return fmt.Errorf("step %s cannot run before %s", step.Name(), prior.Name())
		}
	}
	return fmt.Errorf("step %s is not in the pipeline", step.Name())
}
