// Package observe provides structured observability for provisioning runs.
//
// The Observer interface decouples the state machine from output: the CLI
// wires a console observer (human-readable) or a logr-backed observer
// (machine-readable), and tests wire Noop.
package observe

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured events during a provisioning run.
type Observer interface {
	// Printf emits a free-form progress line.
	Printf(format string, v ...any)

	// Event emits a structured event.
	Event(event Event)

	// WithFields returns an Observer that attaches fields to every event.
	WithFields(fields map[string]string) Observer
}

// Event is a structured provisioning event.
type Event struct {
	Type      EventType
	Step      string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType identifies a structured event.
type EventType string

const (
	// EventStepStarted indicates a step attempt has started.
	EventStepStarted EventType = "step.started"
	// EventStepCompleted indicates a step completed and was persisted.
	EventStepCompleted EventType = "step.completed"
	// EventStepFailed indicates a step attempt failed.
	EventStepFailed EventType = "step.failed"
	// EventStepSkipped indicates the operator chose to skip a step.
	EventStepSkipped EventType = "step.skipped"

	// EventScenarioTrying indicates a connection scenario attempt.
	EventScenarioTrying EventType = "scenario.trying"
	// EventScenarioVerified indicates a scenario succeeded and was persisted.
	EventScenarioVerified EventType = "scenario.verified"
	// EventLockout indicates all known scenarios were exhausted.
	EventLockout EventType = "connection.lockout"

	// EventStateSaved indicates the state document was persisted on exit.
	EventStateSaved EventType = "state.saved"
)

// Console logs events with the standard log package.
type Console struct {
	fields map[string]string
}

// NewConsole creates a console observer.
func NewConsole() *Console {
	return &Console{fields: make(map[string]string)}
}

// Printf implements Observer.
func (c *Console) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (c *Console) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	var parts []string
	parts = append(parts, string(event.Type))
	if event.Step != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Step))
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	merged := mergeFields(c.fields, event.Fields)
	if len(merged) > 0 {
		var kv []string
		for k, v := range merged {
			kv = append(kv, fmt.Sprintf("%s=%s", k, v))
		}
		parts = append(parts, "("+strings.Join(kv, ", ")+")")
	}
	log.Print(strings.Join(parts, " "))
}

// WithFields implements Observer.
func (c *Console) WithFields(fields map[string]string) Observer {
	return &Console{fields: mergeFields(c.fields, fields)}
}

// Logr adapts a logr.Logger to the Observer interface, for structured
// machine-readable output.
type Logr struct {
	logger logr.Logger
}

// NewLogr creates an observer backed by the given logger.
func NewLogr(logger logr.Logger) *Logr {
	return &Logr{logger: logger}
}

// Printf implements Observer.
func (l *Logr) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Event implements Observer.
func (l *Logr) Event(event Event) {
	kv := []any{"type", string(event.Type)}
	if event.Step != "" {
		kv = append(kv, "step", event.Step)
	}
	for k, v := range event.Fields {
		kv = append(kv, k, v)
	}
	l.logger.Info(event.Message, kv...)
}

// WithFields implements Observer.
func (l *Logr) WithFields(fields map[string]string) Observer {
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &Logr{logger: l.logger.WithValues(kv...)}
}

// Noop discards all events. Used in tests.
type Noop struct{}

// Printf implements Observer.
func (Noop) Printf(string, ...any) {}

// Event implements Observer.
func (Noop) Event(Event) {}

// WithFields implements Observer.
func (n Noop) WithFields(map[string]string) Observer { return n }

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
