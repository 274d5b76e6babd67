// Package wizard drives the end-to-end project setup flow: scaffold a
// project, provision a server, point DNS at it, harden it, issue a
// certificate, deploy, validate, and write the access summary.
//
// The flow is a fixed ordered list of steps over a persisted Session
// document, resumable across process restarts. External systems (cloud,
// DNS, certificates, deployment) sit behind collaborator interfaces so
// the flow itself is testable without network access.
package wizard

import (
	"github.com/imamik/hostlock/internal/state"
)

// Step names, as recorded in the session document.
const (
	StepCollectCredentials  = "collectCredentials"
	StepScaffoldProject     = "scaffoldProject"
	StepProvisionServer     = "provisionServer"
	StepConfigureDNS        = "configureDNS"
	StepAwaitDNSPropagation = "awaitDNSPropagation"
	StepHardenServer        = "hardenServer"
	StepIssueCertificate    = "issueCertificate"
	StepDeployApplication   = "deployApplication"
	StepValidateDeployment  = "validateDeployment"
	StepWriteAccessSummary  = "writeAccessSummary"
)

// Step is one unit of the wizard flow.
type Step interface {
	Name() string
	Critical() bool
	Run(c *Context) (map[string]any, error)
}

// Registry returns the wizard steps in their fixed execution order.
func Registry() []Step {
	return []Step{
		collectCredentials{},
		scaffoldProject{},
		provisionServer{},
		configureDNS{},
		awaitDNSPropagation{},
		hardenServer{},
		issueCertificate{},
		deployApplication{},
		validateDeployment{},
		writeAccessSummary{},
	}
}

// StepOrder returns the step names in order, for session creation.
func StepOrder() []string {
	steps := Registry()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	return names
}

// NextIncomplete returns the first step without a recorded result, or
// false when the flow is done.
func NextIncomplete(sess *state.Session, steps []Step) (Step, bool) {
	for _, step := range steps {
		if !sess.StepDone(step.Name()) {
			return step, true
		}
	}
	return nil, false
}

// Progress reports how many steps are done out of the total.
func Progress(sess *state.Session, steps []Step) (done, total int) {
	for _, step := range steps {
		if sess.StepDone(step.Name()) {
			done++
		}
	}
	return done, len(steps)
}
