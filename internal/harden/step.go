package harden

import (
	"github.com/imamik/hostlock/internal/state"
)

// Step names, as recorded in the host state document.
const (
	StepGenerateKeyPair              = "generateKeyPair"
	StepDeployPublicKey              = "deployPublicKey"
	StepCreateDeploymentUser         = "createDeploymentUser"
	StepApplySSHHardening            = "applySSHHardening"
	StepConfigureFirewall            = "configureFirewall"
	StepConfigureIntrusionPrevention = "configureIntrusionPrevention"
	StepEnableAutoUpdates            = "enableAutoUpdates"
)

// Step is one unit of the hardening pipeline. Run must be idempotent:
// re-running a step whose effect is already present converges without
// error. The returned data map is persisted with the completion record.
type Step interface {
	Name() string

	// Critical steps can never be skipped: a partially-hardened host with
	// one of these missing is worse than an unhardened one.
	Critical() bool

	Run(c *Context) (map[string]any, error)
}

// Registry returns the hardening steps in their fixed execution order.
// The order is part of the safety argument (see package doc) and is not
// configurable.
func Registry() []Step {
	return []Step{
		generateKeyPair{},
		deployPublicKey{},
		createDeploymentUser{},
		applySSHHardening{},
		configureFirewall{},
		configureIntrusionPrevention{},
		enableAutoUpdates{},
	}
}

// NextIncomplete returns the first step that is neither completed nor
// skipped, or false when the pipeline is done.
func NextIncomplete(st *state.HostState, steps []Step) (Step, bool) {
	for _, step := range steps {
		if !st.StepDone(step.Name()) {
			return step, true
		}
	}
	return nil, false
}

// Progress reports how many steps are done out of the total.
func Progress(st *state.HostState, steps []Step) (done, total int) {
	for _, step := range steps {
		if st.StepDone(step.Name()) {
			done++
		}
	}
	return done, len(steps)
}
