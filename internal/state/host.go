package state

import (
	"fmt"
	"time"
)

// SchemaVersion is the current host/session document schema version.
// Older documents load with missing optional fields defaulted.
const SchemaVersion = 1

// Connection records the last verified-reachable access configuration for
// a host. It is written only after a scenario actually succeeded, never
// speculatively.
type Connection struct {
	CurrentPort        int    `json:"currentPort"`
	CurrentUsername    string `json:"currentUsername"`
	OriginalUsername   string `json:"originalUsername"`
	DeploymentUsername string `json:"deploymentUsername"`
	PrivateKeyPath     string `json:"privateKeyPath"`
	HardeningApplied   bool   `json:"hardeningApplied"`
}

// StepStatus records one step's completion state.
type StepStatus struct {
	Completed bool           `json:"completed"`
	Skipped   bool           `json:"skipped,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
	Data      map[string]any `json:"data,omitempty"`
}

// ErrorRecord is one appended failure, kept for post-mortems.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
}

// HostState is the per-target-host hardening document.
type HostState struct {
	SchemaVersion  int                   `json:"schemaVersion"`
	Host           string                `json:"host"`
	CurrentPhase   string                `json:"currentPhase,omitempty"`
	Connection     Connection            `json:"connection"`
	Steps          map[string]StepStatus `json:"steps"`
	ConfigSnapshot map[string]string     `json:"configSnapshot,omitempty"`
	Errors         []ErrorRecord         `json:"errors,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`

	path string
}

// StepCompleted reports whether the named step has completed.
func (h *HostState) StepCompleted(name string) bool {
	return h.Steps[name].Completed
}

// StepSkipped reports whether the named step was explicitly skipped.
func (h *HostState) StepSkipped(name string) bool {
	return h.Steps[name].Skipped
}

// StepDone reports whether the step no longer blocks later steps.
func (h *HostState) StepDone(name string) bool {
	s := h.Steps[name]
	return s.Completed || s.Skipped
}

// StepData returns the recorded result payload of a step, or nil.
func (h *HostState) StepData(name string) map[string]any {
	return h.Steps[name].Data
}

// MarkStepCompleted flips the step's completion flag, stamps the
// timestamp, and persists immediately. It is the only way a completion
// flag becomes true.
func (h *HostState) MarkStepCompleted(name string, data map[string]any) error {
	if h.Steps == nil {
		h.Steps = make(map[string]StepStatus)
	}
	h.Steps[name] = StepStatus{
		Completed: true,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	h.CurrentPhase = name
	return h.save()
}

// MarkStepSkipped records an explicit skip decision and persists.
func (h *HostState) MarkStepSkipped(name string) error {
	if h.Steps == nil {
		h.Steps = make(map[string]StepStatus)
	}
	if h.Steps[name].Completed {
		return fmt.Errorf("step %s is already completed; refusing to mark skipped", name)
	}
	h.Steps[name] = StepStatus{
		Skipped:   true,
		Timestamp: time.Now().UTC(),
	}
	return h.save()
}

// ResetStepData drops the recorded data of one incomplete step so it can
// be retried from a clean slate. Completed steps are never reset this way;
// only Reset un-completes steps.
func (h *HostState) ResetStepData(name string) error {
	s, ok := h.Steps[name]
	if !ok {
		return nil
	}
	if s.Completed {
		return fmt.Errorf("step %s is completed; use a full reset to un-complete steps", name)
	}
	delete(h.Steps, name)
	return h.save()
}

// AppendError records a failure before any further action is taken, so a
// post-mortem is possible even if the process is later killed.
func (h *HostState) AppendError(step string, err error) error {
	h.Errors = append(h.Errors, ErrorRecord{
		Timestamp: time.Now().UTC(),
		Step:      step,
		Message:   err.Error(),
	})
	return h.save()
}

// SetVerifiedConnection persists a scenario that actually succeeded.
// HardeningApplied is recomputed from the verified port.
func (h *HostState) SetVerifiedConnection(username string, port int, keyPath string, defaultPort int) error {
	h.Connection.CurrentUsername = username
	h.Connection.CurrentPort = port
	h.Connection.PrivateKeyPath = keyPath
	h.Connection.HardeningApplied = port != defaultPort
	return h.save()
}

// Reset replaces the document with a fresh, all-incomplete one. The
// caller is responsible for obtaining explicit operator confirmation;
// there is no silent-reset path through any other method.
func (h *HostState) Reset() error {
	fresh := newHostState(h.Host, h.ConfigSnapshot, h.Connection.OriginalUsername, h.Connection.DeploymentUsername)
	fresh.path = h.path
	*h = *fresh
	return h.save()
}

// Save persists the document. Most mutations persist themselves; Save is
// for callers that changed fields directly (e.g. best-effort save on
// interrupt).
func (h *HostState) Save() error {
	return h.save()
}

func (h *HostState) save() error {
	if h.path == "" {
		return fmt.Errorf("host state for %s has no backing file", h.Host)
	}
	h.UpdatedAt = time.Now().UTC()
	return writeJSONAtomic(h.path, h)
}

func newHostState(host string, snapshot map[string]string, originalUser, deployUser string) *HostState {
	now := time.Now().UTC()
	return &HostState{
		SchemaVersion: SchemaVersion,
		Host:          host,
		Connection: Connection{
			CurrentPort:        0,
			OriginalUsername:   originalUser,
			DeploymentUsername: deployUser,
		},
		Steps:          make(map[string]StepStatus),
		ConfigSnapshot: snapshot,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
