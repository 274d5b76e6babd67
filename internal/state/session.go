package state

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Session is the wizard-level document: one per provisioning run,
// persisted independently of any single host's hardening state.
type Session struct {
	SchemaVersion    int                       `json:"schemaVersion"`
	ID               string                    `json:"id"`
	ProjectPath      string                    `json:"projectPath"`
	StepOrder        []string                  `json:"stepOrder"`
	CurrentStepIndex int                       `json:"currentStepIndex"`
	StepResults      map[string]map[string]any `json:"stepResults"`
	Completed        bool                      `json:"completed"`
	CreatedAt        time.Time                 `json:"createdAt"`
	UpdatedAt        time.Time                 `json:"updatedAt"`

	path string
}

// StepDone reports whether the named step has a recorded result.
func (s *Session) StepDone(name string) bool {
	_, ok := s.StepResults[name]
	return ok
}

// MarkStepCompleted records a step result, advances the step index, and
// persists immediately.
func (s *Session) MarkStepCompleted(name string, result map[string]any) error {
	if s.Completed {
		return fmt.Errorf("session %s is completed and immutable", s.ID)
	}
	if s.StepResults == nil {
		s.StepResults = make(map[string]map[string]any)
	}
	if result == nil {
		result = map[string]any{}
	}
	s.StepResults[name] = result
	for i, step := range s.StepOrder {
		if step == name && i+1 > s.CurrentStepIndex {
			s.CurrentStepIndex = i + 1
		}
	}
	return s.save()
}

// MarkCompleted seals the session. A completed session is immutable
// except for inspection.
func (s *Session) MarkCompleted() error {
	s.Completed = true
	return s.save()
}

// Save persists the document for callers that changed fields directly.
func (s *Session) Save() error {
	return s.save()
}

func (s *Session) save() error {
	if s.path == "" {
		return fmt.Errorf("session %s has no backing file", s.ID)
	}
	s.UpdatedAt = time.Now().UTC()
	return writeJSONAtomic(s.path, s)
}

func newSessionID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return time.Now().UTC().Format("20060102-150405") + "-" + hex.EncodeToString(b)
}
