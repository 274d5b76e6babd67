package observe

import (
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrObserverEmitsStructuredEvents(t *testing.T) {
	var lines []string
	logger := funcr.New(func(_, args string) {
		lines = append(lines, args)
	}, funcr.Options{})

	obs := NewLogr(logger).WithFields(map[string]string{"host": "h1"})
	obs.Event(Event{
		Type:    EventScenarioVerified,
		Step:    "deployPublicKey",
		Message: "verified",
		Fields:  map[string]string{"port": "2222"},
	})

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "scenario.verified")
	assert.Contains(t, lines[0], "deployPublicKey")
	assert.Contains(t, lines[0], "2222")
	assert.Contains(t, lines[0], "h1")
}

func TestMergeFields(t *testing.T) {
	assert.Nil(t, mergeFields(nil, nil))

	merged := mergeFields(map[string]string{"a": "1", "b": "2"}, map[string]string{"b": "3"})
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, merged)
}

func TestNoop(t *testing.T) {
	var obs Observer = Noop{}
	obs.Printf("ignored %d", 1)
	obs.Event(Event{Type: EventStepStarted})
	assert.Equal(t, Noop{}, obs.WithFields(map[string]string{"k": "v"}))
}
