package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "hostlock", cmd.Use)

	expected := []string{"init", "harden", "resume", "status", "reset", "version", "completion"}
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, name := range expected {
		assert.Contains(t, names, name)
	}
}

func TestHardenCommand(t *testing.T) {
	cmd := Harden()

	require.NotNil(t, cmd)
	assert.Equal(t, "harden", cmd.Use)
	require.NotNil(t, cmd.RunE)

	flag := cmd.Flags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)

	flag = cmd.Flags().Lookup("yes")
	require.NotNil(t, flag)
	assert.Equal(t, "y", flag.Shorthand)
	assert.Equal(t, "false", flag.DefValue)

	require.NotNil(t, cmd.Flags().Lookup("state-dir"))
	require.NotNil(t, cmd.Flags().Lookup("log-json"))
}

func TestInitCommand(t *testing.T) {
	cmd := Init()

	require.NotNil(t, cmd)
	assert.Equal(t, "init", cmd.Use)
	require.NotNil(t, cmd.RunE)
	require.NotNil(t, cmd.Flags().Lookup("dry-run"))
}

func TestResumeCommand(t *testing.T) {
	cmd := Resume()

	require.NotNil(t, cmd)
	assert.Equal(t, "resume [session-id]", cmd.Use)
	require.NotNil(t, cmd.Args, "resume takes at most one session id")
	require.NotNil(t, cmd.RunE)
}

func TestStatusCommand(t *testing.T) {
	cmd := Status()

	require.NotNil(t, cmd)
	assert.Equal(t, "status", cmd.Use)
	require.NotNil(t, cmd.Flags().Lookup("json"))
	require.NotNil(t, cmd.Flags().Lookup("host"))
}

func TestResetCommand(t *testing.T) {
	cmd := Reset()

	require.NotNil(t, cmd)
	assert.Equal(t, "reset", cmd.Use)
	flag := cmd.Flags().Lookup("force")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
