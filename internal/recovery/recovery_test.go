package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/negotiate"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"timeout is transient", context.DeadlineExceeded, ClassTransient},
		{"plain error is transient", errors.New("connection reset"), ClassTransient},
		{"wrapped lockout", fmt.Errorf("step: %w", &negotiate.LockoutError{Host: "h"}), ClassLockout},
		{"config error", &config.Error{Field: "host", Hint: "set it"}, ClassConfig},
		{"wrapped config error", fmt.Errorf("load: %w", &config.Error{Field: "x"}), ClassConfig},
		{"operator interrupt", context.Canceled, ClassCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestAvailableActions(t *testing.T) {
	tests := []struct {
		name string
		fc   FailureContext
		want []Action
	}{
		{
			name: "transient with budget left",
			fc:   FailureContext{Attempt: 1, MaxAttempts: 3, Class: ClassTransient},
			want: []Action{ActionRetry, ActionSkip, ActionSaveAndExit, ActionRecoveryMode, ActionCancel},
		},
		{
			name: "budget exhausted drops retry",
			fc:   FailureContext{Attempt: 3, MaxAttempts: 3, Class: ClassTransient},
			want: []Action{ActionSkip, ActionSaveAndExit, ActionRecoveryMode, ActionCancel},
		},
		{
			name: "critical step never offers skip",
			fc:   FailureContext{Attempt: 3, MaxAttempts: 3, Class: ClassTransient, Critical: true},
			want: []Action{ActionSaveAndExit, ActionRecoveryMode, ActionCancel},
		},
		{
			name: "config error never offers retry",
			fc:   FailureContext{Attempt: 1, MaxAttempts: 3, Class: ClassConfig, Critical: true},
			want: []Action{ActionSaveAndExit, ActionRecoveryMode, ActionCancel},
		},
		{
			name: "lockout bypasses the tree",
			fc:   FailureContext{Attempt: 1, MaxAttempts: 3, Class: ClassLockout},
			want: nil,
		},
		{
			name: "cancellation bypasses the tree",
			fc:   FailureContext{Class: ClassCancelled},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailableActions(tt.fc))
		})
	}
}

func TestControllerResolveValidAction(t *testing.T) {
	c := NewController(&Scripted{Actions: []Action{ActionRetry}})
	action, err := c.Resolve(context.Background(), FailureContext{
		Step:    "configureFirewall",
		Attempt: 1,
		Class:   ClassTransient,
		Err:     errors.New("boom"),
	})
	require.NoError(t, err)
	assert.Equal(t, ActionRetry, action)
}

func TestControllerRejectsSkipForCriticalStep(t *testing.T) {
	c := NewController(&Scripted{Actions: []Action{ActionSkip}})
	_, err := c.Resolve(context.Background(), FailureContext{
		Step:     "applySSHHardening",
		Critical: true,
		Attempt:  3,
		Class:    ClassTransient,
		Err:      errors.New("boom"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable action")
}

func TestControllerRejectsLockout(t *testing.T) {
	c := NewController(&Scripted{Actions: []Action{ActionRetry}})
	_, err := c.Resolve(context.Background(), FailureContext{
		Step:  "deployPublicKey",
		Class: ClassLockout,
		Err:   &negotiate.LockoutError{Host: "h"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recovery options")
}

func TestScriptedRecoveryModeResolves(t *testing.T) {
	resetCalled := false
	source := &Scripted{
		Actions: []Action{ActionRecoveryMode},
		OnRecovery: func(_ context.Context, fc FailureContext) Action {
			if fc.ResetStep != nil {
				resetCalled = fc.ResetStep() == nil
			}
			return ActionRetry
		},
	}
	c := NewController(source)

	action, err := c.Resolve(context.Background(), FailureContext{
		Step:      "configureFirewall",
		Attempt:   3, // budget spent; recovery mode may still retry
		Class:     ClassTransient,
		Err:       errors.New("boom"),
		ResetStep: func() error { return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, ActionRetry, action)
	assert.True(t, resetCalled)
}

func TestScriptedExhaustedDefaultsToSaveAndExit(t *testing.T) {
	c := NewController(&Scripted{})
	action, err := c.Resolve(context.Background(), FailureContext{
		Step:    "enableAutoUpdates",
		Attempt: 1,
		Class:   ClassTransient,
		Err:     errors.New("boom"),
	})
	require.NoError(t, err)
	assert.Equal(t, ActionSaveAndExit, action)
}
