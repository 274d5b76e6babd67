package testing

import (
	"context"

	"github.com/stretchr/testify/mock"

	sshx "github.com/imamik/hostlock/internal/platform/ssh"
)

// MockDialer is a strict testify mock of sshx.Dialer.
type MockDialer struct {
	mock.Mock
}

// Dial implements sshx.Dialer.
func (m *MockDialer) Dial(ctx context.Context, cfg sshx.Config) (sshx.Session, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(sshx.Session), args.Error(1)
}

// MockSession is a strict testify mock of sshx.Session.
type MockSession struct {
	mock.Mock
}

// Execute implements sshx.Session.
func (m *MockSession) Execute(ctx context.Context, command string) (sshx.Result, error) {
	args := m.Called(ctx, command)
	return args.Get(0).(sshx.Result), args.Error(1)
}

// Close implements sshx.Session.
func (m *MockSession) Close() error {
	args := m.Called()
	return args.Error(0)
}
