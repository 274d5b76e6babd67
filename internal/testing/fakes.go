package testing

import (
	"context"
	"fmt"
	"sync"

	sshx "github.com/imamik/hostlock/internal/platform/ssh"
)

// Endpoint identifies one (user, port) access path on a fake host.
type Endpoint struct {
	User string
	Port int
}

// FakeHost simulates the SSH surface of a remote host. Access paths are
// opened and closed by tests to model the host moving through hardening.
type FakeHost struct {
	mu sync.Mutex

	// open holds the currently reachable (user, port) combinations.
	open map[Endpoint]bool

	// Responses maps a command to its result. Commands without an entry
	// succeed with empty output, except "whoami" which echoes the user.
	Responses map[string]sshx.Result

	// Exec, when set, overrides Responses entirely.
	Exec func(cfg sshx.Config, command string) (sshx.Result, error)

	// Dials records every connection attempt in order.
	Dials []sshx.Config

	// Commands records every executed command in order, across sessions.
	Commands []string
}

// NewFakeHost creates a host with the given access paths open.
func NewFakeHost(endpoints ...Endpoint) *FakeHost {
	open := make(map[Endpoint]bool, len(endpoints))
	for _, e := range endpoints {
		open[e] = true
	}
	return &FakeHost{open: open}
}

// Open makes an access path reachable.
func (f *FakeHost) Open(user string, port int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open[Endpoint{User: user, Port: port}] = true
}

// CloseEndpoint makes an access path unreachable (e.g. after the firewall
// narrowed the old port).
func (f *FakeHost) CloseEndpoint(user string, port int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, Endpoint{User: user, Port: port})
}

// DialCount returns the number of connection attempts so far.
func (f *FakeHost) DialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Dials)
}

// Dial implements sshx.Dialer.
func (f *FakeHost) Dial(_ context.Context, cfg sshx.Config) (sshx.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dials = append(f.Dials, cfg)
	if !f.open[Endpoint{User: cfg.User, Port: cfg.Port}] {
		return nil, fmt.Errorf("connection refused: %s@%s:%d", cfg.User, cfg.Host, cfg.Port)
	}
	return &fakeSession{host: f, cfg: cfg}, nil
}

type fakeSession struct {
	host   *FakeHost
	cfg    sshx.Config
	closed bool
}

func (s *fakeSession) Execute(_ context.Context, command string) (sshx.Result, error) {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if s.closed {
		return sshx.Result{}, fmt.Errorf("session closed")
	}
	s.host.Commands = append(s.host.Commands, command)

	if s.host.Exec != nil {
		return s.host.Exec(s.cfg, command)
	}
	if res, ok := s.host.Responses[command]; ok {
		return res, nil
	}
	if command == "whoami" {
		return sshx.Result{Stdout: s.cfg.User + "\n"}, nil
	}
	return sshx.Result{}, nil
}

func (s *fakeSession) Close() error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.closed = true
	return nil
}
