package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 10 * time.Second

// Result holds the outcome of one remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Session is an established remote shell connection.
type Session interface {
	// Execute runs one command. A nonzero remote exit status is reported
	// via Result.ExitCode; err is reserved for transport failures.
	Execute(ctx context.Context, command string) (Result, error)
	Close() error
}

// Config describes one connection attempt.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// Timeout bounds the dial. If zero, a 10s default is used.
	Timeout time.Duration

	// HostKeyCallback handles host key verification. If nil,
	// ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback
}

// Dialer opens remote shell sessions. Implemented by NetDialer for real
// connections and by mocks in tests.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Session, error)
}

// NetDialer dials real TCP/SSH connections.
type NetDialer struct{}

// Dial establishes one SSH connection. Unlike a retrying client, it makes
// exactly one attempt: the negotiator owns the decision of what to try
// next, and blind re-dials against a hardened host can trip intrusion
// prevention.
func (NetDialer) Dial(ctx context.Context, cfg Config) (Session, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ssh: host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh: user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("ssh: private key cannot be empty")
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("ssh: failed to parse private key: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	hostKeyCallback := cfg.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // First contact with a fresh host; see package doc.
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		client, dialErr := ssh.Dial("tcp", addr, clientConfig)
		ch <- dialResult{client: client, err: dialErr}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, fmt.Errorf("ssh: dial %s cancelled: %w", addr, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("ssh: failed to connect to %s as %s: %w", addr, cfg.User, r.err)
		}
		return &netSession{client: r.client, addr: addr}, nil
	}
}

type netSession struct {
	client *ssh.Client
	addr   string
}

func (s *netSession) Execute(ctx context.Context, command string) (Result, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("ssh: failed to open session on %s: %w", s.addr, err)
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return Result{}, fmt.Errorf("ssh: command on %s cancelled: %w", s.addr, ctx.Err())
	case err = <-done:
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("ssh: command failed on %s: %w", s.addr, err)
	}
	return result, nil
}

func (s *netSession) Close() error {
	return s.client.Close()
}
