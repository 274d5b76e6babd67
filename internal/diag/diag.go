// Package diag produces machine-readable diagnostic bundles and runs the
// environment probes offered by recovery mode.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/recovery"
	"github.com/imamik/hostlock/internal/state"
)

const probeDialTimeout = 3 * time.Second

// Probes returns the prerequisite checks for a target: key material on
// disk, TCP reachability of both candidate ports, and name resolution.
func Probes(cfg *config.Config) func(ctx context.Context) []recovery.Check {
	return func(ctx context.Context) []recovery.Check {
		var checks []recovery.Check
		checks = append(checks, keyCheck("initial private key", cfg.SSH.InitialKeyPath))
		checks = append(checks, keyCheck("deployment private key", cfg.SSH.DeployKeyPath()))
		checks = append(checks, resolveCheck(ctx, cfg.Host))
		checks = append(checks, portCheck(ctx, cfg.Host, config.DefaultPort))
		checks = append(checks, portCheck(ctx, cfg.Host, cfg.SSH.TargetPort))
		return checks
	}
}

func keyCheck(name, path string) recovery.Check {
	if path == "" {
		return recovery.Check{Name: name, OK: false, Detail: "no path configured"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return recovery.Check{Name: name, OK: false, Detail: err.Error()}
	}
	if _, err := ssh.ParsePrivateKey(data); err != nil {
		return recovery.Check{Name: name, OK: false, Detail: fmt.Sprintf("%s: %v", path, err)}
	}
	return recovery.Check{Name: name, OK: true, Detail: path}
}

func resolveCheck(ctx context.Context, host string) recovery.Check {
	name := fmt.Sprintf("resolve %s", host)
	if net.ParseIP(host) != nil {
		return recovery.Check{Name: name, OK: true, Detail: "literal IP address"}
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return recovery.Check{Name: name, OK: false, Detail: err.Error()}
	}
	return recovery.Check{Name: name, OK: true, Detail: fmt.Sprintf("resolves to %v", addrs)}
}

func portCheck(ctx context.Context, host string, port int) recovery.Check {
	name := fmt.Sprintf("tcp %s:%d", host, port)
	d := net.Dialer{Timeout: probeDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return recovery.Check{Name: name, OK: false, Detail: err.Error()}
	}
	_ = conn.Close()
	return recovery.Check{Name: name, OK: true, Detail: "reachable"}
}

// Bundle is the diagnostic document written for post-mortems.
type Bundle struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Host        string           `json:"host"`
	Step        string           `json:"step,omitempty"`
	Error       string           `json:"error,omitempty"`
	State       *state.HostState `json:"state"`
	Checks      []recovery.Check `json:"checks,omitempty"`
}

// WriteBundle writes a bundle under dir and returns its path.
func WriteBundle(dir string, st *state.HostState, step string, stepErr error, checks []recovery.Check) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create bundle dir: %w", err)
	}

	bundle := Bundle{
		GeneratedAt: time.Now().UTC(),
		Host:        st.Host,
		Step:        step,
		State:       st,
		Checks:      checks,
	}
	if stepErr != nil {
		bundle.Error = stepErr.Error()
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode bundle: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("hostlock-diag-%s.json", bundle.GeneratedAt.Format("20060102-150405")))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write bundle: %w", err)
	}
	return path, nil
}

// Uploader pushes a bundle to remote storage. Implemented by
// objstore.Client.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Upload pushes an already-written bundle and returns the object key.
func Upload(ctx context.Context, up Uploader, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read bundle %s: %w", path, err)
	}
	key := "diagnostics/" + filepath.Base(path)
	if err := up.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to upload bundle: %w", err)
	}
	return key, nil
}
