package testing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/keygen"
)

// TestContext returns a context with a reasonable timeout for tests.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// WriteTestKey generates an ed25519 keypair under dir and returns the
// private key path.
func WriteTestKey(t *testing.T, dir, name string) string {
	t.Helper()
	kp, err := keygen.GenerateEd25519("test")
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := keygen.WriteKeyPair(kp, path); err != nil {
		t.Fatalf("failed to write test key: %v", err)
	}
	return path
}

// TestSSHConfig returns an SSH target config with key material under dir.
func TestSSHConfig(t *testing.T, dir string) config.SSH {
	t.Helper()
	initial := WriteTestKey(t, dir, "initial_ed25519")
	keyDir := filepath.Join(dir, "keys")
	return config.SSH{
		OriginalUser:   "root",
		DeployUser:     "deploy",
		TargetPort:     2222,
		InitialKeyPath: initial,
		KeyDir:         keyDir,
	}
}
