package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hostlock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "host: 203.0.113.10\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "root", cfg.SSH.OriginalUser)
	assert.Equal(t, "deploy", cfg.SSH.DeployUser)
	assert.Equal(t, 2222, cfg.SSH.TargetPort)
	assert.Equal(t, []int{80, 443}, cfg.Firewall.AllowPorts)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.Command)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsDefaultPort(t *testing.T) {
	path := writeConfig(t, "host: 203.0.113.10\nssh:\n  targetPort: 22\n")

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ssh.targetPort", cfgErr.Field)
	assert.Contains(t, cfgErr.Hint, "differ from 22")
}

func TestValidateRequiresHostOrServer(t *testing.T) {
	path := writeConfig(t, "domain: example.com\n")

	_, err := Load(path)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "host", cfgErr.Field)

	// A provisionable server waives the requirement; the address is
	// recorded once the server exists.
	path = writeConfig(t, "domain: example.com\ncloud:\n  serverName: web-1\n")
	_, err = Load(path)
	require.NoError(t, err)
}

func TestValidateRejectsSameUsers(t *testing.T) {
	path := writeConfig(t, "host: h\nssh:\n  originalUser: deploy\n  deployUser: deploy\n")

	_, err := Load(path)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ssh.deployUser", cfgErr.Field)
}

func TestDeployKeyPaths(t *testing.T) {
	s := SSH{KeyDir: "/tmp/keys"}
	assert.Equal(t, "/tmp/keys/deploy_ed25519", s.DeployKeyPath())
	assert.Equal(t, "/tmp/keys/deploy_ed25519.pub", s.DeployPublicKeyPath())
}

func TestSnapshot(t *testing.T) {
	cfg := &Config{Host: "h"}
	cfg.applyDefaults()
	snap := cfg.Snapshot()
	assert.Equal(t, "h", snap["host"])
	assert.Equal(t, "2222", snap["targetPort"])
}
