package keygen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestGenerateEd25519(t *testing.T) {
	kp, err := GenerateEd25519("hostlock-deploy")
	require.NoError(t, err)

	signer, err := ssh.ParsePrivateKey(kp.PrivateKey)
	require.NoError(t, err)

	pub, _, _, _, err := ssh.ParseAuthorizedKey(kp.PublicKey)
	require.NoError(t, err)

	// Public half must match the private key.
	assert.Equal(t, signer.PublicKey().Marshal(), pub.Marshal())
	assert.True(t, strings.HasPrefix(kp.Fingerprint, "SHA256:"))
	assert.Contains(t, string(kp.PublicKey), "hostlock-deploy")
}

func TestWriteKeyPair(t *testing.T) {
	kp, err := GenerateEd25519("c")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "deploy_ed25519")
	require.NoError(t, WriteKeyPair(kp, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	line, fingerprint, err := LoadPublicKey(path + ".pub")
	require.NoError(t, err)
	assert.Equal(t, kp.Fingerprint, fingerprint)
	assert.Equal(t, strings.TrimSpace(string(kp.PublicKey)), line)
}

func TestLoadPublicKeyMissing(t *testing.T) {
	_, _, err := LoadPublicKey(filepath.Join(t.TempDir(), "nope.pub"))
	require.Error(t, err)
}
