// Package keygen generates the SSH keypair deployed during hardening.
package keygen

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyPair holds a generated keypair: the private key in OpenSSH PEM
// format and the public key as an authorized_keys line.
type KeyPair struct {
	PrivateKey  []byte
	PublicKey   []byte
	Fingerprint string
}

// GenerateEd25519 generates a new ed25519 keypair.
func GenerateEd25519(comment string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(block)

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	authorized := ssh.MarshalAuthorizedKey(sshPub)
	if comment != "" {
		authorized = []byte(strings.TrimRight(string(authorized), "\n") + " " + comment + "\n")
	}

	return &KeyPair{
		PrivateKey:  privatePEM,
		PublicKey:   authorized,
		Fingerprint: ssh.FingerprintSHA256(sshPub),
	}, nil
}

// WriteKeyPair writes the keypair to privatePath and privatePath+".pub"
// with conventional modes. Existing files are replaced.
func WriteKeyPair(kp *KeyPair, privatePath string) error {
	if err := os.MkdirAll(filepath.Dir(privatePath), 0o700); err != nil {
		return fmt.Errorf("failed to create key dir: %w", err)
	}
	if err := os.WriteFile(privatePath, kp.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(privatePath+".pub", kp.PublicKey, 0o644); err != nil { //nolint:gosec // Public keys are public.
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

// LoadPublicKey reads an authorized_keys-format public key and returns
// the trimmed line plus its fingerprint.
func LoadPublicKey(path string) (line, fingerprint string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read public key %s: %w", path, err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), ssh.FingerprintSHA256(pub), nil
}
