// Package cloud is the server provisioning boundary. The wizard talks to
// the Provisioner interface; Hetzner implements it against the real API
// and DryRun simulates it without side effects.
package cloud

import "context"

// Server describes a provisioned (or simulated) server.
type Server struct {
	ID     string
	Name   string
	IPv4   string
	Status string

	// Simulated marks results produced by a dry run. Nothing was created.
	Simulated bool
}

// ServerOpts holds the parameters for ensuring a server exists.
type ServerOpts struct {
	Name       string
	ServerType string
	Image      string
	Location   string
	SSHKeyName string
	Labels     map[string]string
}

// Provisioner manages cloud resources keyed by name. Ensure operations
// are idempotent: an existing resource with the right name is adopted,
// not duplicated.
type Provisioner interface {
	// EnsureSSHKey registers the public key under the given name and
	// returns the provider-side key ID.
	EnsureSSHKey(ctx context.Context, name, publicKey string) (string, error)

	// EnsureServer creates the server if it does not exist and returns
	// its description either way.
	EnsureServer(ctx context.Context, opts ServerOpts) (*Server, error)

	// DescribeServer returns the named server, or nil when it does not
	// exist.
	DescribeServer(ctx context.Context, name string) (*Server, error)

	// DeleteServer removes the named server. Deleting an absent server is
	// not an error.
	DeleteServer(ctx context.Context, name string) error
}
