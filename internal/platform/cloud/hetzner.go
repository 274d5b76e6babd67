package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/hostlock/internal/retry"
)

// Hetzner implements Provisioner against the Hetzner Cloud API.
type Hetzner struct {
	client *hcloud.Client
	labels map[string]string
}

// NewHetzner creates a provisioner with the given API token. The labels
// are attached to every resource it creates, so a later cleanup can find
// them by selector.
func NewHetzner(token string, labels map[string]string) *Hetzner {
	return &Hetzner{
		client: hcloud.NewClient(hcloud.WithToken(token)),
		labels: labels,
	}
}

// EnsureSSHKey implements Provisioner.
func (h *Hetzner) EnsureSSHKey(ctx context.Context, name, publicKey string) (string, error) {
	existing, _, err := h.client.SSHKey.GetByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to look up ssh key %s: %w", name, err)
	}
	if existing != nil {
		return fmt.Sprintf("%d", existing.ID), nil
	}

	key, _, err := h.client.SSHKey.Create(ctx, hcloud.SSHKeyCreateOpts{
		Name:      name,
		PublicKey: publicKey,
		Labels:    h.labels,
	})
	if err != nil {
		// Lost a race against a concurrent create: adopt the winner.
		if isUniquenessError(err) {
			if existing, _, getErr := h.client.SSHKey.GetByName(ctx, name); getErr == nil && existing != nil {
				return fmt.Sprintf("%d", existing.ID), nil
			}
		}
		return "", fmt.Errorf("failed to create ssh key %s: %w", name, err)
	}
	return fmt.Sprintf("%d", key.ID), nil
}

// EnsureServer implements Provisioner.
func (h *Hetzner) EnsureServer(ctx context.Context, opts ServerOpts) (*Server, error) {
	if existing, err := h.DescribeServer(ctx, opts.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	createOpts, err := h.buildCreateOpts(ctx, opts)
	if err != nil {
		return nil, err
	}

	var result hcloud.ServerCreateResult
	err = retry.Do(ctx, func() error {
		res, _, createErr := h.client.Server.Create(ctx, createOpts)
		if createErr != nil {
			if isInvalidParameter(createErr) {
				return retry.Fatal(createErr)
			}
			return createErr
		}
		result = res
		return nil
	}, retry.WithMaxAttempts(3), retry.WithInitialDelay(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create server %s: %w", opts.Name, err)
	}

	if err := h.client.Action.WaitFor(ctx, result.Action); err != nil {
		return nil, fmt.Errorf("failed waiting for server %s creation: %w", opts.Name, err)
	}

	return h.DescribeServer(ctx, opts.Name)
}

func (h *Hetzner) buildCreateOpts(ctx context.Context, opts ServerOpts) (hcloud.ServerCreateOpts, error) {
	serverType, _, err := h.client.ServerType.Get(ctx, opts.ServerType)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to resolve server type %s: %w", opts.ServerType, err)
	}
	if serverType == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("server type not found: %s", opts.ServerType)
	}

	image, _, err := h.client.Image.GetByNameAndArchitecture(ctx, opts.Image, serverType.Architecture)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to resolve image %s: %w", opts.Image, err)
	}
	if image == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("image not found: %s", opts.Image)
	}

	location, _, err := h.client.Location.Get(ctx, opts.Location)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to resolve location %s: %w", opts.Location, err)
	}
	if location == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("location not found: %s", opts.Location)
	}

	var sshKeys []*hcloud.SSHKey
	if opts.SSHKeyName != "" {
		key, _, err := h.client.SSHKey.GetByName(ctx, opts.SSHKeyName)
		if err != nil {
			return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to resolve ssh key %s: %w", opts.SSHKeyName, err)
		}
		if key == nil {
			return hcloud.ServerCreateOpts{}, fmt.Errorf("ssh key not found: %s", opts.SSHKeyName)
		}
		sshKeys = append(sshKeys, key)
	}

	labels := make(map[string]string, len(h.labels)+len(opts.Labels))
	for k, v := range h.labels {
		labels[k] = v
	}
	for k, v := range opts.Labels {
		labels[k] = v
	}

	return hcloud.ServerCreateOpts{
		Name:       opts.Name,
		ServerType: serverType,
		Image:      image,
		Location:   location,
		SSHKeys:    sshKeys,
		Labels:     labels,
	}, nil
}

// DescribeServer implements Provisioner.
func (h *Hetzner) DescribeServer(ctx context.Context, name string) (*Server, error) {
	srv, _, err := h.client.Server.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up server %s: %w", name, err)
	}
	if srv == nil {
		return nil, nil
	}
	return describe(srv), nil
}

// DeleteServer implements Provisioner.
func (h *Hetzner) DeleteServer(ctx context.Context, name string) error {
	srv, _, err := h.client.Server.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up server %s: %w", name, err)
	}
	if srv == nil {
		return nil
	}
	if _, _, err := h.client.Server.DeleteWithResult(ctx, srv); err != nil {
		return fmt.Errorf("failed to delete server %s: %w", name, err)
	}
	return nil
}

func describe(srv *hcloud.Server) *Server {
	out := &Server{
		ID:     fmt.Sprintf("%d", srv.ID),
		Name:   srv.Name,
		Status: string(srv.Status),
	}
	if !srv.PublicNet.IPv4.IsUnspecified() {
		out.IPv4 = srv.PublicNet.IPv4.IP.String()
	}
	return out
}
