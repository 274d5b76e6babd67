package cloud

import (
	"context"
	"fmt"
	"sync"
)

// DryRun is a Provisioner that performs no side effects. Every result is
// labeled simulated; servers "created" during the run are remembered so
// Describe and Delete behave consistently within it.
type DryRun struct {
	mu      sync.Mutex
	servers map[string]*Server
}

// NewDryRun creates an empty dry-run provisioner.
func NewDryRun() *DryRun {
	return &DryRun{servers: make(map[string]*Server)}
}

// EnsureSSHKey implements Provisioner.
func (d *DryRun) EnsureSSHKey(_ context.Context, name, _ string) (string, error) {
	return "simulated-key-" + name, nil
}

// EnsureServer implements Provisioner.
func (d *DryRun) EnsureServer(_ context.Context, opts ServerOpts) (*Server, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if srv, ok := d.servers[opts.Name]; ok {
		return srv, nil
	}
	srv := &Server{
		ID:        fmt.Sprintf("simulated-%d", len(d.servers)+1),
		Name:      opts.Name,
		IPv4:      "192.0.2.1",
		Status:    "running (simulated)",
		Simulated: true,
	}
	d.servers[opts.Name] = srv
	return srv, nil
}

// DescribeServer implements Provisioner.
func (d *DryRun) DescribeServer(_ context.Context, name string) (*Server, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.servers[name], nil
}

// DeleteServer implements Provisioner.
func (d *DryRun) DeleteServer(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.servers, name)
	return nil
}
