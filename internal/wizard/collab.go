package wizard

import (
	"context"
	"time"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/platform/cloud"
	"github.com/imamik/hostlock/internal/state"
)

// Credentials holds the secrets collected at the start of a run. They
// live in memory for the duration of the process and are never written
// to the session document.
type Credentials struct {
	CloudToken string
	DNSToken   string
	Email      string
}

// CredentialSource collects credentials from the operator. current holds
// whatever is already known (environment variables, flags) so sources
// only ask for what is missing.
type CredentialSource interface {
	Collect(ctx context.Context, current Credentials) (Credentials, error)
}

// Scaffolder writes the initial project skeleton. Returns the paths it
// created.
type Scaffolder interface {
	Scaffold(ctx context.Context, projectPath, domain string) ([]string, error)
}

// DNSProvider manages DNS records for the project domain.
type DNSProvider interface {
	// EnsureRecord creates or updates a record. Idempotent.
	EnsureRecord(ctx context.Context, domain, recordType, value string) error

	// Resolve returns the currently published addresses for the domain.
	Resolve(ctx context.Context, domain string) ([]string, error)
}

// CertInfo describes an issued certificate.
type CertInfo struct {
	Domain    string
	NotAfter  time.Time
	Simulated bool
}

// CertIssuer obtains a TLS certificate for the domain.
type CertIssuer interface {
	Issue(ctx context.Context, domain, email string) (CertInfo, error)
}

// DeployResult describes one application deployment.
type DeployResult struct {
	Release string
	URL     string
}

// Deployer pushes the application to the host and validates the result.
type Deployer interface {
	Deploy(ctx context.Context, projectPath, host string) (DeployResult, error)

	// Validate checks the deployed application end to end (e.g. an HTTP
	// health probe against the domain).
	Validate(ctx context.Context, domain string) error
}

// HostHardener runs the hardening pipeline against the target host. The
// CLI wires the real pipeline; tests wire a fake.
type HostHardener interface {
	Harden(ctx context.Context, cfg *config.Config) error
}

// Deps bundles the collaborators a wizard run needs.
type Deps struct {
	Credentials CredentialSource
	Scaffolder  Scaffolder
	Cloud       cloud.Provisioner
	DNS         DNSProvider
	Certs       CertIssuer
	Deployer    Deployer
	Hardener    HostHardener
}

// Context carries one wizard run: the run context, configuration, the
// persisted session, collaborators, and the in-memory credentials.
type Context struct {
	context.Context

	Config   *config.Config
	Session  *state.Session
	Observer observe.Observer
	Deps     Deps

	// Creds is populated by collectCredentials and read by later steps.
	Creds Credentials
}

// NewContext creates a wizard run context.
func NewContext(ctx context.Context, cfg *config.Config, sess *state.Session, deps Deps, obs observe.Observer) *Context {
	if obs == nil {
		obs = observe.Noop{}
	}
	return &Context{
		Context:  ctx,
		Config:   cfg,
		Session:  sess,
		Observer: obs,
		Deps:     deps,
	}
}
