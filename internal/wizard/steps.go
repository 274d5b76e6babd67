package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imamik/hostlock/internal/config"
	"github.com/imamik/hostlock/internal/platform/cloud"
	"github.com/imamik/hostlock/internal/retry"
)

// collectCredentials gathers secrets for the run. Tokens stay in memory;
// the session document records only that collection happened.
type collectCredentials struct{}

func (collectCredentials) Name() string   { return StepCollectCredentials }
func (collectCredentials) Critical() bool { return true }

func (collectCredentials) Run(c *Context) (map[string]any, error) {
	current := Credentials{
		CloudToken: os.Getenv("HCLOUD_TOKEN"),
		DNSToken:   os.Getenv("HOSTLOCK_DNS_TOKEN"),
	}

	creds, err := c.Deps.Credentials.Collect(c, current)
	if err != nil {
		return nil, fmt.Errorf("failed to collect credentials: %w", err)
	}
	if creds.CloudToken == "" && !c.Config.Cloud.DryRun {
		return nil, &config.Error{
			Field: "cloud token",
			Hint:  "set HCLOUD_TOKEN or enable cloud.dryRun",
		}
	}

	c.Creds = creds
	return map[string]any{
		"cloudTokenSet": creds.CloudToken != "",
		"dnsTokenSet":   creds.DNSToken != "",
		"email":         creds.Email,
	}, nil
}

// scaffoldProject writes the initial project skeleton.
type scaffoldProject struct{}

func (scaffoldProject) Name() string   { return StepScaffoldProject }
func (scaffoldProject) Critical() bool { return false }

func (scaffoldProject) Run(c *Context) (map[string]any, error) {
	files, err := c.Deps.Scaffolder.Scaffold(c, c.Config.ProjectPath, c.Config.Domain)
	if err != nil {
		return nil, fmt.Errorf("failed to scaffold project: %w", err)
	}
	return map[string]any{"files": files}, nil
}

// provisionServer ensures the cloud server exists, registered with the
// operator's initial SSH key, and records its address for every later
// step.
type provisionServer struct{}

func (provisionServer) Name() string   { return StepProvisionServer }
func (provisionServer) Critical() bool { return false }

func (provisionServer) Run(c *Context) (map[string]any, error) {
	cfg := c.Config

	pub, err := os.ReadFile(cfg.SSH.InitialKeyPath + ".pub")
	if err != nil {
		return nil, &config.Error{
			Field: "ssh.initialKeyPath",
			Hint:  fmt.Sprintf("public key %s.pub not readable: %v", cfg.SSH.InitialKeyPath, err),
		}
	}

	name := cfg.Cloud.ServerName
	if name == "" {
		name = "hostlock-server"
	}

	keyID, err := c.Deps.Cloud.EnsureSSHKey(c, name+"-key", strings.TrimSpace(string(pub)))
	if err != nil {
		return nil, fmt.Errorf("failed to register ssh key: %w", err)
	}

	srv, err := c.Deps.Cloud.EnsureServer(c, cloud.ServerOpts{
		Name:       name,
		ServerType: cfg.Cloud.ServerType,
		Image:      cfg.Cloud.Image,
		Location:   cfg.Cloud.Location,
		SSHKeyName: name + "-key",
		Labels:     map[string]string{"managed-by": "hostlock"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to provision server: %w", err)
	}

	if cfg.Host == "" {
		cfg.Host = srv.IPv4
	}
	return map[string]any{
		"serverID":  srv.ID,
		"ip":        srv.IPv4,
		"keyID":     keyID,
		"simulated": srv.Simulated,
	}, nil
}

// configureDNS points the project domain at the server.
type configureDNS struct{}

func (configureDNS) Name() string   { return StepConfigureDNS }
func (configureDNS) Critical() bool { return false }

func (configureDNS) Run(c *Context) (map[string]any, error) {
	if c.Config.Domain == "" {
		return nil, &config.Error{Field: "domain", Hint: "set domain to the site's DNS name"}
	}
	if c.Config.Host == "" {
		return nil, fmt.Errorf("no server address known; provisioning did not record one")
	}

	if err := c.Deps.DNS.EnsureRecord(c, c.Config.Domain, "A", c.Config.Host); err != nil {
		return nil, fmt.Errorf("failed to configure DNS: %w", err)
	}
	return map[string]any{"record": "A", "value": c.Config.Host}, nil
}

// awaitDNSPropagation polls until the domain resolves to the server.
type awaitDNSPropagation struct{}

func (awaitDNSPropagation) Name() string   { return StepAwaitDNSPropagation }
func (awaitDNSPropagation) Critical() bool { return false }

func (awaitDNSPropagation) Run(c *Context) (map[string]any, error) {
	domain := c.Config.Domain
	want := c.Config.Host

	err := retry.Do(c, func() error {
		addrs, err := c.Deps.DNS.Resolve(c, domain)
		if err != nil {
			return err
		}
		for _, addr := range addrs {
			if addr == want {
				return nil
			}
		}
		return fmt.Errorf("%s resolves to %v, waiting for %s", domain, addrs, want)
	}, retry.WithMaxAttempts(10), retry.WithInitialDelay(3*time.Second), retry.WithMaxDelay(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("DNS propagation not observed: %w", err)
	}
	return map[string]any{"resolved": want}, nil
}

// hardenServer runs the full hardening pipeline against the server.
type hardenServer struct{}

func (hardenServer) Name() string   { return StepHardenServer }
func (hardenServer) Critical() bool { return false }

func (hardenServer) Run(c *Context) (map[string]any, error) {
	if err := c.Deps.Hardener.Harden(c, c.Config); err != nil {
		return nil, fmt.Errorf("hardening failed: %w", err)
	}
	return map[string]any{"hardened": true, "port": c.Config.SSH.TargetPort}, nil
}

// issueCertificate obtains a TLS certificate for the domain.
type issueCertificate struct{}

func (issueCertificate) Name() string   { return StepIssueCertificate }
func (issueCertificate) Critical() bool { return false }

func (issueCertificate) Run(c *Context) (map[string]any, error) {
	email := c.Creds.Email
	if email == "" {
		// Resumed process: the in-memory credentials are gone, but the
		// non-secret contact address was recorded.
		if data := c.Session.StepResults[StepCollectCredentials]; data != nil {
			email, _ = data["email"].(string)
		}
	}

	cert, err := c.Deps.Certs.Issue(c, c.Config.Domain, email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue certificate: %w", err)
	}
	return map[string]any{
		"domain":    cert.Domain,
		"notAfter":  cert.NotAfter.UTC().Format(time.RFC3339),
		"simulated": cert.Simulated,
	}, nil
}

// deployApplication pushes the application to the server.
type deployApplication struct{}

func (deployApplication) Name() string   { return StepDeployApplication }
func (deployApplication) Critical() bool { return true }

func (deployApplication) Run(c *Context) (map[string]any, error) {
	res, err := c.Deps.Deployer.Deploy(c, c.Config.ProjectPath, c.Config.Host)
	if err != nil {
		return nil, fmt.Errorf("deployment failed: %w", err)
	}
	return map[string]any{"release": res.Release, "url": res.URL}, nil
}

// validateDeployment checks the deployed application end to end.
type validateDeployment struct{}

func (validateDeployment) Name() string   { return StepValidateDeployment }
func (validateDeployment) Critical() bool { return true }

func (validateDeployment) Run(c *Context) (map[string]any, error) {
	target := c.Config.Domain
	if target == "" {
		target = c.Config.Host
	}
	if err := c.Deps.Deployer.Validate(c, target); err != nil {
		return nil, fmt.Errorf("deployment validation failed: %w", err)
	}
	return map[string]any{"target": target}, nil
}

// writeAccessSummary writes the final access instructions into the
// project directory.
type writeAccessSummary struct{}

func (writeAccessSummary) Name() string   { return StepWriteAccessSummary }
func (writeAccessSummary) Critical() bool { return false }

func (writeAccessSummary) Run(c *Context) (map[string]any, error) {
	cfg := c.Config

	var b strings.Builder
	b.WriteString("# Access summary\n\n")
	fmt.Fprintf(&b, "- Host: %s\n", cfg.Host)
	if cfg.Domain != "" {
		fmt.Fprintf(&b, "- Domain: %s\n", cfg.Domain)
	}
	fmt.Fprintf(&b, "- SSH: ssh -p %d -i %s %s@%s\n",
		cfg.SSH.TargetPort, cfg.SSH.DeployKeyPath(), cfg.SSH.DeployUser, cfg.Host)
	b.WriteString("\nPassword logins and root SSH access are disabled. Keep the\ndeployment key safe; it is the only way in.\n")

	path := filepath.Join(cfg.ProjectPath, "ACCESS.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write access summary: %w", err)
	}
	return map[string]any{"path": path}, nil
}
