package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/imamik/hostlock/internal/observe"
	"github.com/imamik/hostlock/internal/wizard"
)

// The wizard's outer collaborators are deliberately thin: DNS, SSL, and
// deployment tooling vary too much between projects to automate here, so
// these implementations cover the narrow slice the flow needs and say
// plainly what the operator still has to do.

// composeScaffolder writes a minimal compose-based project skeleton.
type composeScaffolder struct{}

func (composeScaffolder) Scaffold(_ context.Context, projectPath, domain string) ([]string, error) {
	if err := os.MkdirAll(projectPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project dir: %w", err)
	}

	files := map[string]string{
		"compose.yaml": fmt.Sprintf(`services:
  app:
    build: .
    restart: unless-stopped
    ports:
      - "80:8080"
    environment:
      - DOMAIN=%s
`, domain),
		".env.example": "# Copy to .env and fill in.\nDOMAIN=" + domain + "\n",
	}

	var written []string
	for name, content := range files {
		path := filepath.Join(projectPath, name)
		if _, err := os.Stat(path); err == nil {
			continue // never clobber an existing project file
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // Project files, not secrets.
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// manualDNS tells the operator which record to create and verifies it
// with real lookups. Automating registrar APIs is out of scope.
type manualDNS struct {
	obs observe.Observer
}

func (m manualDNS) EnsureRecord(_ context.Context, domain, recordType, value string) error {
	m.obs.Printf("create a DNS %s record: %s -> %s (propagation is checked next)", recordType, domain, value)
	return nil
}

func (m manualDNS) Resolve(ctx context.Context, domain string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, domain)
}

// stubCertIssuer records that certificate issuance is still manual. The
// result is labeled simulated so nothing downstream mistakes it for a
// real certificate.
type stubCertIssuer struct {
	obs observe.Observer
}

func (s stubCertIssuer) Issue(_ context.Context, domain, email string) (wizard.CertInfo, error) {
	s.obs.Printf("certificate issuance for %s is not automated; run certbot on the host (contact: %s)", domain, email)
	return wizard.CertInfo{
		Domain:    domain,
		NotAfter:  time.Now().Add(90 * 24 * time.Hour),
		Simulated: true,
	}, nil
}

// probeDeployer leaves deployment to the project's own tooling and
// validates the result with an HTTP health probe.
type probeDeployer struct {
	obs observe.Observer

	// client is swapped in tests.
	client *http.Client
}

func (p probeDeployer) Deploy(_ context.Context, projectPath, host string) (wizard.DeployResult, error) {
	p.obs.Printf("deploy the project from %s to %s with your deployment tooling, then continue", projectPath, host)
	return wizard.DeployResult{Release: "manual", URL: "http://" + host}, nil
}

func (p probeDeployer) Validate(ctx context.Context, target string) error {
	client := p.client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	for _, url := range []string{"https://" + target, "http://" + target} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode < 500 {
			return nil
		}
	}
	return fmt.Errorf("no healthy HTTP response from %s", target)
}
