package wizard

import (
	"context"

	"github.com/charmbracelet/huh"
)

// Static is a CredentialSource returning fixed credentials, merged over
// whatever is already known. Used by tests and non-interactive runs.
type Static struct {
	Creds Credentials
}

// Collect implements CredentialSource.
func (s Static) Collect(_ context.Context, current Credentials) (Credentials, error) {
	out := current
	if s.Creds.CloudToken != "" {
		out.CloudToken = s.Creds.CloudToken
	}
	if s.Creds.DNSToken != "" {
		out.DNSToken = s.Creds.DNSToken
	}
	if s.Creds.Email != "" {
		out.Email = s.Creds.Email
	}
	return out, nil
}

// Interactive prompts for whatever credentials are still missing.
// Already-known values (environment, flags) are not asked for again.
type Interactive struct{}

// Collect implements CredentialSource.
func (Interactive) Collect(ctx context.Context, current Credentials) (Credentials, error) {
	out := current

	var fields []huh.Field
	if out.CloudToken == "" {
		fields = append(fields, huh.NewInput().
			Title("Cloud API token").
			Description("Hetzner Cloud token with read/write access").
			EchoMode(huh.EchoModePassword).
			Value(&out.CloudToken))
	}
	if out.DNSToken == "" {
		fields = append(fields, huh.NewInput().
			Title("DNS API token").
			Description("leave empty to manage DNS manually").
			EchoMode(huh.EchoModePassword).
			Value(&out.DNSToken))
	}
	if out.Email == "" {
		fields = append(fields, huh.NewInput().
			Title("Contact email").
			Description("used for certificate issuance notices").
			Value(&out.Email))
	}
	if len(fields) == 0 {
		return out, nil
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.RunWithContext(ctx); err != nil {
		return Credentials{}, err
	}
	return out, nil
}
