package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the pre-hardening SSH port every fresh host listens on.
const DefaultPort = 22

// DefaultFileName is the config file looked up when no path is given.
const DefaultFileName = "hostlock.yaml"

// Error is a configuration error with a remediation hint. Retrying an
// operation cannot fix a configuration error, so callers surface it
// immediately instead of feeding it into the retry loop.
type Error struct {
	Field string
	Hint  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s (%s)", e.Field, e.Hint)
}

// SSH describes the intended hardened SSH parameters for the target host.
type SSH struct {
	// OriginalUser is the OS default user present on a fresh host.
	OriginalUser string `yaml:"originalUser"`
	// DeployUser is the dedicated deployment user created during hardening.
	DeployUser string `yaml:"deployUser"`
	// TargetPort is the hardened SSH port. Must differ from 22.
	TargetPort int `yaml:"targetPort"`
	// InitialKeyPath is the operator's existing private key that grants
	// access to the fresh host (e.g. the key registered with the cloud
	// provider at server creation).
	InitialKeyPath string `yaml:"initialKeyPath"`
	// KeyDir is where the generated deployment keypair is written.
	KeyDir string `yaml:"keyDir"`
}

// DeployKeyPath returns the path of the generated deployment private key.
func (s SSH) DeployKeyPath() string {
	return filepath.Join(s.KeyDir, "deploy_ed25519")
}

// DeployPublicKeyPath returns the path of the generated deployment public key.
func (s SSH) DeployPublicKeyPath() string {
	return s.DeployKeyPath() + ".pub"
}

// Firewall describes the inbound allowances applied during hardening.
// The hardened SSH port is always allowed regardless of this list.
type Firewall struct {
	AllowPorts []int `yaml:"allowPorts"`
}

// Timeouts bounds every remote connection attempt and collaborator call.
type Timeouts struct {
	Connect time.Duration `yaml:"connect"`
	Command time.Duration `yaml:"command"`
}

// Cloud describes the server provisioned by the wizard.
type Cloud struct {
	ServerName string `yaml:"serverName"`
	ServerType string `yaml:"serverType"`
	Image      string `yaml:"image"`
	Location   string `yaml:"location"`
	// DryRun short-circuits all cloud side effects and returns
	// clearly-labeled simulated results.
	DryRun bool `yaml:"dryRun"`
}

// ObjectStorage configures the optional diagnostic bundle upload target.
type ObjectStorage struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	Bucket   string `yaml:"bucket"`
}

// Config is the full hostlock configuration document.
type Config struct {
	Host          string        `yaml:"host"`
	Domain        string        `yaml:"domain"`
	ProjectPath   string        `yaml:"projectPath"`
	SSH           SSH           `yaml:"ssh"`
	Firewall      Firewall      `yaml:"firewall"`
	Timeouts      Timeouts      `yaml:"timeouts"`
	Cloud         Cloud         `yaml:"cloud"`
	ObjectStorage ObjectStorage `yaml:"objectStorage"`
}

// Load reads the configuration file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SSH.OriginalUser == "" {
		c.SSH.OriginalUser = "root"
	}
	if c.SSH.DeployUser == "" {
		c.SSH.DeployUser = "deploy"
	}
	if c.SSH.TargetPort == 0 {
		c.SSH.TargetPort = 2222
	}
	if c.SSH.KeyDir == "" {
		c.SSH.KeyDir = ".hostlock/keys"
	}
	if len(c.Firewall.AllowPorts) == 0 {
		c.Firewall.AllowPorts = []int{80, 443}
	}
	if c.Timeouts.Connect == 0 {
		c.Timeouts.Connect = 10 * time.Second
	}
	if c.Timeouts.Command == 0 {
		c.Timeouts.Command = 2 * time.Minute
	}
	if c.Cloud.ServerType == "" {
		c.Cloud.ServerType = "cx22"
	}
	if c.Cloud.Image == "" {
		c.Cloud.Image = "ubuntu-24.04"
	}
	if c.Cloud.Location == "" {
		c.Cloud.Location = "nbg1"
	}
	if c.ProjectPath == "" {
		c.ProjectPath = "."
	}
}

// Validate checks the configuration and returns an *Error with a
// remediation hint on the first problem found.
func (c *Config) Validate() error {
	if c.Host == "" && c.Cloud.ServerName == "" && !c.Cloud.DryRun {
		return &Error{Field: "host", Hint: "set host to the target address, or cloud.serverName to provision one"}
	}
	if c.SSH.TargetPort == DefaultPort {
		return &Error{Field: "ssh.targetPort", Hint: "hardened port must differ from 22; pick an unused port such as 2222"}
	}
	if c.SSH.TargetPort < 1 || c.SSH.TargetPort > 65535 {
		return &Error{Field: "ssh.targetPort", Hint: "port must be between 1 and 65535"}
	}
	if c.SSH.OriginalUser == c.SSH.DeployUser {
		return &Error{Field: "ssh.deployUser", Hint: "deployment user must differ from the original OS user"}
	}
	for _, p := range c.Firewall.AllowPorts {
		if p < 1 || p > 65535 {
			return &Error{Field: "firewall.allowPorts", Hint: fmt.Sprintf("port %d is out of range", p)}
		}
	}
	return nil
}

// Snapshot returns the fields worth recording in the persisted host state
// so a post-mortem can see what the run was targeting.
func (c *Config) Snapshot() map[string]string {
	return map[string]string{
		"host":         c.Host,
		"originalUser": c.SSH.OriginalUser,
		"deployUser":   c.SSH.DeployUser,
		"targetPort":   fmt.Sprintf("%d", c.SSH.TargetPort),
	}
}
