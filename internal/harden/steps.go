package harden

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/imamik/hostlock/internal/keygen"
	"github.com/imamik/hostlock/internal/negotiate"
	sshx "github.com/imamik/hostlock/internal/platform/ssh"
	"github.com/imamik/hostlock/internal/retry"
)

// generateKeyPair creates the local deployment keypair. Purely local; an
// existing, parseable keypair on disk is reused so resumed runs keep the
// key already deployed to the host.
type generateKeyPair struct{}

func (generateKeyPair) Name() string   { return StepGenerateKeyPair }
func (generateKeyPair) Critical() bool { return true }

func (generateKeyPair) Run(c *Context) (map[string]any, error) {
	privPath := c.Config.SSH.DeployKeyPath()
	pubPath := c.Config.SSH.DeployPublicKeyPath()

	if _, err := os.Stat(privPath); err == nil {
		if _, fingerprint, err := keygen.LoadPublicKey(pubPath); err == nil {
			c.Observer.Printf("reusing existing deployment key %s", privPath)
			return map[string]any{
				"publicKeyPath": pubPath,
				"fingerprint":   fingerprint,
				"reused":        true,
			}, nil
		}
	}

	comment := fmt.Sprintf("%s@%s", c.Config.SSH.DeployUser, c.Config.Host)
	kp, err := keygen.GenerateEd25519(comment)
	if err != nil {
		return nil, err
	}
	if err := keygen.WriteKeyPair(kp, privPath); err != nil {
		return nil, err
	}
	return map[string]any{
		"publicKeyPath": pubPath,
		"fingerprint":   kp.Fingerprint,
	}, nil
}

// deployPublicKey installs the generated public key into the active
// session user's authorized_keys. The append is guarded by an exact-line
// grep so re-runs never duplicate the entry.
type deployPublicKey struct{}

func (deployPublicKey) Name() string   { return StepDeployPublicKey }
func (deployPublicKey) Critical() bool { return true }

func (deployPublicKey) Run(c *Context) (map[string]any, error) {
	line, fingerprint, err := keygen.LoadPublicKey(c.Config.SSH.DeployPublicKeyPath())
	if err != nil {
		return nil, err
	}

	_, sc, err := c.Session()
	if err != nil {
		return nil, err
	}

	quoted := shellQuote(line)
	script := strings.Join([]string{
		`install -d -m 700 "$HOME/.ssh"`,
		`touch "$HOME/.ssh/authorized_keys"`,
		fmt.Sprintf(`grep -qxF %s "$HOME/.ssh/authorized_keys" || printf '%%s\n' %s >> "$HOME/.ssh/authorized_keys"`, quoted, quoted),
		`chmod 600 "$HOME/.ssh/authorized_keys"`,
	}, "\n")

	if err := c.RunUserScript(script); err != nil {
		return nil, fmt.Errorf("failed to deploy public key: %w", err)
	}
	return map[string]any{
		"fingerprint": fingerprint,
		"user":        sc.Username,
	}, nil
}

// createDeploymentUser creates the dedicated deployment user with the
// generated key and passwordless sudo, then proves the new account is
// actually reachable before recording completion. Access narrowing later
// depends on that proof.
type createDeploymentUser struct{}

func (createDeploymentUser) Name() string   { return StepCreateDeploymentUser }
func (createDeploymentUser) Critical() bool { return true }

func (createDeploymentUser) Run(c *Context) (map[string]any, error) {
	line, _, err := keygen.LoadPublicKey(c.Config.SSH.DeployPublicKeyPath())
	if err != nil {
		return nil, err
	}

	_, sc, err := c.Session()
	if err != nil {
		return nil, err
	}

	user := c.Config.SSH.DeployUser
	home := "/home/" + user
	script := strings.Join([]string{
		fmt.Sprintf(`id -u %s >/dev/null 2>&1 || useradd -m -s /bin/bash %s`, shellQuote(user), shellQuote(user)),
		fmt.Sprintf(`install -d -m 700 %s/.ssh`, home),
		fmt.Sprintf(`printf '%%s\n' %s > %s/.ssh/authorized_keys`, shellQuote(line), home),
		fmt.Sprintf(`chmod 600 %s/.ssh/authorized_keys`, home),
		fmt.Sprintf(`chown -R %s:%s %s/.ssh`, shellQuote(user), shellQuote(user), home),
		fmt.Sprintf(`printf '%%s\n' '%s ALL=(ALL) NOPASSWD:ALL' > /etc/sudoers.d/90-%s`, user, user),
		fmt.Sprintf(`chmod 440 /etc/sudoers.d/90-%s`, user),
	}, "\n")

	if err := c.RunScript(script); err != nil {
		return nil, fmt.Errorf("failed to create deployment user: %w", err)
	}

	// Prove the account works before recording completion: a later step
	// will narrow access on the assumption that this path is live.
	probe, err := c.Negotiator.Attempt(c, c.State.Host, negotiate.Scenario{
		Username:       user,
		Port:           sc.Port,
		PrivateKeyPath: c.Config.SSH.DeployKeyPath(),
	})
	if err != nil {
		return nil, fmt.Errorf("deployment user created but not reachable: %w", err)
	}
	_ = probe.Close()

	return map[string]any{
		"username": user,
		"verified": true,
	}, nil
}

// applySSHHardening narrows SSH access: moves the daemon to the target
// port, disables password and root logins, and restricts logins to the
// deployment user. It refuses to run until the replacement access path
// has been proven, re-proves it immediately before changing anything,
// and completes only once the hardened path has been verified and
// persisted.
type applySSHHardening struct{}

func (applySSHHardening) Name() string   { return StepApplySSHHardening }
func (applySSHHardening) Critical() bool { return true }

func (s applySSHHardening) Run(c *Context) (map[string]any, error) {
	st := c.State
	if !st.StepCompleted(StepDeployPublicKey) || !st.StepCompleted(StepCreateDeploymentUser) {
		return nil, fmt.Errorf("refusing to narrow access: key deployment and user creation must complete first")
	}

	_, sc, err := c.Session()
	if err != nil {
		return nil, err
	}

	deploy := negotiate.Scenario{
		Username:       c.Config.SSH.DeployUser,
		Port:           sc.Port,
		PrivateKeyPath: c.Config.SSH.DeployKeyPath(),
	}
	probe, err := c.Negotiator.Attempt(c, st.Host, deploy)
	if err != nil {
		return nil, fmt.Errorf("refusing to narrow access: deployment path not reachable: %w", err)
	}
	_ = probe.Close()

	if err := c.RunScript(s.script(c)); err != nil {
		return nil, fmt.Errorf("failed to apply SSH hardening: %w", err)
	}

	// The old access path is gone once sshd restarts; drop the session
	// before verifying the hardened one.
	c.DropSession()

	target := negotiate.Scenario{
		Username:       c.Config.SSH.DeployUser,
		Port:           c.Config.SSH.TargetPort,
		PrivateKeyPath: c.Config.SSH.DeployKeyPath(),
	}
	var sess sshx.Session
	err = retry.Do(c, func() error {
		var attemptErr error
		sess, attemptErr = c.Negotiator.VerifyAndPersist(c, st, target)
		return attemptErr
	}, retry.WithMaxAttempts(5), retry.WithInitialDelay(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("hardened SSH port not reachable after restart: %w", err)
	}
	c.Adopt(sess, target)

	return map[string]any{
		"port": c.Config.SSH.TargetPort,
		"user": c.Config.SSH.DeployUser,
	}, nil
}

func (applySSHHardening) script(c *Context) string {
	port := c.Config.SSH.TargetPort
	lines := []string{
		fmt.Sprintf("Port %d", port),
		"PasswordAuthentication no",
		"PermitRootLogin no",
		"PubkeyAuthentication yes",
		"MaxAuthTries 3",
		"AllowUsers " + c.Config.SSH.DeployUser,
	}
	quoted := make([]string, len(lines))
	for i, l := range lines {
		quoted[i] = shellQuote(l)
	}
	return strings.Join([]string{
		`install -d -m 755 /etc/ssh/sshd_config.d`,
		fmt.Sprintf(`printf '%%s\n' %s > /etc/ssh/sshd_config.d/90-hostlock.conf`, strings.Join(quoted, " ")),
		// Pre-open the hardened port before the daemon moves, in case the
		// firewall is already enforcing.
		fmt.Sprintf(`command -v ufw >/dev/null 2>&1 && ufw allow %d/tcp || true`, port),
		`sshd -t`,
		`systemctl restart ssh 2>/dev/null || systemctl restart sshd`,
	}, "\n")
}

// configureFirewall applies a default-deny inbound policy, allowing only
// the hardened SSH port and the configured service ports.
type configureFirewall struct{}

func (configureFirewall) Name() string   { return StepConfigureFirewall }
func (configureFirewall) Critical() bool { return false }

func (configureFirewall) Run(c *Context) (map[string]any, error) {
	allowed := append([]int{c.Config.SSH.TargetPort}, c.Config.Firewall.AllowPorts...)

	lines := []string{
		`export DEBIAN_FRONTEND=noninteractive`,
		`command -v ufw >/dev/null 2>&1 || apt-get install -y -qq ufw`,
		`ufw default deny incoming`,
		`ufw default allow outgoing`,
	}
	for _, port := range allowed {
		lines = append(lines, fmt.Sprintf(`ufw allow %d/tcp`, port))
	}
	lines = append(lines, `ufw --force enable`)

	if err := c.RunScript(strings.Join(lines, "\n")); err != nil {
		return nil, fmt.Errorf("failed to configure firewall: %w", err)
	}
	return map[string]any{"allowedPorts": allowed}, nil
}

// configureIntrusionPrevention installs fail2ban with an SSH jail on the
// hardened port.
type configureIntrusionPrevention struct{}

func (configureIntrusionPrevention) Name() string   { return StepConfigureIntrusionPrevention }
func (configureIntrusionPrevention) Critical() bool { return false }

func (configureIntrusionPrevention) Run(c *Context) (map[string]any, error) {
	jail := []string{
		"[sshd]",
		"enabled = true",
		fmt.Sprintf("port = %d", c.Config.SSH.TargetPort),
		"maxretry = 5",
		"bantime = 1h",
		"findtime = 10m",
	}
	quoted := make([]string, len(jail))
	for i, l := range jail {
		quoted[i] = shellQuote(l)
	}

	script := strings.Join([]string{
		`export DEBIAN_FRONTEND=noninteractive`,
		`command -v fail2ban-server >/dev/null 2>&1 || apt-get install -y -qq fail2ban`,
		fmt.Sprintf(`printf '%%s\n' %s > /etc/fail2ban/jail.d/hostlock.local`, strings.Join(quoted, " ")),
		`systemctl enable fail2ban`,
		`systemctl restart fail2ban`,
	}, "\n")

	if err := c.RunScript(script); err != nil {
		return nil, fmt.Errorf("failed to configure intrusion prevention: %w", err)
	}
	return map[string]any{"jail": "sshd", "port": c.Config.SSH.TargetPort}, nil
}

// enableAutoUpdates turns on unattended security updates.
type enableAutoUpdates struct{}

func (enableAutoUpdates) Name() string   { return StepEnableAutoUpdates }
func (enableAutoUpdates) Critical() bool { return false }

func (enableAutoUpdates) Run(c *Context) (map[string]any, error) {
	conf := []string{
		`APT::Periodic::Update-Package-Lists "1";`,
		`APT::Periodic::Unattended-Upgrade "1";`,
	}
	quoted := make([]string, len(conf))
	for i, l := range conf {
		quoted[i] = shellQuote(l)
	}

	script := strings.Join([]string{
		`export DEBIAN_FRONTEND=noninteractive`,
		`dpkg -s unattended-upgrades >/dev/null 2>&1 || apt-get install -y -qq unattended-upgrades`,
		fmt.Sprintf(`printf '%%s\n' %s > /etc/apt/apt.conf.d/20auto-upgrades`, strings.Join(quoted, " ")),
		`systemctl enable unattended-upgrades 2>/dev/null || true`,
	}, "\n")

	if err := c.RunScript(script); err != nil {
		return nil, fmt.Errorf("failed to enable automatic updates: %w", err)
	}
	return map[string]any{"enabled": true}, nil
}
