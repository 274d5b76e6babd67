// Package ssh provides the remote shell collaborator used by the
// hardening steps and the connection negotiator.
//
// It wraps golang.org/x/crypto/ssh behind a small Dialer/Session boundary
// so that negotiation and step logic can be tested against mocks. A
// command's nonzero exit status is returned as data in Result, not as an
// error: idempotency guards such as "id -u deploy" legitimately exit
// nonzero.
//
// Host key verification is disabled by default: the tool's whole purpose
// is first contact with a freshly provisioned host whose key is unknown.
// Provide a HostKeyCallback to pin keys for persistent hosts.
package ssh
