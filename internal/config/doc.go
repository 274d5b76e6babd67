// Package config loads and validates the hostlock target configuration.
//
// The configuration file (hostlock.yaml by default) describes the target
// host, the intended hardened SSH parameters, firewall allowances, and the
// optional cloud, DNS, and object-storage collaborator settings. Missing
// fields receive documented defaults; validation failures carry a specific
// remediation hint rather than a bare message.
package config
