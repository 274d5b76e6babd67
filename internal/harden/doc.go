// Package harden drives the fixed hardening pipeline for a target host.
//
// The pipeline is an ordered list of idempotent steps, each persisting a
// completion record before the next one starts. Resuming an interrupted
// run re-walks the list and executes only what is not yet done; steps
// that partially applied on a previous run converge instead of failing,
// because every remote mutation is guarded by an existence check.
//
// The most delicate ordering constraint is access narrowing: the step
// that disables password logins and moves the SSH port refuses to run
// until the replacement access path (deployment user, deployed key) has
// been proven reachable, so no step sequence can lock the operator out
// of a healthy host.
package harden
