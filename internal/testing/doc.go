// Package testing provides shared test doubles and helpers.
//
// FakeHost simulates a remote host's SSH surface deterministically: which
// (user, port) combinations currently grant access, and what each command
// returns. MockDialer/MockSession are strict testify mocks for tests that
// assert exact call sequences.
package testing
