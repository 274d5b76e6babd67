// Package state persists provisioning progress as local JSON documents.
//
// Two document kinds exist: Session (one per wizard run) and HostState
// (one per target host). Every state transition is written durably before
// the caller proceeds, because the next remote action may be destructive.
// Saves are atomic (write-to-temp-then-rename) so a crash mid-write can
// never leave a half-written document behind.
package state
