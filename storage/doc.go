// Package storage defines the record store every artifact persists
// through: a kind-namespaced wrapper over a pluggable expiring
// key/value backend.
//
// Backends provide per-key atomicity for the two destructive reads,
// GetDel and Consume. Single-use enforcement for authorization codes
// and refresh-token rotation are built on that guarantee. The memory
// subpackage offers an in-process backend for development and tests,
// the valkey subpackage a shared backend for multi-instance
// deployments.
package storage
