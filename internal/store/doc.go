// Package store persists audits, findings, plans, classifications, and the
// ownership cache in SQLite. It is the single shared mutable state between
// concurrently running audits; fingerprint uniqueness is enforced by the
// database at insert time, not by in-memory snapshots.
package store
