// Package models defines the persistent and in-memory records shared across the
// audit pipeline: audits, findings, severities, plan entries, diff results, and
// the deterministic finding fingerprint.
package models
