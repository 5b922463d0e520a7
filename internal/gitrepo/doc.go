// Package gitrepo implements the repository capability consumed by the audit
// pipeline: cloning or updating a repository at a reference, scanning its files
// with rough token estimates, computing file-level diffs between commits, and
// reading file contents with repository-root containment checks.
package gitrepo
