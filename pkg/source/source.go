// Package source defines the collaborator interface for the remote
// source-of-truth repository holding the policy documents. Implementations
// live under internal/sources; the sync core depends only on this contract.
package source

import "context"

// DiffStatus classifies one entry of a revision-to-revision diff.
type DiffStatus string

const (
	// DiffAdded marks a path that exists only in the newer revision.
	DiffAdded DiffStatus = "added"
	// DiffModified marks a path whose content changed between revisions.
	DiffModified DiffStatus = "modified"
	// DiffRemoved marks a path that exists only in the older revision.
	DiffRemoved DiffStatus = "removed"
	// DiffRenamed marks a path that moved; PreviousPath carries the old location.
	DiffRenamed DiffStatus = "renamed"
)

// DiffEntry is one changed path between two revisions.
type DiffEntry struct {
	Path         string
	Status       DiffStatus
	VersionToken string
	// PreviousPath is the pre-rename location. Set only for DiffRenamed.
	PreviousPath string
}

// EntryKind distinguishes files from directories in a tree listing.
type EntryKind string

const (
	// KindFile is a regular file entry.
	KindFile EntryKind = "file"
	// KindDir is a directory entry.
	KindDir EntryKind = "dir"
)

// TreeEntry is one path of a full-tree enumeration at a single revision.
type TreeEntry struct {
	Path         string
	Kind         EntryKind
	VersionToken string
}

// Repository is the remote source of truth for policy documents.
//
// Implementations must surface distinguishable failures through the
// pkg/errors sentinels: ErrNotFound for missing revisions or blobs,
// ErrRateLimited when throttled, and ErrSourceUnavailable for transient
// upstream failures. Retries, if any, belong to the implementation;
// the core only isolates failures, it never retries.
type Repository interface {
	// LatestRevision resolves a symbolic ref (e.g. a branch name) to an
	// opaque revision pointer.
	LatestRevision(ctx context.Context, ref string) (string, error)

	// Diff lists the paths changed between two revisions.
	Diff(ctx context.Context, from, to string) ([]DiffEntry, error)

	// Tree enumerates the document tree at a revision.
	Tree(ctx context.Context, revision string, recursive bool) ([]TreeEntry, error)

	// Content fetches the raw bytes addressed by a version token.
	Content(ctx context.Context, versionToken string) ([]byte, error)
}
