// Package registry defines the collaborator interfaces for the persisted
// registry of policy documents, the downstream work queue, and the object
// store sink. Implementations live under internal/registry and
// internal/objectstore; the sync core depends only on these contracts.
package registry

import (
	"context"

	"github.com/agentstation/policysync/pkg/policies"
)

// ItemError reports the failure of a single write or delete within a batch.
type ItemError struct {
	Identity string
	Err      error
}

// Registry is the key-value system of record, exactly one record per
// identity. Batched operations report per-item failures and never abort the
// remainder of the batch; already-written items stay written.
type Registry interface {
	// Snapshot returns the last-known records keyed by identity, optionally
	// restricted to identities with the given prefix.
	Snapshot(ctx context.Context, prefix string) (map[string]policies.RegistryRecord, error)

	// PutMany writes the records (full replace per identity) and returns
	// per-item failures, if any.
	PutMany(ctx context.Context, records []policies.RegistryRecord) []ItemError

	// DeleteMany removes the records for the given identities and returns
	// per-item failures, if any. Deleting an absent identity is not an error.
	DeleteMany(ctx context.Context, identities []string) []ItemError

	// LastRevision returns the revision pointer of the last successful sync,
	// or "" when no sync has completed yet.
	LastRevision(ctx context.Context) (string, error)

	// SetLastRevision advances the revision pointer and records the run's
	// sync metadata marker.
	SetLastRevision(ctx context.Context, meta policies.SyncMetadata) error
}

// WorkQueue notifies a downstream processing pipeline of added and updated
// records. Entries are consumed and deleted externally.
type WorkQueue interface {
	// EnqueueMany appends one work item per added or updated record.
	EnqueueMany(ctx context.Context, items []policies.WorkItem) error

	// Dequeue drops any pending work-queue entry for the identity.
	// Dropping an absent entry is not an error.
	Dequeue(ctx context.Context, identity string) error
}

// ObjectStore receives the final document bodies keyed by identity.
// It is a pure sink downstream of the sync core.
type ObjectStore interface {
	Put(ctx context.Context, identity, body string) error
}
