// Package firestorex implements the registry contracts on Google Cloud
// Firestore. Records live in one collection keyed by identity, work-queue
// entries in a sibling collection, and the revision pointer in a single
// well-known document. Batched writes fan out per item so one failed write
// never aborts the rest of the batch.
package firestorex

import (
	"context"
	stderrors "errors"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/policies"
	"github.com/agentstation/policysync/pkg/registry"
)

const (
	defaultRecordsCollection = "policy_records"
	defaultQueueCollection   = "policy_work_queue"
	defaultSyncCollection    = "policy_sync"
	syncDocumentID           = "pointer"
)

// Registry persists records, queue entries, and the revision pointer in
// Firestore collections.
type Registry struct {
	client  *firestore.Client
	records string
	queue   string
	syncCol string
}

// Option configures a firestorex Registry.
type Option func(*Registry)

// WithCollections overrides the default collection names.
func WithCollections(records, queue, syncCol string) Option {
	return func(r *Registry) {
		if records != "" {
			r.records = records
		}
		if queue != "" {
			r.queue = queue
		}
		if syncCol != "" {
			r.syncCol = syncCol
		}
	}
}

// New returns a Registry backed by the given Firestore client.
func New(client *firestore.Client, opts ...Option) (*Registry, error) {
	if client == nil {
		return nil, &errors.ValidationError{
			Field:   "client",
			Message: "firestore client is required",
		}
	}

	r := &Registry{
		client:  client,
		records: defaultRecordsCollection,
		queue:   defaultQueueCollection,
		syncCol: defaultSyncCollection,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewClient creates a Firestore client for the given project.
func NewClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, &errors.ValidationError{
			Field:   "projectID",
			Message: "project ID is required",
		}
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.WrapResource("connect", "firestore", projectID, err)
	}
	return client, nil
}

// Compile-time interface checks.
var (
	_ registry.Registry  = (*Registry)(nil)
	_ registry.WorkQueue = (*Registry)(nil)
)

// Snapshot streams the records collection, optionally restricted to
// identities with the given prefix via an identity range query.
func (r *Registry) Snapshot(ctx context.Context, prefix string) (map[string]policies.RegistryRecord, error) {
	query := r.client.Collection(r.records).Query
	if prefix != "" {
		query = query.Where("Identity", ">=", prefix)
		if end := prefixSuccessor(prefix); end != "" {
			query = query.Where("Identity", "<", end)
		}
	}

	records := make(map[string]policies.RegistryRecord)
	it := query.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.WrapResource("list", "registry records", r.records, err)
		}

		var record policies.RegistryRecord
		if err := snap.DataTo(&record); err != nil {
			return nil, errors.WrapResource("decode", "registry record", snap.Ref.ID, err)
		}
		records[record.Identity] = record
	}
	return records, nil
}

// prefixSuccessor returns the smallest string greater than every string
// with the given prefix, for use as an exclusive range upper bound. It
// increments the last byte that can be incremented and truncates the rest.
// An empty result means no upper bound exists (every byte is 0xff).
func prefixSuccessor(prefix string) string {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] < 0xff {
			return prefix[:i] + string([]byte{prefix[i] + 1})
		}
	}
	return ""
}

// PutMany writes each record to its own document concurrently and collects
// per-item failures.
func (r *Registry) PutMany(ctx context.Context, records []policies.RegistryRecord) []registry.ItemError {
	return r.fanOut(len(records), func(i int) registry.ItemError {
		record := records[i]
		if _, err := r.client.Collection(r.records).Doc(record.Identity).Set(ctx, record); err != nil {
			return registry.ItemError{Identity: record.Identity, Err: err}
		}
		return registry.ItemError{}
	})
}

// DeleteMany removes record documents concurrently. Deleting an absent
// document is not an error.
func (r *Registry) DeleteMany(ctx context.Context, identities []string) []registry.ItemError {
	return r.fanOut(len(identities), func(i int) registry.ItemError {
		identity := identities[i]
		if _, err := r.client.Collection(r.records).Doc(identity).Delete(ctx); err != nil {
			if status.Code(err) == codes.NotFound {
				return registry.ItemError{}
			}
			return registry.ItemError{Identity: identity, Err: err}
		}
		return registry.ItemError{}
	})
}

// LastRevision reads the revision pointer document, returning "" when no
// sync has completed yet.
func (r *Registry) LastRevision(ctx context.Context) (string, error) {
	snap, err := r.client.Collection(r.syncCol).Doc(syncDocumentID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", nil
	}
	if err != nil {
		return "", errors.WrapResource("get", "sync pointer", syncDocumentID, err)
	}

	var meta policies.SyncMetadata
	if err := snap.DataTo(&meta); err != nil {
		return "", errors.WrapResource("decode", "sync pointer", syncDocumentID, err)
	}
	return meta.Revision, nil
}

// SetLastRevision replaces the pointer document with the run's metadata.
func (r *Registry) SetLastRevision(ctx context.Context, meta policies.SyncMetadata) error {
	if _, err := r.client.Collection(r.syncCol).Doc(syncDocumentID).Set(ctx, meta); err != nil {
		return errors.WrapResource("set", "sync pointer", syncDocumentID, err)
	}
	return nil
}

// EnqueueMany writes one queue document per work item, keyed by identity so
// a newer notification replaces any stale one for the same document.
func (r *Registry) EnqueueMany(ctx context.Context, items []policies.WorkItem) error {
	failures := r.fanOut(len(items), func(i int) registry.ItemError {
		item := items[i]
		if _, err := r.client.Collection(r.queue).Doc(item.Identity).Set(ctx, item); err != nil {
			return registry.ItemError{Identity: item.Identity, Err: err}
		}
		return registry.ItemError{}
	})
	if len(failures) > 0 {
		identities := make([]string, 0, len(failures))
		errs := make([]error, 0, len(failures))
		for _, f := range failures {
			identities = append(identities, f.Identity)
			errs = append(errs, f.Err)
		}
		return errors.NewPersistError("enqueue", identities, stderrors.Join(errs...))
	}
	return nil
}

// Dequeue removes the pending queue document for the identity, if any.
func (r *Registry) Dequeue(ctx context.Context, identity string) error {
	if _, err := r.client.Collection(r.queue).Doc(identity).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return errors.WrapResource("dequeue", "work item", identity, err)
	}
	return nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close() error {
	return r.client.Close()
}

// fanOut runs fn for each index concurrently and returns the non-empty
// item errors in index order.
func (r *Registry) fanOut(n int, fn func(i int) registry.ItemError) []registry.ItemError {
	if n == 0 {
		return nil
	}

	results := make([]registry.ItemError, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = fn(i)
		}()
	}
	wg.Wait()

	var failures []registry.ItemError
	for _, res := range results {
		if res.Err != nil {
			failures = append(failures, res)
		}
	}
	return failures
}
