// Package memory provides in-memory implementations of the registry, work
// queue and object store collaborators. They back tests and embedders that
// do not need durable storage.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/agentstation/policysync/pkg/policies"
	"github.com/agentstation/policysync/pkg/registry"
)

// Compile-time interface checks to ensure proper implementation.
var (
	_ registry.Registry    = (*Registry)(nil)
	_ registry.WorkQueue   = (*Queue)(nil)
	_ registry.ObjectStore = (*Store)(nil)
)

// Registry is an in-memory system of record.
type Registry struct {
	mu       sync.RWMutex
	records  map[string]policies.RegistryRecord
	revision string
	metadata []policies.SyncMetadata
}

// NewRegistry creates an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]policies.RegistryRecord)}
}

// Snapshot returns a copy of the records, optionally prefix-filtered.
func (r *Registry) Snapshot(_ context.Context, prefix string) (map[string]policies.RegistryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]policies.RegistryRecord, len(r.records))
	for identity, record := range r.records {
		if prefix != "" && !strings.HasPrefix(identity, prefix) {
			continue
		}
		snapshot[identity] = record
	}
	return snapshot, nil
}

// PutMany writes the records. In-memory writes cannot fail.
func (r *Registry) PutMany(_ context.Context, records []policies.RegistryRecord) []registry.ItemError {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range records {
		r.records[record.Identity] = record
	}
	return nil
}

// DeleteMany removes the records. Absent identities are not an error.
func (r *Registry) DeleteMany(_ context.Context, identities []string) []registry.ItemError {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, identity := range identities {
		delete(r.records, identity)
	}
	return nil
}

// LastRevision returns the stored pointer, "" before the first sync.
func (r *Registry) LastRevision(_ context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision, nil
}

// SetLastRevision advances the pointer and appends the run marker.
func (r *Registry) SetLastRevision(_ context.Context, meta policies.SyncMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revision = meta.Revision
	r.metadata = append(r.metadata, meta)
	return nil
}

// Len returns the number of tracked records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Get returns the record for an identity.
func (r *Registry) Get(identity string) (policies.RegistryRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[identity]
	return record, ok
}

// Queue is an in-memory work queue keyed by identity.
type Queue struct {
	mu    sync.Mutex
	items map[string]policies.WorkItem
}

// NewQueue creates an empty in-memory work queue.
func NewQueue() *Queue {
	return &Queue{items: make(map[string]policies.WorkItem)}
}

// EnqueueMany appends the work items; a later item for the same identity
// replaces the pending one.
func (q *Queue) EnqueueMany(_ context.Context, items []policies.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range items {
		q.items[item.Identity] = item
	}
	return nil
}

// Dequeue drops the pending entry for an identity, if present.
func (q *Queue) Dequeue(_ context.Context, identity string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, identity)
	return nil
}

// Pending returns the queued item for an identity.
func (q *Queue) Pending(identity string) (policies.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[identity]
	return item, ok
}

// Len returns the number of pending work items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Store is an in-memory object store sink.
type Store struct {
	mu      sync.Mutex
	objects map[string]string
}

// NewStore creates an empty in-memory object store.
func NewStore() *Store {
	return &Store{objects: make(map[string]string)}
}

// Put stores a body keyed by identity.
func (s *Store) Put(_ context.Context, identity, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[identity] = body
	return nil
}

// Get returns the stored body for an identity.
func (s *Store) Get(identity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[identity]
	return body, ok
}
