// Package reconciler classifies the current document map against the
// registry's last-known snapshot into an idempotent add/update/delete plan
// and persists it with partial-failure isolation. Re-running with the same
// inputs reproduces identical classifications for anything not yet applied
// and a no-op for anything already applied.
package reconciler

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"github.com/agentstation/utc"

	"github.com/agentstation/policysync/pkg/diagnostics"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/logging"
	"github.com/agentstation/policysync/pkg/policies"
	"github.com/agentstation/policysync/pkg/registry"
)

// Reconciler classifies and persists document changes against the registry.
type Reconciler struct {
	registry  registry.Registry
	queue     registry.WorkQueue
	batchSize int
	reporter  diagnostics.Reporter
	now       func() utc.Time
}

// New creates a Reconciler writing to the given registry and work queue.
func New(reg registry.Registry, queue registry.WorkQueue, opts ...Option) (*Reconciler, error) {
	if reg == nil {
		return nil, &errors.ValidationError{Field: "registry", Message: "cannot be nil"}
	}
	if queue == nil {
		return nil, &errors.ValidationError{Field: "queue", Message: "cannot be nil"}
	}

	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}

	return &Reconciler{
		registry:  reg,
		queue:     queue,
		batchSize: options.batchSize,
		reporter:  options.reporter,
		now:       options.now,
	}, nil
}

// Classify computes the add/update/delete plan without persisting anything.
// Invalid documents are filtered before classification and never counted as
// scanned; duplicate identities keep the first occurrence.
func (r *Reconciler) Classify(ctx context.Context, docs []policies.Document, snapshot map[string]policies.RegistryRecord) *Result {
	result := NewResult()
	logger := logging.FromContext(ctx)
	now := r.now()

	current := r.dedupe(r.validate(docs))

	for _, doc := range current.ordered {
		existing, tracked := snapshot[doc.Identity]
		switch {
		case !tracked:
			result.ToAdd = append(result.ToAdd, policies.NewRegistryRecord(doc, now))
		case existing.VersionToken != doc.VersionToken:
			result.ToUpdate = append(result.ToUpdate, policies.NewRegistryRecord(doc, now))
		}
		// Matching version token is a no-op beyond the scanned count.
	}

	for identity := range snapshot {
		if _, ok := current.byIdentity[identity]; !ok {
			result.ToDelete = append(result.ToDelete, identity)
		}
	}
	sort.Strings(result.ToDelete)

	result.Stats = Stats{
		Scanned: len(current.byIdentity),
		Added:   len(result.ToAdd),
		Updated: len(result.ToUpdate),
		Deleted: len(result.ToDelete),
	}

	logger.Debug().
		Int("scanned", result.Stats.Scanned).
		Int("to_add", result.Stats.Added).
		Int("to_update", result.Stats.Updated).
		Int("to_delete", result.Stats.Deleted).
		Msg("Classified documents against registry snapshot")

	result.Finalize()
	return result
}

// Reconcile classifies the current documents against the snapshot and
// persists the plan: adds and updates first (with their work items), then
// deletes. Any failed write or delete fails the whole run with a combined
// error naming every failed identity; items already written stay written,
// so a failed run is safely re-runnable.
func (r *Reconciler) Reconcile(ctx context.Context, docs []policies.Document, snapshot map[string]policies.RegistryRecord) (*Result, error) {
	result := r.Classify(ctx, docs, snapshot)

	if err := r.persistWrites(ctx, result); err != nil {
		return result, err
	}
	if err := r.persistDeletes(ctx, result); err != nil {
		return result, err
	}

	return result, nil
}

// currentMap is the deduplicated view of the run's input documents.
type currentMap struct {
	byIdentity map[string]policies.Document
	ordered    []policies.Document
}

// validate filters out documents failing the pre-reconciliation gate.
// Invalid documents are reported, never thrown.
func (r *Reconciler) validate(docs []policies.Document) []policies.Document {
	valid := docs[:0:0]
	for _, doc := range docs {
		if err := doc.Validate(); err != nil {
			r.reporter.Report(diagnostics.Event{
				Type:     diagnostics.EventInvalidDocument,
				Identity: doc.Identity,
				Path:     doc.Path,
				Message:  "document failed validation, excluded from reconciliation",
				Err:      err,
			})
			continue
		}
		valid = append(valid, doc)
	}
	return valid
}

// dedupe collapses duplicate identities, keeping the first occurrence. Two
// distinct source paths can collapse to the same identity; the collision is
// observable but non-fatal.
func (r *Reconciler) dedupe(docs []policies.Document) currentMap {
	current := currentMap{byIdentity: make(map[string]policies.Document, len(docs))}
	for _, doc := range docs {
		if first, seen := current.byIdentity[doc.Identity]; seen {
			r.reporter.Report(diagnostics.Event{
				Type:     diagnostics.EventDuplicateIdentity,
				Identity: doc.Identity,
				Path:     doc.Path,
				Message:  "duplicate identity, keeping first occurrence from " + first.Path,
			})
			continue
		}
		current.byIdentity[doc.Identity] = doc
		current.ordered = append(current.ordered, doc)
	}
	return current
}

// persistWrites applies all adds and updates to the registry in bounded
// concurrent batches and enqueues one work item per written record.
func (r *Reconciler) persistWrites(ctx context.Context, result *Result) error {
	records := make([]policies.RegistryRecord, 0, len(result.ToAdd)+len(result.ToUpdate))
	records = append(records, result.ToAdd...)
	records = append(records, result.ToUpdate...)
	if len(records) == 0 {
		return nil
	}

	var failed []string
	var itemErrs []error
	for start := 0; start < len(records); start += r.batchSize {
		end := min(start+r.batchSize, len(records))
		for _, itemErr := range r.registry.PutMany(ctx, records[start:end]) {
			failed = append(failed, itemErr.Identity)
			itemErrs = append(itemErrs, itemErr.Err)
		}
	}
	if len(failed) > 0 {
		// An inconsistent registry is worse than a failed run that can be
		// retried wholesale, so write failures abort instead of dropping.
		return errors.NewPersistError("write", failed, stderrors.Join(itemErrs...))
	}

	now := r.now()
	items := make([]policies.WorkItem, 0, len(records))
	for _, record := range result.ToAdd {
		items = append(items, policies.NewWorkItem(record, policies.OperationAdd, now))
	}
	for _, record := range result.ToUpdate {
		items = append(items, policies.NewWorkItem(record, policies.OperationUpdate, now))
	}
	if err := r.queue.EnqueueMany(ctx, items); err != nil {
		return errors.WrapResource("enqueue", "work items", "", err)
	}

	return nil
}

// persistDeletes removes deleted identities from the registry in bounded
// concurrent batches and drops their pending work-queue entries.
func (r *Reconciler) persistDeletes(ctx context.Context, result *Result) error {
	if len(result.ToDelete) == 0 {
		return nil
	}

	var failed []string
	var itemErrs []error
	for start := 0; start < len(result.ToDelete); start += r.batchSize {
		end := min(start+r.batchSize, len(result.ToDelete))
		for _, itemErr := range r.registry.DeleteMany(ctx, result.ToDelete[start:end]) {
			failed = append(failed, itemErr.Identity)
			itemErrs = append(itemErrs, itemErr.Err)
		}
	}
	if len(failed) > 0 {
		return errors.NewPersistError("delete", failed, stderrors.Join(itemErrs...))
	}

	logger := logging.FromContext(ctx)
	for start := 0; start < len(result.ToDelete); start += r.batchSize {
		end := min(start+r.batchSize, len(result.ToDelete))
		var wg sync.WaitGroup
		for _, identity := range result.ToDelete[start:end] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if err := r.queue.Dequeue(ctx, id); err != nil {
					// The registry is already consistent; a stale queue entry
					// is harmless and the consumer tolerates missing records.
					logger.Warn().
						Err(err).
						Str("identity", id).
						Msg("Failed to drop work-queue entry for deleted document")
				}
			}(identity)
		}
		wg.Wait()
	}

	return nil
}
