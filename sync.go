package policysync

import (
	"context"
	"time"

	"github.com/agentstation/utc"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/logging"
	"github.com/agentstation/policysync/pkg/policies"
	"github.com/agentstation/policysync/pkg/reconciler"
)

// SyncResult is the outcome of one sync run.
type SyncResult struct {
	// Revision is the source revision this run reconciled to.
	Revision string

	// PreviousRevision is the registry's pointer before the run, "" on first run.
	PreviousRevision string

	// ChangeSet is the revision transition's partition, nil when the run
	// short-circuited on an unchanged pointer.
	ChangeSet *policies.ChangeSet

	// Reconciliation is the classification and stats, nil when short-circuited
	// or when there was nothing to reconcile.
	Reconciliation *reconciler.Result

	// PointerAdvanced reports whether the registry's revision pointer moved.
	PointerAdvanced bool

	// DryRun reports whether persistence was skipped.
	DryRun bool
}

// syncOptions configures a single sync run.
type syncOptions struct {
	dryRun  bool
	timeout time.Duration
}

// SyncOption is a function that configures a single sync run.
type SyncOption func(*syncOptions)

// WithDryRun classifies and reports without persisting anything.
func WithDryRun(dryRun bool) SyncOption {
	return func(o *syncOptions) {
		o.dryRun = dryRun
	}
}

// WithTimeout bounds the run with a deadline.
func WithTimeout(timeout time.Duration) SyncOption {
	return func(o *syncOptions) {
		o.timeout = timeout
	}
}

// Sync runs one full reconciliation cycle: resolve the current revision,
// detect changes since the registry's pointer, classify and persist them,
// sink the bodies, and advance the pointer.
//
// The pointer only advances when every content fetch in the transition
// succeeded; otherwise the next run retries the same transition, so a
// persistently failing document can never be silently skipped forever.
// Runs are idempotent and safe to re-invoke after abandonment or failure.
func (c *client) Sync(ctx context.Context, opts ...SyncOption) (*SyncResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var options syncOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.timeout)
		defer cancel()
	}

	logger := logging.FromContext(ctx)
	started := time.Now()

	// Resolve the current revision, the stored pointer and the registry
	// snapshot concurrently; none depends on another.
	var current, previous string
	var snapshot map[string]policies.RegistryRecord

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rev, err := c.options.repo.LatestRevision(gctx, c.options.ref)
		if err != nil {
			return errors.WrapResource("resolve", "revision", c.options.ref, err)
		}
		current = rev
		return nil
	})
	g.Go(func() error {
		rev, err := c.options.registry.LastRevision(gctx)
		if err != nil {
			return errors.WrapResource("read", "revision pointer", "", err)
		}
		previous = rev
		return nil
	})
	g.Go(func() error {
		snap, err := c.options.registry.Snapshot(gctx, c.options.prefix)
		if err != nil {
			return errors.WrapResource("read", "registry snapshot", c.options.prefix, err)
		}
		snapshot = snap
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SyncResult{
		Revision:         current,
		PreviousRevision: previous,
		DryRun:           options.dryRun,
	}

	if previous == current {
		logger.Info().Str("revision", current).Msg("Source unchanged since last sync")
		return result, nil
	}

	changes, err := c.tracker.Changes(ctx, current, previous)
	if err != nil {
		return nil, err
	}
	result.ChangeSet = changes

	docs := changes.Documents()
	scope := c.scopeSnapshot(snapshot, changes, previous == "")

	if options.dryRun {
		result.Reconciliation = c.reconciler.Classify(ctx, docs, scope)
		logger.Info().
			Str("changes", changes.String()).
			Bool("dry_run", true).
			Msg("Dry run completed, no changes applied")
		return result, nil
	}

	reconciliation, err := c.reconciler.Reconcile(ctx, docs, scope)
	result.Reconciliation = reconciliation
	if err != nil {
		return result, err
	}

	if err := c.sinkBodies(ctx, changes, reconciliation); err != nil {
		return result, err
	}

	if len(changes.Failed) > 0 {
		// Withhold pointer advancement so the failed documents are retried
		// on the next run against the same transition.
		logger.Warn().
			Int("failed", len(changes.Failed)).
			Strs("identities", changes.Failed).
			Msg("Fetch failures in transition, revision pointer not advanced")
	} else {
		meta := policies.SyncMetadata{
			Revision:         current,
			PreviousRevision: previous,
			CompletedAt:      utc.Now(),
			Scanned:          reconciliation.Stats.Scanned,
			Added:            reconciliation.Stats.Added,
			Updated:          reconciliation.Stats.Updated,
			Deleted:          reconciliation.Stats.Deleted,
		}
		if err := c.options.registry.SetLastRevision(ctx, meta); err != nil {
			return result, errors.WrapResource("advance", "revision pointer", current, err)
		}
		result.PointerAdvanced = true
	}

	c.hooks.trigger(snapshot, reconciliation)

	logger.Info().
		Str("revision", current).
		Str("changes", changes.String()).
		Str("reconciled", reconciliation.Summary()).
		Bool("pointer_advanced", result.PointerAdvanced).
		Dur("duration", time.Since(started)).
		Msg("Sync completed")

	return result, nil
}

// scopeSnapshot restricts the registry snapshot to the identities touched by
// the transition. On a first run the change set is the full current tree, so
// the whole snapshot participates and stale records classify as deletes; on
// an incremental run, untouched registry records are outside the transition
// and must not be scanned or deleted.
func (c *client) scopeSnapshot(snapshot map[string]policies.RegistryRecord, changes *policies.ChangeSet, firstRun bool) map[string]policies.RegistryRecord {
	if firstRun {
		return snapshot
	}

	scope := make(map[string]policies.RegistryRecord)
	for _, doc := range changes.Documents() {
		if record, ok := snapshot[doc.Identity]; ok {
			scope[doc.Identity] = record
		}
	}
	for _, identity := range changes.Removed {
		if record, ok := snapshot[identity]; ok {
			scope[identity] = record
		}
	}
	return scope
}

// sinkBodies writes the bodies of the documents whose records were written
// to the object store, keyed by identity. The store is a pure sink; absence
// disables it.
func (c *client) sinkBodies(ctx context.Context, changes *policies.ChangeSet, reconciliation *reconciler.Result) error {
	if c.options.store == nil {
		return nil
	}

	written := make(map[string]struct{}, len(reconciliation.ToAdd)+len(reconciliation.ToUpdate))
	for _, record := range reconciliation.ToAdd {
		written[record.Identity] = struct{}{}
	}
	for _, record := range reconciliation.ToUpdate {
		written[record.Identity] = struct{}{}
	}

	for _, doc := range changes.Documents() {
		if _, ok := written[doc.Identity]; !ok {
			continue
		}
		if err := c.options.store.Put(ctx, doc.Identity, doc.Body); err != nil {
			return errors.WrapResource("write", "document body", doc.Identity, err)
		}
	}
	return nil
}
