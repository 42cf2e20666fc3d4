// Package policysync keeps a persisted registry of regulatory policy
// documents reconciled against a remote source-of-truth repository, so
// downstream consumers always see an up-to-date, deduplicated view without
// re-processing unchanged documents.
//
// The core is a change detection and reconciliation engine: revision-to-
// revision change tracking (incremental diff with a full-tree fallback) and
// idempotent add/update/delete classification against the registry, tolerant
// of partial failures. Delivery downstream is at-least-once with idempotent
// keys.
//
// Example usage:
//
//	client, err := policysync.New(
//	    policysync.WithSource(repo),
//	    policysync.WithRegistry(reg),
//	    policysync.WithWorkQueue(queue),
//	    policysync.WithObjectStore(store),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := client.Sync(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.ChangeSet.String())
package policysync

import (
	"context"
	"sync"
	"time"

	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/fetcher"
	"github.com/agentstation/policysync/pkg/metadata"
	"github.com/agentstation/policysync/pkg/reconciler"
	"github.com/agentstation/policysync/pkg/tracker"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// Client runs reconciliation cycles against the configured collaborators.
type Client interface {
	// Sync runs one full reconciliation cycle
	Sync(ctx context.Context, opts ...SyncOption) (*SyncResult, error)

	// AutoSyncOn begins interval syncs if configured
	AutoSyncOn() error

	// AutoSyncOff stops interval syncs
	AutoSyncOff() error

	// OnDocumentAdded registers a callback for newly tracked documents
	OnDocumentAdded(DocumentAddedHook)

	// OnDocumentUpdated registers a callback for replaced records
	OnDocumentUpdated(DocumentUpdatedHook)

	// OnDocumentRemoved registers a callback for untracked identities
	OnDocumentRemoved(DocumentRemovedHook)
}

// client is the internal implementation of the Client interface.
type client struct {
	options *options

	extractor  *metadata.Extractor
	tracker    *tracker.Tracker
	reconciler *reconciler.Reconciler

	hooks *hooks

	mu         sync.Mutex
	syncTicker *time.Ticker
	stopCh     chan struct{}
	syncCancel context.CancelFunc
}

// New creates a new Client with the given options. A source repository, a
// registry and a work queue are required; the object store is optional and
// skipped when absent.
func New(opts ...Option) (Client, error) {
	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}

	extractorOpts := []metadata.Option{metadata.WithReporter(options.reporter)}
	if len(options.ignorePatterns) > 0 {
		extractorOpts = append(extractorOpts, metadata.WithIgnorePatterns(options.ignorePatterns...))
	}
	extractor, err := metadata.New(extractorOpts...)
	if err != nil {
		return nil, err
	}

	bodies, err := fetcher.New(options.repo, extractor,
		fetcher.WithBatchSize(options.fetchBatchSize),
		fetcher.WithReporter(options.reporter),
	)
	if err != nil {
		return nil, err
	}

	track, err := tracker.New(options.repo, extractor, bodies)
	if err != nil {
		return nil, err
	}

	reconcile, err := reconciler.New(options.registry, options.queue,
		reconciler.WithBatchSize(options.persistBatchSize),
		reconciler.WithReporter(options.reporter),
	)
	if err != nil {
		return nil, err
	}

	c := &client{
		options:    options,
		extractor:  extractor,
		tracker:    track,
		reconciler: reconcile,
		hooks:      newHooks(),
		stopCh:     make(chan struct{}),
	}

	if options.autoSyncEnabled {
		if err := c.AutoSyncOn(); err != nil {
			return nil, errors.WrapResource("start", "auto-sync", "", err)
		}
	}

	return c, nil
}
