package policysync

import (
	"time"

	"github.com/agentstation/policysync/pkg/constants"
	"github.com/agentstation/policysync/pkg/diagnostics"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/registry"
	"github.com/agentstation/policysync/pkg/source"
)

// DefaultRef is the symbolic ref synced when none is configured.
const DefaultRef = "main"

// options holds the client configuration.
type options struct {
	repo     source.Repository
	registry registry.Registry
	queue    registry.WorkQueue
	store    registry.ObjectStore // optional sink

	ref              string
	prefix           string
	ignorePatterns   []string
	fetchBatchSize   int
	persistBatchSize int
	reporter         diagnostics.Reporter

	autoSyncEnabled  bool
	autoSyncInterval time.Duration
}

func defaultClientOptions() *options {
	return &options{
		ref:              DefaultRef,
		fetchBatchSize:   constants.DefaultFetchBatchSize,
		persistBatchSize: constants.DefaultPersistBatchSize,
		reporter:         diagnostics.Default(),
		autoSyncInterval: constants.DefaultSyncInterval,
	}
}

// Option is a function that configures a Client.
type Option func(*options) error

// newOptions returns client options with defaults applied and validated.
func newOptions(opts ...Option) (*options, error) {
	options := defaultClientOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	if options.repo == nil {
		return nil, &errors.ValidationError{Field: "source", Message: "a source repository is required"}
	}
	if options.registry == nil {
		return nil, &errors.ValidationError{Field: "registry", Message: "a registry is required"}
	}
	if options.queue == nil {
		return nil, &errors.ValidationError{Field: "queue", Message: "a work queue is required"}
	}

	return options, nil
}

// WithSource sets the source-of-truth repository.
func WithSource(repo source.Repository) Option {
	return func(o *options) error {
		o.repo = repo
		return nil
	}
}

// WithRegistry sets the persisted registry.
func WithRegistry(reg registry.Registry) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

// WithWorkQueue sets the downstream work queue.
func WithWorkQueue(queue registry.WorkQueue) Option {
	return func(o *options) error {
		o.queue = queue
		return nil
	}
}

// WithObjectStore sets the optional body sink. When absent, bodies are not
// persisted beyond the registry records.
func WithObjectStore(store registry.ObjectStore) Option {
	return func(o *options) error {
		o.store = store
		return nil
	}
}

// WithRef sets the symbolic ref resolved to the current revision on each run.
func WithRef(ref string) Option {
	return func(o *options) error {
		if ref == "" {
			return &errors.ValidationError{Field: "ref", Message: "cannot be empty"}
		}
		o.ref = ref
		return nil
	}
}

// WithPrefix restricts the registry snapshot to identities with the prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) error {
		o.prefix = prefix
		return nil
	}
}

// WithIgnorePatterns adds glob patterns treated as ineligible source paths.
func WithIgnorePatterns(patterns ...string) Option {
	return func(o *options) error {
		o.ignorePatterns = append(o.ignorePatterns, patterns...)
		return nil
	}
}

// WithFetchBatchSize bounds the concurrent body fetches per batch.
func WithFetchBatchSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return &errors.ValidationError{Field: "fetch_batch_size", Value: n, Message: "must be positive"}
		}
		o.fetchBatchSize = n
		return nil
	}
}

// WithPersistBatchSize bounds the concurrent registry writes per batch.
func WithPersistBatchSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return &errors.ValidationError{Field: "persist_batch_size", Value: n, Message: "must be positive"}
		}
		o.persistBatchSize = n
		return nil
	}
}

// WithReporter sets the diagnostics reporter shared by all components.
func WithReporter(r diagnostics.Reporter) Option {
	return func(o *options) error {
		if r == nil {
			return &errors.ValidationError{Field: "reporter", Message: "cannot be nil"}
		}
		o.reporter = r
		return nil
	}
}

// WithAutoSync enables interval syncing at the given interval.
func WithAutoSync(interval time.Duration) Option {
	return func(o *options) error {
		if interval <= 0 {
			return &errors.ValidationError{Field: "interval", Value: interval, Message: "must be positive"}
		}
		o.autoSyncEnabled = true
		o.autoSyncInterval = interval
		return nil
	}
}

// WithSyncInterval sets the interval used by AutoSyncOn without starting
// interval syncs at construction.
func WithSyncInterval(interval time.Duration) Option {
	return func(o *options) error {
		if interval <= 0 {
			return &errors.ValidationError{Field: "interval", Value: interval, Message: "must be positive"}
		}
		o.autoSyncInterval = interval
		return nil
	}
}
