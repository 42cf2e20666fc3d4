package reconciler

import (
	"github.com/agentstation/utc"

	"github.com/agentstation/policysync/pkg/constants"
	"github.com/agentstation/policysync/pkg/diagnostics"
	"github.com/agentstation/policysync/pkg/errors"
)

// options configures a Reconciler.
type options struct {
	batchSize int
	reporter  diagnostics.Reporter
	now       func() utc.Time
}

func defaultOptions() *options {
	return &options{
		batchSize: constants.DefaultPersistBatchSize,
		reporter:  diagnostics.Default(),
		now:       utc.Now,
	}
}

// Option is a function that configures a Reconciler.
type Option func(*options) error

func (options *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

// newOptions returns reconciler options with default values applied.
func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithBatchSize sets the number of registry writes or deletes issued
// concurrently per batch.
func WithBatchSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return &errors.ValidationError{Field: "batch_size", Value: n, Message: "must be positive"}
		}
		o.batchSize = n
		return nil
	}
}

// WithReporter sets the diagnostics reporter for non-fatal warnings
// (duplicate identities, invalid documents).
func WithReporter(r diagnostics.Reporter) Option {
	return func(o *options) error {
		if r == nil {
			return &errors.ValidationError{Field: "reporter", Message: "cannot be nil"}
		}
		o.reporter = r
		return nil
	}
}

// WithClock overrides the timestamp source. Tests use this to make
// classification fully deterministic.
func WithClock(now func() utc.Time) Option {
	return func(o *options) error {
		if now == nil {
			return &errors.ValidationError{Field: "clock", Message: "cannot be nil"}
		}
		o.now = now
		return nil
	}
}
