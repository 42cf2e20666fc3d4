// Package fetcher materializes document bodies for change descriptors under
// a bounded fan-out. Descriptors are split into fixed-size batches; within a
// batch every fetch runs concurrently and all completions are awaited before
// the next batch starts. Per-item failures are isolated: one slow or broken
// document never blocks unrelated documents in the same or later batches.
package fetcher

import (
	"context"
	"sync"

	"github.com/agentstation/policysync/pkg/constants"
	"github.com/agentstation/policysync/pkg/diagnostics"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/logging"
	"github.com/agentstation/policysync/pkg/metadata"
)

// ContentFetcher is the slice of the source repository the fetcher needs.
type ContentFetcher interface {
	Content(ctx context.Context, versionToken string) ([]byte, error)
}

// Descriptor names one document body to fetch. Descriptors are expected to
// have already passed the eligibility predicate.
type Descriptor struct {
	Path         string
	VersionToken string
}

// Failure captures one isolated fetch failure.
type Failure struct {
	Identity string
	Path     string
	Err      error
}

// Fetcher fetches document bodies in bounded concurrent batches.
type Fetcher struct {
	contents  ContentFetcher
	extractor *metadata.Extractor
	batchSize int
	reporter  diagnostics.Reporter
}

// Option configures a Fetcher.
type Option func(*Fetcher) error

// WithBatchSize overrides the default batch size. The batch size is the
// concurrent-request ceiling per fan-out.
func WithBatchSize(n int) Option {
	return func(f *Fetcher) error {
		if n <= 0 {
			return &errors.ValidationError{Field: "batch_size", Value: n, Message: "must be positive"}
		}
		f.batchSize = n
		return nil
	}
}

// WithReporter sets the diagnostics reporter notified of dropped fetches.
func WithReporter(r diagnostics.Reporter) Option {
	return func(f *Fetcher) error {
		if r == nil {
			return &errors.ValidationError{Field: "reporter", Message: "cannot be nil"}
		}
		f.reporter = r
		return nil
	}
}

// New creates a Fetcher reading bodies from contents and deriving identities
// with extractor.
func New(contents ContentFetcher, extractor *metadata.Extractor, opts ...Option) (*Fetcher, error) {
	if contents == nil {
		return nil, &errors.ValidationError{Field: "contents", Message: "cannot be nil"}
	}
	if extractor == nil {
		return nil, &errors.ValidationError{Field: "extractor", Message: "cannot be nil"}
	}
	f := &Fetcher{
		contents:  contents,
		extractor: extractor,
		batchSize: constants.DefaultFetchBatchSize,
		reporter:  diagnostics.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// fetchResult is the outcome of a single body fetch within a batch.
type fetchResult struct {
	identity string
	path     string
	body     string
	err      error
}

// Bodies fetches the body for every descriptor and returns them keyed by
// identity, together with the isolated failures. A failed item is absent
// from the map; it never aborts its batch or subsequent batches. There are
// no retries at this layer.
func (f *Fetcher) Bodies(ctx context.Context, descriptors []Descriptor) (map[string]string, []Failure) {
	bodies := make(map[string]string, len(descriptors))
	var failures []Failure

	logger := logging.FromContext(ctx)

	for start := 0; start < len(descriptors); start += f.batchSize {
		end := min(start+f.batchSize, len(descriptors))
		batch := descriptors[start:end]

		var wg sync.WaitGroup
		results := make(chan fetchResult, len(batch))

		for _, desc := range batch {
			wg.Add(1)
			go func(d Descriptor) {
				defer wg.Done()

				identity := f.extractor.Identity(d.Path)
				raw, err := f.contents.Content(ctx, d.VersionToken)
				if err != nil {
					results <- fetchResult{identity: identity, path: d.Path, err: err}
					return
				}
				results <- fetchResult{identity: identity, path: d.Path, body: string(raw)}
			}(desc)
		}

		wg.Wait()
		close(results)

		for result := range results {
			if result.err != nil {
				failures = append(failures, Failure{
					Identity: result.identity,
					Path:     result.path,
					Err:      result.err,
				})
				f.reporter.Report(diagnostics.Event{
					Type:     diagnostics.EventFetchFailed,
					Identity: result.identity,
					Path:     result.path,
					Message:  "document body fetch failed, dropping from change set",
					Err:      result.err,
				})
				continue
			}
			bodies[result.identity] = result.body
		}

		logger.Debug().
			Int("batch_size", len(batch)).
			Int("fetched", len(bodies)).
			Int("failed", len(failures)).
			Msg("Fetched document batch")
	}

	return bodies, failures
}
