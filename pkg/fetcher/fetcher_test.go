package fetcher_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policysync/pkg/diagnostics"
	"github.com/agentstation/policysync/pkg/fetcher"
	"github.com/agentstation/policysync/pkg/metadata"
)

// fakeContents serves bodies keyed by version token and records concurrency.
type fakeContents struct {
	mu       sync.Mutex
	bodies   map[string]string
	failing  map[string]error
	inflight int
	peak     int
	calls    int
}

func (f *fakeContents) Content(_ context.Context, versionToken string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if err, ok := f.failing[versionToken]; ok {
		return nil, err
	}
	return []byte(f.bodies[versionToken]), nil
}

func newExtractor(t *testing.T) *metadata.Extractor {
	t.Helper()
	e, err := metadata.New()
	require.NoError(t, err)
	return e
}

func TestBodiesKeyedByIdentity(t *testing.T) {
	contents := &fakeContents{bodies: map[string]string{
		"tok-a": "# Policy A",
		"tok-b": "# Policy B",
	}}
	f, err := fetcher.New(contents, newExtractor(t))
	require.NoError(t, err)

	bodies, failures := f.Bodies(context.Background(), []fetcher.Descriptor{
		{Path: "hr/policy-a.md", VersionToken: "tok-a"},
		{Path: "legal/policy-b.md", VersionToken: "tok-b"},
	})

	assert.Empty(t, failures)
	assert.Equal(t, map[string]string{
		"policy-a": "# Policy A",
		"policy-b": "# Policy B",
	}, bodies)
}

func TestBodiesFailureIsolation(t *testing.T) {
	boom := errors.New("boom")
	contents := &fakeContents{
		bodies:  map[string]string{"tok-ok": "body"},
		failing: map[string]error{"tok-bad": boom},
	}
	collector := diagnostics.NewCollector()
	f, err := fetcher.New(contents, newExtractor(t), fetcher.WithReporter(collector))
	require.NoError(t, err)

	bodies, failures := f.Bodies(context.Background(), []fetcher.Descriptor{
		{Path: "a/good.md", VersionToken: "tok-ok"},
		{Path: "a/bad.md", VersionToken: "tok-bad"},
	})

	// The failed document is absent, the healthy one unaffected.
	assert.Equal(t, map[string]string{"good": "body"}, bodies)
	require.Len(t, failures, 1)
	assert.Equal(t, "bad", failures[0].Identity)
	assert.Equal(t, "a/bad.md", failures[0].Path)
	assert.ErrorIs(t, failures[0].Err, boom)

	events := collector.ByType(diagnostics.EventFetchFailed)
	require.Len(t, events, 1)
	assert.Equal(t, "bad", events[0].Identity)
}

func TestBodiesBatchBound(t *testing.T) {
	contents := &fakeContents{bodies: map[string]string{}}
	descriptors := make([]fetcher.Descriptor, 10)
	for i := range descriptors {
		tok := string(rune('a' + i))
		contents.bodies["tok-"+tok] = "body"
		descriptors[i] = fetcher.Descriptor{Path: "docs/" + tok + ".md", VersionToken: "tok-" + tok}
	}

	f, err := fetcher.New(contents, newExtractor(t), fetcher.WithBatchSize(3))
	require.NoError(t, err)

	bodies, failures := f.Bodies(context.Background(), descriptors)
	assert.Empty(t, failures)
	assert.Len(t, bodies, 10)
	assert.Equal(t, 10, contents.calls)
	assert.LessOrEqual(t, contents.peak, 3, "concurrency must stay within the batch size")
}

func TestBodiesEmptyInput(t *testing.T) {
	f, err := fetcher.New(&fakeContents{}, newExtractor(t))
	require.NoError(t, err)

	bodies, failures := f.Bodies(context.Background(), nil)
	assert.Empty(t, bodies)
	assert.Empty(t, failures)
}

func TestNewValidation(t *testing.T) {
	e := newExtractor(t)

	_, err := fetcher.New(nil, e)
	assert.Error(t, err)

	_, err = fetcher.New(&fakeContents{}, nil)
	assert.Error(t, err)

	_, err = fetcher.New(&fakeContents{}, e, fetcher.WithBatchSize(0))
	assert.Error(t, err)
}
