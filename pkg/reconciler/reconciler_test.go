package reconciler_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policysync/internal/registry/memory"
	"github.com/agentstation/policysync/pkg/diagnostics"
	pkgerrors "github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/policies"
	"github.com/agentstation/policysync/pkg/reconciler"
	"github.com/agentstation/policysync/pkg/registry"
)

func token(seed byte) string {
	return strings.Repeat(string([]byte{'a' + seed%6, '0' + seed%10}), 20)
}

func doc(identity, path string, seed byte) policies.Document {
	return policies.Document{
		Identity:     identity,
		Title:        strings.ToUpper(identity),
		Body:         "# " + identity,
		VersionToken: token(seed),
		Path:         path,
	}
}

func record(identity string, seed byte) policies.RegistryRecord {
	return policies.NewRegistryRecord(doc(identity, identity+".md", seed), utc.Now())
}

func newReconciler(t *testing.T, reg registry.Registry, queue registry.WorkQueue, opts ...reconciler.Option) *reconciler.Reconciler {
	t.Helper()
	r, err := reconciler.New(reg, queue, opts...)
	require.NoError(t, err)
	return r
}

func TestClassify(t *testing.T) {
	reg := memory.NewRegistry()
	queue := memory.NewQueue()
	r := newReconciler(t, reg, queue)

	snapshot := map[string]policies.RegistryRecord{
		"unchanged": record("unchanged", 1),
		"stale":     record("stale", 2),
		"gone":      record("gone", 3),
	}
	docs := []policies.Document{
		doc("unchanged", "unchanged.md", 1), // same token: no-op
		doc("stale", "stale.md", 9),         // different token: update
		doc("fresh", "fresh.md", 4),         // untracked: add
	}

	result := r.Classify(context.Background(), docs, snapshot)

	require.Len(t, result.ToAdd, 1)
	assert.Equal(t, "fresh", result.ToAdd[0].Identity)
	require.Len(t, result.ToUpdate, 1)
	assert.Equal(t, "stale", result.ToUpdate[0].Identity)
	assert.Equal(t, []string{"gone"}, result.ToDelete)

	assert.Equal(t, reconciler.Stats{Scanned: 3, Added: 1, Updated: 1, Deleted: 1}, result.Stats)
}

func TestClassifyValidationGate(t *testing.T) {
	collector := diagnostics.NewCollector()
	r := newReconciler(t, memory.NewRegistry(), memory.NewQueue(), reconciler.WithReporter(collector))

	invalid := doc("broken", "broken.md", 1)
	invalid.VersionToken = "not-a-token"

	result := r.Classify(context.Background(), []policies.Document{
		invalid,
		doc("ok", "ok.md", 2),
	}, nil)

	require.Len(t, result.ToAdd, 1)
	assert.Equal(t, "ok", result.ToAdd[0].Identity)
	assert.Equal(t, 1, result.Stats.Scanned, "invalid documents are never counted as scanned")

	events := collector.ByType(diagnostics.EventInvalidDocument)
	require.Len(t, events, 1)
	assert.Equal(t, "broken", events[0].Identity)
}

func TestClassifyDuplicateKeepsFirst(t *testing.T) {
	collector := diagnostics.NewCollector()
	r := newReconciler(t, memory.NewRegistry(), memory.NewQueue(), reconciler.WithReporter(collector))

	first := doc("policy", "a/policy.md", 1)
	second := doc("policy", "b/policy.md", 2)

	result := r.Classify(context.Background(), []policies.Document{first, second}, nil)

	require.Len(t, result.ToAdd, 1)
	assert.Equal(t, "a/policy.md", result.ToAdd[0].Path, "first occurrence wins")
	assert.Equal(t, 1, result.Stats.Scanned)

	events := collector.ByType(diagnostics.EventDuplicateIdentity)
	require.Len(t, events, 1)
}

func TestReconcilePersistsAndEnqueues(t *testing.T) {
	reg := memory.NewRegistry()
	queue := memory.NewQueue()
	frozen := utc.Now()
	r := newReconciler(t, reg, queue, reconciler.WithClock(func() utc.Time { return frozen }))

	snapshot := map[string]policies.RegistryRecord{
		"stale": record("stale", 2),
		"gone":  record("gone", 3),
	}
	require.Empty(t, reg.PutMany(context.Background(), []policies.RegistryRecord{
		snapshot["stale"], snapshot["gone"],
	}))

	docs := []policies.Document{
		doc("fresh", "fresh.md", 4),
		doc("stale", "stale.md", 9),
	}

	result, err := r.Reconcile(context.Background(), docs, snapshot)
	require.NoError(t, err)
	assert.True(t, result.HasChanges())

	// Registry state converged.
	assert.Equal(t, 2, reg.Len())
	fresh, ok := reg.Get("fresh")
	require.True(t, ok)
	assert.Equal(t, policies.StatusActive, fresh.Status)
	assert.Equal(t, frozen, fresh.LastUpdated)
	_, ok = reg.Get("gone")
	assert.False(t, ok)

	// One work item per written record, none for deletes.
	assert.Equal(t, 2, queue.Len())
	item, ok := queue.Pending("fresh")
	require.True(t, ok)
	assert.Equal(t, policies.OperationAdd, item.Operation)
	assert.NotEmpty(t, item.ID)
	item, ok = queue.Pending("stale")
	require.True(t, ok)
	assert.Equal(t, policies.OperationUpdate, item.Operation)
}

func TestReconcileIdempotent(t *testing.T) {
	reg := memory.NewRegistry()
	queue := memory.NewQueue()
	r := newReconciler(t, reg, queue)

	docs := []policies.Document{doc("one", "one.md", 1), doc("two", "two.md", 2)}

	first, err := r.Reconcile(context.Background(), docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stats.Added)

	// Second run against the converged snapshot is a no-op.
	snapshot, err := reg.Snapshot(context.Background(), "")
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), docs, snapshot)
	require.NoError(t, err)
	assert.False(t, second.HasChanges())
	assert.Equal(t, 2, second.Stats.Scanned)
}

func TestReconcileDeleteDropsQueueEntry(t *testing.T) {
	reg := memory.NewRegistry()
	queue := memory.NewQueue()
	r := newReconciler(t, reg, queue)

	// Seed an existing record with a pending work item.
	_, err := r.Reconcile(context.Background(), []policies.Document{doc("doomed", "doomed.md", 1)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, queue.Len())

	snapshot, err := reg.Snapshot(context.Background(), "")
	require.NoError(t, err)
	_, err = r.Reconcile(context.Background(), nil, snapshot)
	require.NoError(t, err)

	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, queue.Len(), "pending work item dropped with the record")
}

// failingRegistry fails writes for scripted identities.
type failingRegistry struct {
	*memory.Registry
	failWrites map[string]error
}

func (f *failingRegistry) PutMany(ctx context.Context, records []policies.RegistryRecord) []registry.ItemError {
	var failures []registry.ItemError
	var ok []policies.RegistryRecord
	for _, r := range records {
		if err, fail := f.failWrites[r.Identity]; fail {
			failures = append(failures, registry.ItemError{Identity: r.Identity, Err: err})
			continue
		}
		ok = append(ok, r)
	}
	failures = append(failures, f.Registry.PutMany(ctx, ok)...)
	return failures
}

func TestReconcilePartialWriteFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	reg := &failingRegistry{
		Registry:   memory.NewRegistry(),
		failWrites: map[string]error{"bad": boom},
	}
	queue := memory.NewQueue()
	r := newReconciler(t, reg, queue)

	docs := []policies.Document{
		doc("good", "good.md", 1),
		doc("bad", "bad.md", 2),
	}

	_, err := r.Reconcile(context.Background(), docs, nil)
	require.Error(t, err)

	// The combined error names the failed identity and wraps the cause.
	var perr *pkgerrors.PersistError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{"bad"}, perr.Identities)
	assert.ErrorIs(t, err, boom)

	// The successful write stays written; nothing was enqueued.
	_, ok := reg.Get("good")
	assert.True(t, ok)
	assert.Equal(t, 0, queue.Len(), "work items are withheld when any write failed")
}

func TestReconcileBatchesWrites(t *testing.T) {
	reg := &countingRegistry{Registry: memory.NewRegistry()}
	queue := memory.NewQueue()
	r := newReconciler(t, reg, queue, reconciler.WithBatchSize(2))

	docs := make([]policies.Document, 5)
	for i := range docs {
		identity := "doc-" + string(rune('a'+i))
		docs[i] = doc(identity, identity+".md", byte(i))
	}

	_, err := r.Reconcile(context.Background(), docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, reg.putCalls, "5 records in batches of 2")
	assert.Equal(t, []int{2, 2, 1}, reg.putSizes)
}

func TestReconcileBoundsDeleteDequeues(t *testing.T) {
	reg := memory.NewRegistry()
	queue := &trackingQueue{Queue: memory.NewQueue()}
	r := newReconciler(t, reg, queue, reconciler.WithBatchSize(2))

	snapshot := make(map[string]policies.RegistryRecord, 5)
	for i := 0; i < 5; i++ {
		identity := "gone-" + string(rune('a'+i))
		snapshot[identity] = record(identity, byte(i))
	}
	require.Len(t, reg.PutMany(context.Background(), recordsOf(snapshot)), 0)

	_, err := r.Reconcile(context.Background(), nil, snapshot)
	require.NoError(t, err)

	assert.Equal(t, 5, queue.calls, "every deleted identity gets dequeued")
	assert.LessOrEqual(t, queue.peak, 2, "dequeues fan out at most one batch at a time")
}

func recordsOf(snapshot map[string]policies.RegistryRecord) []policies.RegistryRecord {
	records := make([]policies.RegistryRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		records = append(records, rec)
	}
	return records
}

type countingRegistry struct {
	*memory.Registry
	putCalls int
	putSizes []int
}

func (c *countingRegistry) PutMany(ctx context.Context, records []policies.RegistryRecord) []registry.ItemError {
	c.putCalls++
	c.putSizes = append(c.putSizes, len(records))
	return c.Registry.PutMany(ctx, records)
}

// trackingQueue records how many Dequeue calls run at once.
type trackingQueue struct {
	*memory.Queue
	mu       sync.Mutex
	calls    int
	inflight int
	peak     int
}

func (q *trackingQueue) Dequeue(ctx context.Context, identity string) error {
	q.mu.Lock()
	q.calls++
	q.inflight++
	if q.inflight > q.peak {
		q.peak = q.inflight
	}
	q.mu.Unlock()

	time.Sleep(time.Millisecond)

	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()

	return q.Queue.Dequeue(ctx, identity)
}
