package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/policysync/pkg/policies"
)

func record(identity, token string) policies.RegistryRecord {
	return policies.RegistryRecord{
		Identity:     identity,
		Title:        identity,
		VersionToken: token,
		Path:         identity + ".md",
		Status:       policies.StatusActive,
		LastUpdated:  utc.Now(),
	}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestPutSnapshotDeleteRoundTrip(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	failures := reg.PutMany(ctx, []policies.RegistryRecord{
		record("leave", "tok-1"),
		record("terms", "tok-2"),
	})
	assert.Empty(t, failures)

	snapshot, err := reg.Snapshot(ctx, "")
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.Equal(t, "tok-1", snapshot["leave"].VersionToken)
	assert.Equal(t, policies.StatusActive, snapshot["leave"].Status)

	failures = reg.DeleteMany(ctx, []string{"leave", "never-existed"})
	assert.Empty(t, failures, "deleting an absent identity is not an error")

	snapshot, err = reg.Snapshot(ctx, "")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	_, ok := snapshot["terms"]
	assert.True(t, ok)
}

func TestSnapshotPrefixFilter(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.Empty(t, reg.PutMany(ctx, []policies.RegistryRecord{
		record("hr-leave", "tok-1"),
		record("hr-remote", "tok-2"),
		record("legal-terms", "tok-3"),
	}))

	snapshot, err := reg.Snapshot(ctx, "hr-")
	require.NoError(t, err)
	assert.Len(t, snapshot, 2)
	_, ok := snapshot["legal-terms"]
	assert.False(t, ok)
}

func TestPutReplacesExistingRecord(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.Empty(t, reg.PutMany(ctx, []policies.RegistryRecord{record("leave", "tok-1")}))
	require.Empty(t, reg.PutMany(ctx, []policies.RegistryRecord{record("leave", "tok-2")}))

	snapshot, err := reg.Snapshot(ctx, "")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "tok-2", snapshot["leave"].VersionToken)
}

func TestRevisionPointer(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	rev, err := reg.LastRevision(ctx)
	require.NoError(t, err)
	assert.Empty(t, rev, "no pointer before the first sync")

	require.NoError(t, reg.SetLastRevision(ctx, policies.SyncMetadata{
		Revision:    "rev-1",
		CompletedAt: utc.Now(),
		Added:       3,
	}))
	require.NoError(t, reg.SetLastRevision(ctx, policies.SyncMetadata{
		Revision:         "rev-2",
		PreviousRevision: "rev-1",
		CompletedAt:      utc.Now(),
	}))

	rev, err = reg.LastRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rev-2", rev)

	// The pointer survives a process restart.
	reopened, err := New(dir)
	require.NoError(t, err)
	rev, err = reopened.LastRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rev-2", rev)
}

func TestSyncFileExcludedFromSnapshot(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, reg.SetLastRevision(ctx, policies.SyncMetadata{Revision: "rev-1"}))
	require.Empty(t, reg.PutMany(ctx, []policies.RegistryRecord{record("leave", "tok-1")}))

	snapshot, err := reg.Snapshot(ctx, "")
	require.NoError(t, err)
	assert.Len(t, snapshot, 1)
}

func TestWorkQueue(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	item := policies.NewWorkItem(record("leave", "tok-1"), policies.OperationAdd, utc.Now())
	require.NoError(t, reg.EnqueueMany(ctx, []policies.WorkItem{item}))

	queued := filepath.Join(dir, "queue", "leave.yaml")
	_, err = os.Stat(queued)
	require.NoError(t, err)

	require.NoError(t, reg.Dequeue(ctx, "leave"))
	_, err = os.Stat(queued)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, reg.Dequeue(ctx, "leave"), "dequeuing an absent entry is not an error")
}
