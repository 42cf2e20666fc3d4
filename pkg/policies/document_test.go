package policies

import (
	"strings"
	"testing"

	"github.com/agentstation/utc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDocument() Document {
	return Document{
		Identity:     "leave",
		Title:        "Leave Policy",
		Body:         "# Leave Policy",
		VersionToken: strings.Repeat("ab", 20),
		Path:         "hr/leave.md",
	}
}

func TestDocumentValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validDocument().Validate())
	})

	t.Run("missing identity", func(t *testing.T) {
		doc := validDocument()
		doc.Identity = ""
		assert.Error(t, doc.Validate())
	})

	t.Run("short token", func(t *testing.T) {
		doc := validDocument()
		doc.VersionToken = "abc123"
		assert.Error(t, doc.Validate())
	})

	t.Run("non-hex token", func(t *testing.T) {
		doc := validDocument()
		doc.VersionToken = strings.Repeat("zz", 20)
		assert.Error(t, doc.Validate())
	})

	t.Run("uppercase hex token", func(t *testing.T) {
		doc := validDocument()
		doc.VersionToken = strings.Repeat("AB", 20)
		assert.NoError(t, doc.Validate())
	})

	t.Run("missing body", func(t *testing.T) {
		doc := validDocument()
		doc.Body = ""
		assert.Error(t, doc.Validate())
	})

	t.Run("missing path", func(t *testing.T) {
		doc := validDocument()
		doc.Path = ""
		assert.Error(t, doc.Validate())
	})
}

func TestNewRegistryRecord(t *testing.T) {
	now := utc.Now()
	record := NewRegistryRecord(validDocument(), now)

	assert.Equal(t, "leave", record.Identity)
	assert.Equal(t, "Leave Policy", record.Title)
	assert.Equal(t, strings.Repeat("ab", 20), record.VersionToken)
	assert.Equal(t, "hr/leave.md", record.Path)
	assert.Equal(t, StatusActive, record.Status)
	assert.Equal(t, now, record.LastUpdated)
}

func TestNewWorkItem(t *testing.T) {
	now := utc.Now()
	record := NewRegistryRecord(validDocument(), now)

	item := NewWorkItem(record, OperationUpdate, now)
	require.NotEmpty(t, item.ID)
	assert.Equal(t, "leave", item.Identity)
	assert.Equal(t, record.VersionToken, item.VersionToken)
	assert.Equal(t, OperationUpdate, item.Operation)
	assert.Zero(t, item.RetryCount)

	other := NewWorkItem(record, OperationUpdate, now)
	assert.NotEqual(t, item.ID, other.ID, "every work item gets its own ID")
}

func TestChangeSet(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		changes := &ChangeSet{}
		assert.False(t, changes.HasChanges())
		assert.Zero(t, changes.TotalChanges())
		assert.Empty(t, changes.Documents())
		assert.Equal(t, "0 added, 0 modified, 0 removed", changes.String())
	})

	t.Run("populated", func(t *testing.T) {
		changes := &ChangeSet{
			Added:    []Document{validDocument()},
			Modified: []Document{validDocument(), validDocument()},
			Removed:  []string{"gone"},
			Failed:   []string{"broken"},
		}
		assert.True(t, changes.HasChanges())
		assert.Equal(t, 4, changes.TotalChanges())
		assert.Len(t, changes.Documents(), 3)
		assert.Equal(t, "1 added, 2 modified, 1 removed, 1 failed", changes.String())
	})

	t.Run("failed only", func(t *testing.T) {
		changes := &ChangeSet{Failed: []string{"broken"}}
		assert.False(t, changes.HasChanges(), "failed entries are not changes")
	})
}
