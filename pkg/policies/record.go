package policies

import (
	"github.com/agentstation/utc"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a registry record.
type Status string

const (
	// StatusActive marks a record currently tracked by the registry.
	StatusActive Status = "active"
)

// RegistryRecord is the persisted representation of a Document, one per
// identity, forming the system of record. Absence of a record means
// "not currently tracked."
type RegistryRecord struct {
	Identity     string   `json:"identity" yaml:"identity"`
	Title        string   `json:"title" yaml:"title"`
	VersionToken string   `json:"version_token" yaml:"version_token"`
	Path         string   `json:"path" yaml:"path"`
	Status       Status   `json:"status" yaml:"status"`
	LastUpdated  utc.Time `json:"last_updated" yaml:"last_updated"`
}

// NewRegistryRecord builds the record persisted for a document. The caller
// stamps the lifecycle timestamp; documents themselves carry none.
func NewRegistryRecord(doc Document, now utc.Time) RegistryRecord {
	return RegistryRecord{
		Identity:     doc.Identity,
		Title:        doc.Title,
		VersionToken: doc.VersionToken,
		Path:         doc.Path,
		Status:       StatusActive,
		LastUpdated:  now,
	}
}

// Operation is the kind of registry change a work item notifies about.
type Operation string

const (
	// OperationAdd marks a work item for a newly created record.
	OperationAdd Operation = "add"
	// OperationUpdate marks a work item for a replaced record.
	OperationUpdate Operation = "update"
)

// WorkItem is a downstream queue entry, one per added or updated record.
// It is consumed and deleted by an external processing pipeline.
type WorkItem struct {
	ID           string    `json:"id" yaml:"id"`
	Identity     string    `json:"identity" yaml:"identity"`
	VersionToken string    `json:"version_token" yaml:"version_token"`
	Operation    Operation `json:"operation" yaml:"operation"`
	RetryCount   int       `json:"retry_count" yaml:"retry_count"`
	CreatedAt    utc.Time  `json:"created_at" yaml:"created_at"`
	LastError    string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// NewWorkItem creates a queue entry for a record change.
func NewWorkItem(record RegistryRecord, op Operation, now utc.Time) WorkItem {
	return WorkItem{
		ID:           uuid.NewString(),
		Identity:     record.Identity,
		VersionToken: record.VersionToken,
		Operation:    op,
		CreatedAt:    now,
	}
}

// SyncMetadata records the outcome of a completed sync run and the revision
// pointer it used. It is written by the orchestrator as an external marker;
// the core never reads it back.
type SyncMetadata struct {
	Revision         string   `json:"revision" yaml:"revision"`
	PreviousRevision string   `json:"previous_revision,omitempty" yaml:"previous_revision,omitempty"`
	CompletedAt      utc.Time `json:"completed_at" yaml:"completed_at"`
	Scanned          int      `json:"scanned" yaml:"scanned"`
	Added            int      `json:"added" yaml:"added"`
	Updated          int      `json:"updated" yaml:"updated"`
	Deleted          int      `json:"deleted" yaml:"deleted"`
}
