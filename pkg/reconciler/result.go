package reconciler

import (
	"fmt"
	"time"

	"github.com/agentstation/policysync/pkg/policies"
)

// Result represents the outcome of one reconciliation run. It is computed
// fresh on every run and never persisted itself.
type Result struct {
	// Classification lists
	ToAdd    []policies.RegistryRecord
	ToUpdate []policies.RegistryRecord
	ToDelete []string

	// Stats are always consistent with the three lists' lengths.
	Stats Stats

	// Metadata about the run
	Metadata ResultMetadata
}

// Stats counts a run's classifications. Scanned is the size of the
// deduplicated, validated current map, not the raw input length.
type Stats struct {
	Scanned int
	Added   int
	Updated int
	Deleted int
}

// ResultMetadata contains timing metadata about the reconciliation process.
type ResultMetadata struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// HasChanges returns true if any classification list is non-empty.
func (r *Result) HasChanges() bool {
	return len(r.ToAdd) > 0 || len(r.ToUpdate) > 0 || len(r.ToDelete) > 0
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	return fmt.Sprintf("scanned %d: %d to add, %d to update, %d to delete",
		r.Stats.Scanned, r.Stats.Added, r.Stats.Updated, r.Stats.Deleted)
}

// NewResult creates a new result with the start time stamped.
func NewResult() *Result {
	return &Result{
		Metadata: ResultMetadata{StartTime: time.Now()},
	}
}

// Finalize calculates duration and marks completion.
func (r *Result) Finalize() {
	r.Metadata.EndTime = time.Now()
	r.Metadata.Duration = r.Metadata.EndTime.Sub(r.Metadata.StartTime)
}
