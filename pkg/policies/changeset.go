package policies

import (
	"fmt"
	"strings"
)

// ChangeSet is the added/modified/removed partition produced for one revision
// transition. An identity appears in at most one of the three lists. Removed
// carries identities only; no content is ever fetched for removed entries.
//
// Failed lists identities whose body fetch failed during the transition.
// They appear in no other list and the caller decides whether to withhold
// revision-pointer advancement until they succeed.
type ChangeSet struct {
	Added    []Document `json:"added"`
	Modified []Document `json:"modified"`
	Removed  []string   `json:"removed"`
	Failed   []string   `json:"failed,omitempty"`
}

// HasChanges returns true if any documents were added, modified or removed.
func (c *ChangeSet) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Modified) > 0 || len(c.Removed) > 0
}

// TotalChanges returns the number of changed documents across all categories.
func (c *ChangeSet) TotalChanges() int {
	return len(c.Added) + len(c.Modified) + len(c.Removed)
}

// Documents returns the added and modified documents of the change set,
// the entries that carry content.
func (c *ChangeSet) Documents() []Document {
	docs := make([]Document, 0, len(c.Added)+len(c.Modified))
	docs = append(docs, c.Added...)
	docs = append(docs, c.Modified...)
	return docs
}

// String returns a human-readable summary of the change set.
func (c *ChangeSet) String() string {
	parts := []string{
		fmt.Sprintf("%d added", len(c.Added)),
		fmt.Sprintf("%d modified", len(c.Modified)),
		fmt.Sprintf("%d removed", len(c.Removed)),
	}
	if len(c.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", len(c.Failed)))
	}
	return strings.Join(parts, ", ")
}
