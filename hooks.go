package policysync

import (
	"sync"

	"github.com/agentstation/policysync/pkg/policies"
	"github.com/agentstation/policysync/pkg/reconciler"
)

// Hook function types for document events
type (
	// DocumentAddedHook is called when a document becomes tracked
	DocumentAddedHook func(record policies.RegistryRecord)

	// DocumentUpdatedHook is called when a record is replaced
	DocumentUpdatedHook func(old, new policies.RegistryRecord)

	// DocumentRemovedHook is called when an identity becomes untracked
	DocumentRemovedHook func(identity string)
)

// hooks manages event callbacks for registry changes
type hooks struct {
	mu                sync.RWMutex
	onDocumentAdded   []DocumentAddedHook
	onDocumentUpdated []DocumentUpdatedHook
	onDocumentRemoved []DocumentRemovedHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnDocumentAdded registers a callback for newly tracked documents.
func (c *client) OnDocumentAdded(fn DocumentAddedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.onDocumentAdded = append(c.hooks.onDocumentAdded, fn)
}

// OnDocumentUpdated registers a callback for replaced records.
func (c *client) OnDocumentUpdated(fn DocumentUpdatedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.onDocumentUpdated = append(c.hooks.onDocumentUpdated, fn)
}

// OnDocumentRemoved registers a callback for untracked identities.
func (c *client) OnDocumentRemoved(fn DocumentRemovedHook) {
	c.hooks.mu.Lock()
	defer c.hooks.mu.Unlock()
	c.hooks.onDocumentRemoved = append(c.hooks.onDocumentRemoved, fn)
}

// trigger fires the registered callbacks for a persisted reconciliation.
// The snapshot provides the pre-run records for update callbacks.
func (h *hooks) trigger(snapshot map[string]policies.RegistryRecord, result *reconciler.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, record := range result.ToAdd {
		for _, hook := range h.onDocumentAdded {
			hook(record)
		}
	}

	for _, record := range result.ToUpdate {
		old := snapshot[record.Identity]
		for _, hook := range h.onDocumentUpdated {
			hook(old, record)
		}
	}

	for _, identity := range result.ToDelete {
		for _, hook := range h.onDocumentRemoved {
			hook(identity)
		}
	}
}
