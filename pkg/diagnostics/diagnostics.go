// Package diagnostics provides a structured, non-fatal warning channel for the
// policysync core. Conditions that must be observable but must never change
// control flow (duplicate identities, fallback titles, dropped fetch failures)
// are reported as events to a Reporter the caller supplies.
package diagnostics

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/policysync/pkg/logging"
)

// EventType identifies the condition an event reports.
type EventType string

const (
	// EventDuplicateIdentity is reported when two current documents collapse
	// to the same identity; the first occurrence wins.
	EventDuplicateIdentity EventType = "duplicate_identity"

	// EventFallbackTitle is reported when a document has no level-1 heading
	// and its title falls back to its identity.
	EventFallbackTitle EventType = "fallback_title"

	// EventFetchFailed is reported when a document body could not be fetched;
	// the document is dropped from the change set.
	EventFetchFailed EventType = "fetch_failed"

	// EventInvalidDocument is reported when a document fails the
	// pre-reconciliation validation gate and is filtered out.
	EventInvalidDocument EventType = "invalid_document"
)

// Event is a single diagnostic occurrence.
type Event struct {
	Type     EventType
	Identity string
	Path     string
	Message  string
	Err      error
}

// Reporter receives diagnostic events. Implementations must not block:
// the core calls Report inline and relies on it returning promptly.
type Reporter interface {
	Report(event Event)
}

// LogReporter writes events to a zerolog logger at warn level.
// It is the default reporter throughout the system.
type LogReporter struct {
	logger *zerolog.Logger
}

// NewLogReporter creates a reporter writing to the given logger,
// or the default logger when nil.
func NewLogReporter(logger *zerolog.Logger) *LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogReporter{logger: logger}
}

// Report implements Reporter.
func (r *LogReporter) Report(event Event) {
	evt := r.logger.Warn().
		Str("event", string(event.Type)).
		Str("identity", event.Identity)
	if event.Path != "" {
		evt = evt.Str("path", event.Path)
	}
	if event.Err != nil {
		evt = evt.Err(event.Err)
	}
	evt.Msg(event.Message)
}

// Collector accumulates events in memory. It is intended for tests and for
// embedders that want to inspect a run's warnings after the fact.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report implements Reporter.
func (c *Collector) Report(event Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// ByType returns the collected events of the given type.
func (c *Collector) ByType(t EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Default returns the reporter used when none is configured.
func Default() Reporter {
	return NewLogReporter(nil)
}
