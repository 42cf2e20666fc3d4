// Package policies defines the core data model for the policysync system:
// documents materialized from the source-of-truth repository, the registry
// records persisted for them, the change sets produced by revision diffing,
// and the work items handed to downstream consumers.
package policies

import (
	"regexp"

	"github.com/agentstation/policysync/pkg/errors"
)

// versionTokenPattern matches a content-addressed version marker: a git blob
// SHA, 40 hexadecimal characters.
var versionTokenPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Document is a single source-of-truth artifact. Documents are value types:
// immutable once constructed, copied freely, owned by no component.
type Document struct {
	// Identity is the stable key derived from the document's path. It is the
	// primary key for all downstream operations and unique within a revision.
	Identity string `json:"identity" yaml:"identity"`

	// Title is the human-readable label derived from content, falling back
	// to Identity when the content carries no level-1 heading.
	Title string `json:"title" yaml:"title"`

	// Body is the full textual content. Opaque to the sync core.
	Body string `json:"body" yaml:"body"`

	// VersionToken is the source-assigned, content-addressed version marker
	// used purely for change detection. Never interpreted or ordered.
	VersionToken string `json:"version_token" yaml:"version_token"`

	// Path is the original location string. Informational only.
	Path string `json:"path" yaml:"path"`
}

// Validate reports whether the document is eligible for reconciliation:
// non-empty identity, path and body, and a well-formed version token.
func (d Document) Validate() error {
	if d.Identity == "" {
		return &errors.ValidationError{Field: "identity", Message: "must not be empty"}
	}
	if !versionTokenPattern.MatchString(d.VersionToken) {
		return &errors.ValidationError{
			Field:   "version_token",
			Value:   d.VersionToken,
			Message: "must be a 40-character hexadecimal content hash",
		}
	}
	if d.Path == "" {
		return &errors.ValidationError{Field: "path", Message: "must not be empty"}
	}
	if d.Body == "" {
		return &errors.ValidationError{Field: "body", Message: "must not be empty"}
	}
	return nil
}
