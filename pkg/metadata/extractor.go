// Package metadata derives the stable identity and display title of a policy
// document from its path and content, and decides which source paths are
// eligible to become documents at all. Extraction is pure: no I/O, no
// timestamps, fully deterministic for a given input.
package metadata

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentstation/policysync/pkg/diagnostics"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/policies"
)

// documentSuffixes are the recognized document file suffixes, matched
// case-insensitively against the final path segment.
var documentSuffixes = []string{".md", ".markdown"}

// indexFilename is the well-known index/readme base name rejected in any
// directory, case-insensitively.
const indexFilename = "readme"

// headingPrefix is the level-1 heading marker a title line must start with.
const headingPrefix = "# "

// Extractor derives document metadata and gates path eligibility.
// The zero-configuration extractor from New is ready to use.
type Extractor struct {
	reporter       diagnostics.Reporter
	ignorePatterns []string
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithReporter sets the diagnostics reporter notified when a title falls
// back to the identity. Reporting never changes the extracted values.
func WithReporter(r diagnostics.Reporter) Option {
	return func(e *Extractor) error {
		if r == nil {
			return &errors.ValidationError{Field: "reporter", Message: "cannot be nil"}
		}
		e.reporter = r
		return nil
	}
}

// WithIgnorePatterns adds doublestar glob patterns whose matches are treated
// as ineligible, evaluated after the suffix and index-filename rules.
func WithIgnorePatterns(patterns ...string) Option {
	return func(e *Extractor) error {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return &errors.ValidationError{
					Field:   "ignore_patterns",
					Value:   p,
					Message: "not a valid glob pattern",
				}
			}
		}
		e.ignorePatterns = append(e.ignorePatterns, patterns...)
		return nil
	}
}

// New creates an Extractor.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{reporter: diagnostics.Default()}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Extract builds a Document from a raw (path, content, versionToken) triple.
// The identity is path-derived, the title content-derived with an observable
// fallback to the identity. Lifecycle timestamps are stamped by callers.
func (e *Extractor) Extract(p, content, versionToken string) policies.Document {
	identity := e.Identity(p)

	title, found := title(content)
	if !found {
		title = identity
		e.reporter.Report(diagnostics.Event{
			Type:     diagnostics.EventFallbackTitle,
			Identity: identity,
			Path:     p,
			Message:  "no level-1 heading found, title falls back to identity",
		})
	}

	return policies.Document{
		Identity:     identity,
		Title:        title,
		Body:         content,
		VersionToken: versionToken,
		Path:         p,
	}
}

// Identity derives the stable document key from a path: the final path
// segment with its recognized suffix removed, case-insensitively. Nested
// directories collapse to a flat name.
func (e *Extractor) Identity(p string) string {
	base := path.Base(p)
	lower := strings.ToLower(base)
	for _, suffix := range documentSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return base[:len(base)-len(suffix)]
		}
	}
	return base
}

// IsEligible reports whether a source path may become a document. It rejects
// paths without a recognized suffix, the index/readme filename in any
// directory, and any configured ignore-pattern match. This predicate gates
// both change tracking and reconciliation inputs.
func (e *Extractor) IsEligible(p string) bool {
	if p == "" {
		return false
	}

	base := strings.ToLower(path.Base(p))
	eligible := false
	for _, suffix := range documentSuffixes {
		if strings.HasSuffix(base, suffix) {
			if strings.TrimSuffix(base, suffix) == indexFilename {
				return false
			}
			eligible = true
			break
		}
	}
	if !eligible {
		return false
	}

	for _, pattern := range e.ignorePatterns {
		if doublestar.MatchUnvalidated(pattern, p) {
			return false
		}
	}
	return true
}

// title returns the first level-1 heading of the content, whitespace-trimmed.
// Only a heading marker at the start of a line counts, never mid-line.
func title(content string) (string, bool) {
	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, headingPrefix) {
			continue
		}
		if t := strings.TrimSpace(strings.TrimPrefix(line, headingPrefix)); t != "" {
			return t, true
		}
	}
	return "", false
}
