// Package tracker produces the change set between two revisions of the
// source-of-truth repository. With no previous revision it enumerates the
// full document tree; with identical revisions it short-circuits without any
// network or storage call; otherwise it classifies an incremental diff.
package tracker

import (
	"context"

	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/fetcher"
	"github.com/agentstation/policysync/pkg/logging"
	"github.com/agentstation/policysync/pkg/metadata"
	"github.com/agentstation/policysync/pkg/policies"
	"github.com/agentstation/policysync/pkg/source"
)

// Tracker computes change sets for revision transitions.
type Tracker struct {
	repo      source.Repository
	extractor *metadata.Extractor
	fetcher   *fetcher.Fetcher
}

// New creates a Tracker over the given source repository.
func New(repo source.Repository, extractor *metadata.Extractor, f *fetcher.Fetcher) (*Tracker, error) {
	if repo == nil {
		return nil, &errors.ValidationError{Field: "repo", Message: "cannot be nil"}
	}
	if extractor == nil {
		return nil, &errors.ValidationError{Field: "extractor", Message: "cannot be nil"}
	}
	if f == nil {
		return nil, &errors.ValidationError{Field: "fetcher", Message: "cannot be nil"}
	}
	return &Tracker{repo: repo, extractor: extractor, fetcher: f}, nil
}

// Changes returns the documents added, modified and removed between the
// previous and current revisions. An empty previous revision selects the
// first-run mode: the full tree at current is returned as added. Identical
// revisions return an empty change set without touching the source.
//
// Within the output lists ordering is not guaranteed; an identity never
// appears in more than one category.
func (t *Tracker) Changes(ctx context.Context, current, previous string) (*policies.ChangeSet, error) {
	if current == "" {
		return nil, &errors.ValidationError{Field: "current", Message: "revision cannot be empty"}
	}

	logger := logging.FromContext(ctx)

	if previous == current {
		logger.Debug().Str("revision", current).Msg("Revision unchanged, skipping change detection")
		return &policies.ChangeSet{}, nil
	}

	if previous == "" {
		logger.Info().Str("revision", current).Msg("No previous revision, enumerating full tree")
		return t.fullTree(ctx, current)
	}

	logger.Info().
		Str("from", previous).
		Str("to", current).
		Msg("Computing incremental diff")
	return t.incremental(ctx, current, previous)
}

// fullTree materializes every eligible document at the revision as added.
func (t *Tracker) fullTree(ctx context.Context, revision string) (*policies.ChangeSet, error) {
	entries, err := t.repo.Tree(ctx, revision, true)
	if err != nil {
		return nil, errors.WrapResource("enumerate", "tree", revision, err)
	}

	var descriptors []fetcher.Descriptor
	for _, entry := range entries {
		if entry.Kind != source.KindFile || !t.extractor.IsEligible(entry.Path) {
			continue
		}
		descriptors = append(descriptors, fetcher.Descriptor{
			Path:         entry.Path,
			VersionToken: entry.VersionToken,
		})
	}

	changes := &policies.ChangeSet{}
	changes.Added, changes.Failed = t.materialize(ctx, descriptors)
	return changes, nil
}

// incremental classifies the source's revision-to-revision diff. A rename is
// a removal of the old path's identity plus an addition of the new path,
// never an in-place update: identity is path-derived, so a rename changes it.
// Entries failing eligibility on either side are dropped entirely.
func (t *Tracker) incremental(ctx context.Context, current, previous string) (*policies.ChangeSet, error) {
	entries, err := t.repo.Diff(ctx, previous, current)
	if err != nil {
		return nil, errors.WrapResource("diff", "revisions", previous+".."+current, err)
	}

	changes := &policies.ChangeSet{}
	var toAdd, toModify []fetcher.Descriptor

	for _, entry := range entries {
		switch entry.Status {
		case source.DiffRenamed:
			if !t.extractor.IsEligible(entry.PreviousPath) || !t.extractor.IsEligible(entry.Path) {
				continue
			}
			changes.Removed = append(changes.Removed, t.extractor.Identity(entry.PreviousPath))
			toAdd = append(toAdd, fetcher.Descriptor{Path: entry.Path, VersionToken: entry.VersionToken})

		case source.DiffRemoved:
			if !t.extractor.IsEligible(entry.Path) {
				continue
			}
			// Identity comes from the deletion marker alone; content is
			// never fetched for removed entries.
			changes.Removed = append(changes.Removed, t.extractor.Identity(entry.Path))

		case source.DiffAdded:
			if !t.extractor.IsEligible(entry.Path) {
				continue
			}
			toAdd = append(toAdd, fetcher.Descriptor{Path: entry.Path, VersionToken: entry.VersionToken})

		case source.DiffModified:
			if !t.extractor.IsEligible(entry.Path) {
				continue
			}
			toModify = append(toModify, fetcher.Descriptor{Path: entry.Path, VersionToken: entry.VersionToken})
		}
	}

	// All content-requiring entries go through a single batched fetch pass.
	// The destination split is re-derived per descriptor afterwards.
	descriptors := make([]fetcher.Descriptor, 0, len(toAdd)+len(toModify))
	descriptors = append(descriptors, toAdd...)
	descriptors = append(descriptors, toModify...)

	bodies, failures := t.fetcher.Bodies(ctx, descriptors)

	changes.Added = t.assemble(toAdd, bodies)
	changes.Modified = t.assemble(toModify, bodies)
	for _, failure := range failures {
		changes.Failed = append(changes.Failed, failure.Identity)
	}

	return changes, nil
}

// materialize fetches and extracts documents for the descriptors, returning
// the successfully built documents and the identities whose fetch failed.
func (t *Tracker) materialize(ctx context.Context, descriptors []fetcher.Descriptor) ([]policies.Document, []string) {
	bodies, failures := t.fetcher.Bodies(ctx, descriptors)

	docs := t.assemble(descriptors, bodies)
	var failed []string
	for _, failure := range failures {
		failed = append(failed, failure.Identity)
	}
	return docs, failed
}

// assemble extracts a document for every descriptor whose body was fetched.
// Descriptors without a body were already reported as failures and simply do
// not appear in any category.
func (t *Tracker) assemble(descriptors []fetcher.Descriptor, bodies map[string]string) []policies.Document {
	var docs []policies.Document
	for _, desc := range descriptors {
		body, ok := bodies[t.extractor.Identity(desc.Path)]
		if !ok {
			continue
		}
		docs = append(docs, t.extractor.Extract(desc.Path, body, desc.VersionToken))
	}
	return docs
}
