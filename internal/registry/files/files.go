// Package files implements the registry contracts on top of a local
// directory of YAML files. Each record lives in its own file named after its
// identity, the revision pointer and sync history live in a marker file, and
// work-queue entries live under a queue/ subdirectory. It is the default
// backend for local runs and for inspecting sync output by hand.
package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/policysync/pkg/constants"
	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/policies"
	"github.com/agentstation/policysync/pkg/registry"
)

const (
	recordSuffix = ".yaml"
	syncFilename = "sync.yaml"
	queueDirname = "queue"
)

// syncMarker is the on-disk shape of the revision pointer file. It keeps the
// latest pointer plus a bounded history of completed runs.
type syncMarker struct {
	Revision string                  `yaml:"revision"`
	History  []policies.SyncMetadata `yaml:"history,omitempty"`
}

// defaultHistoryLimit bounds the number of completed runs retained in
// sync.yaml.
const defaultHistoryLimit = 20

// Registry stores one YAML file per record under a root directory.
type Registry struct {
	mu           sync.Mutex
	path         string
	historyLimit int
}

// Option configures a files Registry.
type Option func(*Registry) error

// WithHistoryLimit overrides how many completed sync runs sync.yaml retains.
func WithHistoryLimit(n int) Option {
	return func(r *Registry) error {
		if n <= 0 {
			return &errors.ValidationError{Field: "history_limit", Value: n, Message: "must be positive"}
		}
		r.historyLimit = n
		return nil
	}
}

// New returns a Registry rooted at path, creating the directory tree if
// needed.
func New(path string, opts ...Option) (*Registry, error) {
	if path == "" {
		return nil, &errors.ValidationError{
			Field:   "path",
			Message: "registry path is required",
		}
	}

	r := &Registry{path: path, historyLimit: defaultHistoryLimit}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Join(path, queueDirname), constants.DirPermissions); err != nil {
		return nil, errors.WrapIO("create", path, err)
	}
	return r, nil
}

// Compile-time interface checks.
var (
	_ registry.Registry  = (*Registry)(nil)
	_ registry.WorkQueue = (*Registry)(nil)
)

// Snapshot reads every record file under the root, optionally restricted to
// identities with the given prefix.
func (r *Registry) Snapshot(ctx context.Context, prefix string) (map[string]policies.RegistryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.path)
	if err != nil {
		return nil, errors.WrapIO("read", r.path, err)
	}

	records := make(map[string]policies.RegistryRecord, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordSuffix) || entry.Name() == syncFilename {
			continue
		}

		identity := strings.TrimSuffix(entry.Name(), recordSuffix)
		if prefix != "" && !strings.HasPrefix(identity, prefix) {
			continue
		}

		record, err := r.readRecord(entry.Name())
		if err != nil {
			return nil, err
		}
		records[record.Identity] = record
	}
	return records, nil
}

// PutMany writes each record to its own file. A failed write does not stop
// the remainder of the batch.
func (r *Registry) PutMany(ctx context.Context, records []policies.RegistryRecord) []registry.ItemError {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failures []registry.ItemError
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			failures = append(failures, registry.ItemError{Identity: record.Identity, Err: err})
			continue
		}
		if err := r.writeYAML(r.recordPath(record.Identity), record); err != nil {
			failures = append(failures, registry.ItemError{Identity: record.Identity, Err: err})
		}
	}
	return failures
}

// DeleteMany removes record files. Absent files are not an error.
func (r *Registry) DeleteMany(ctx context.Context, identities []string) []registry.ItemError {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failures []registry.ItemError
	for _, identity := range identities {
		if err := ctx.Err(); err != nil {
			failures = append(failures, registry.ItemError{Identity: identity, Err: err})
			continue
		}
		if err := os.Remove(r.recordPath(identity)); err != nil && !os.IsNotExist(err) {
			failures = append(failures, registry.ItemError{Identity: identity, Err: errors.WrapIO("delete", r.recordPath(identity), err)})
		}
	}
	return failures
}

// LastRevision reads the revision pointer from the marker file, returning ""
// when no sync has completed yet.
func (r *Registry) LastRevision(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	marker, err := r.readMarker()
	if err != nil {
		return "", err
	}
	return marker.Revision, nil
}

// SetLastRevision advances the pointer and prepends the run's metadata to the
// retained history.
func (r *Registry) SetLastRevision(_ context.Context, meta policies.SyncMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	marker, err := r.readMarker()
	if err != nil {
		return err
	}

	marker.Revision = meta.Revision
	marker.History = append([]policies.SyncMetadata{meta}, marker.History...)
	if len(marker.History) > r.historyLimit {
		marker.History = marker.History[:r.historyLimit]
	}
	return r.writeYAML(filepath.Join(r.path, syncFilename), marker)
}

// EnqueueMany writes one queue file per work item, keyed by identity so a
// newer notification for the same document replaces the older one.
func (r *Registry) EnqueueMany(ctx context.Context, items []policies.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(r.path, queueDirname, item.Identity+recordSuffix)
		if err := r.writeYAML(path, item); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue removes the pending queue file for the identity, if any.
func (r *Registry) Dequeue(_ context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.path, queueDirname, identity+recordSuffix)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WrapIO("delete", path, err)
	}
	return nil
}

func (r *Registry) recordPath(identity string) string {
	return filepath.Join(r.path, identity+recordSuffix)
}

func (r *Registry) readRecord(filename string) (policies.RegistryRecord, error) {
	path := filepath.Join(r.path, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return policies.RegistryRecord{}, errors.WrapIO("read", path, err)
	}

	var record policies.RegistryRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return policies.RegistryRecord{}, errors.WrapParse("yaml", path, err)
	}
	return record, nil
}

func (r *Registry) readMarker() (syncMarker, error) {
	path := filepath.Join(r.path, syncFilename)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return syncMarker{}, nil
	}
	if err != nil {
		return syncMarker{}, errors.WrapIO("read", path, err)
	}

	var marker syncMarker
	if err := yaml.Unmarshal(data, &marker); err != nil {
		return syncMarker{}, errors.WrapParse("yaml", path, err)
	}
	return marker, nil
}

func (r *Registry) writeYAML(path string, v any) error {
	data, err := yaml.MarshalWithOptions(v, yaml.Indent(2))
	if err != nil {
		return errors.WrapParse("yaml", path, err)
	}
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}
