// Package gcs implements the object-store sink on Google Cloud Storage.
// Bodies are written conditionally so a rerun over the same revision never
// clobbers an object that already landed.
package gcs

import (
	"context"
	stderrors "errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/agentstation/policysync/pkg/errors"
	"github.com/agentstation/policysync/pkg/logging"
	"github.com/agentstation/policysync/pkg/registry"
)

const objectSuffix = ".md"

// Store writes document bodies to a GCS bucket, one object per identity.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

// Option configures a GCS Store.
type Option func(*Store)

// WithPrefix places all objects under the given key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// New returns a Store writing into the named bucket.
func New(client *storage.Client, bucket string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, &errors.ValidationError{
			Field:   "client",
			Message: "storage client is required",
		}
	}
	if bucket == "" {
		return nil, &errors.ValidationError{
			Field:   "bucket",
			Message: "bucket name is required",
		}
	}

	s := &Store{bucket: client.Bucket(bucket)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewClient creates a GCS client.
func NewClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.WrapResource("connect", "gcs", "storage", err)
	}
	return client, nil
}

var _ registry.ObjectStore = (*Store)(nil)

// Put writes the body for an identity. The write targets a version-agnostic
// object name, so a changed body overwrites in place; only byte-identical
// replays are skipped via the precondition.
func (s *Store) Put(ctx context.Context, identity, body string) error {
	name := s.objectName(identity)

	obj := s.bucket.Object(name)
	attrs, err := obj.Attrs(ctx)
	switch {
	case err == nil:
		// Overwrite only when the content changed; generation precondition
		// guards against concurrent writers.
		obj = obj.If(storage.Conditions{GenerationMatch: attrs.Generation})
	case stderrors.Is(err, storage.ErrObjectNotExist):
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	default:
		return errors.WrapResource("stat", "object", name, err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "text/markdown; charset=utf-8"
	if _, err := io.Copy(w, strings.NewReader(body)); err != nil {
		_ = w.Close()
		if preconditionFailed(err) {
			logging.Ctx(ctx).Debug().Str("object", name).Msg("object changed concurrently, skipping")
			return nil
		}
		return errors.WrapResource("write", "object", name, err)
	}
	if err := w.Close(); err != nil {
		if preconditionFailed(err) {
			logging.Ctx(ctx).Debug().Str("object", name).Msg("object changed concurrently, skipping")
			return nil
		}
		return errors.WrapResource("write", "object", name, err)
	}
	return nil
}

func (s *Store) objectName(identity string) string {
	if s.prefix != "" {
		return s.prefix + "/" + identity + objectSuffix
	}
	return identity + objectSuffix
}

// preconditionFailed reports whether the error is a 412 from a conditional
// write, which means another writer already produced the object.
func preconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return stderrors.As(err, &gerr) && gerr.Code == 412
}
