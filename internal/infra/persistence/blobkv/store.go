// Package blobkv stores each persisted snapshot as one object in a blob.Store,
// so snapshots can live in a filesystem directory or an S3 bucket.
package blobkv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	blobcore "telecare/internal/blob/core"
	"telecare/internal/persistence/core"
)

var _ core.Backend = (*Store)(nil)

const (
	defaultPrefix = "snapshots"
	objectSuffix  = ".json"
)

// Store adapts a blob store to the key/value backend contract.
type Store struct {
	blobs  blobcore.Store
	prefix string
}

// NewStore wraps blobs. An empty prefix uses "snapshots".
func NewStore(blobs blobcore.Store, prefix string) (*Store, error) {
	if blobs == nil {
		return nil, errors.New("blobkv: blob store required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{blobs: blobs, prefix: prefix}, nil
}

func (s *Store) objectKey(key string) string {
	return s.prefix + "/" + url.QueryEscape(key) + objectSuffix
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	payload, _, err := s.blobs.Get(ctx, s.objectKey(key))
	if errors.Is(err, blobcore.ErrNotFound) {
		return nil, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return payload, nil
}

func (s *Store) Write(ctx context.Context, key string, payload []byte) error {
	_, err := s.blobs.Put(ctx, s.objectKey(key), payload, blobcore.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"store-key": key},
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.blobs.Delete(ctx, s.objectKey(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	objs, err := s.blobs.List(ctx, s.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	keys := make([]string, 0, len(objs))
	for _, obj := range objs {
		name := strings.TrimPrefix(obj.Key, s.prefix+"/")
		if !strings.HasSuffix(name, objectSuffix) || strings.Contains(name, "/") {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(name, objectSuffix))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) Driver() core.Driver { return core.DriverBlob }

// Close is a no-op; the blob store has no connection to release.
func (s *Store) Close() error { return nil }
