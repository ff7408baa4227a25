// Package core defines the object storage contract shared by the facade in
// internal/blob and the drivers under internal/infra/blob. Objects are small
// documents such as persisted snapshots and are moved as whole byte slices.
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"path"
	"strings"
	"time"
)

// Driver identifies an object store implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// MaxObjectSize bounds a single object. Larger writes fail with ErrTooLarge.
const MaxObjectSize = 8 << 20

var (
	ErrNotFound = errors.New("blob: not found")
	ErrTooLarge = errors.New("blob: object too large")
	ErrBadKey   = errors.New("blob: invalid key")
)

// PutOptions annotates a write.
type PutOptions struct {
	ContentType string
	// Metadata is small flat user metadata stored alongside the object.
	Metadata map[string]string
}

// Object describes a stored object.
type Object struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type,omitempty"`
	ETag        string            `json:"etag,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Store is the object storage contract. Put always replaces.
type Store interface {
	Put(ctx context.Context, key string, body []byte, opts PutOptions) (Object, error)
	// Get returns the object body, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, Object, error)
	// Delete reports whether an object was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns the objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	Driver() Driver
}

// CheckKey rejects empty, absolute and parent-relative keys and returns the
// cleaned form.
func CheckKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty", ErrBadKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrBadKey, key)
		}
	}
	return path.Clean(key), nil
}

// CheckSize enforces MaxObjectSize.
func CheckSize(key string, n int) error {
	if n > MaxObjectSize {
		return fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, key, n)
	}
	return nil
}

// ETag is the content hash used by drivers that compute their own tags.
func ETag(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CloneMetadata copies a metadata map. Nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	return maps.Clone(in)
}
