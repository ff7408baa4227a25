// Package core holds the key/value backend contract implemented under
// internal/infra/persistence and consumed through internal/persistence.
package core

import (
	"context"
	"errors"
)

// Driver identifies a concrete persistence backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
	DriverBlob     Driver = "blob"     // one object per key in a blob store
)

// ErrNotFound is returned by Read when a key has never been written or was removed.
var ErrNotFound = errors.New("persistence: key not found")

// Backend stores opaque payloads under namespaced keys. Writes replace the
// previous payload atomically from the reader's point of view.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, payload []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Driver() Driver
	Close() error
}
