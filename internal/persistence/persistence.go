// Package persistence is the entry point for snapshot storage. Stores depend
// on persistence.Backend; concrete drivers under internal/infra/persistence
// are only reachable through Open.
package persistence

import (
	"context"
	"fmt"

	"telecare/internal/blob"
	"telecare/internal/infra/persistence/blobkv"
	"telecare/internal/infra/persistence/memory"
	"telecare/internal/infra/persistence/postgres"
	"telecare/internal/infra/persistence/sqlite"
	"telecare/internal/persistence/core"
)

type (
	// Backend stores opaque payloads under namespaced keys.
	Backend = core.Backend
	// Driver identifies a concrete backend.
	Driver = core.Driver
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
	DriverBlob     = core.DriverBlob
)

// ErrNotFound is returned by Backend.Read for unknown keys.
var ErrNotFound = core.ErrNotFound

// Config selects and configures a backend.
type Config struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
	// Blob and BlobPrefix are used by the blob driver.
	Blob       blob.Config
	BlobPrefix string
}

// Open selects a backend from cfg. Defaults to sqlite when the driver is unset.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case DriverBlob:
		blobs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return blobkv.NewStore(blobs, cfg.BlobPrefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// NewMemory returns an in-memory backend for tests.
func NewMemory() Backend { return memory.NewStore() }
