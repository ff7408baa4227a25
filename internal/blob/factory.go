// Package blob opens object stores. Callers depend on blob.Store; the drivers
// stay behind Open.
package blob

import (
	"context"
	"fmt"

	"telecare/internal/blob/core"
	infrafs "telecare/internal/infra/blob/fs"
	inframemory "telecare/internal/infra/blob/memory"
	infras3 "telecare/internal/infra/blob/s3"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Object     = core.Object
	Store      = core.Store
	// S3Config configures the s3 driver.
	S3Config = infras3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound = core.ErrNotFound
	ErrTooLarge = core.ErrTooLarge
)

// Config selects and configures a driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the configured store. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return infrafs.New(cfg.FSRoot)
	case DriverS3:
		return infras3.New(ctx, cfg.S3)
	case DriverMemory:
		return inframemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return inframemory.New() }

// NewMockS3ForTests returns an s3 store talking to an in-process fake bucket.
func NewMockS3ForTests() Store { return infras3.NewMockForTests() }
