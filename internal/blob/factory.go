// Package blob selects a blob store driver from configuration. Callers
// depend on core.Store; only this package imports the drivers.
package blob

import (
	"context"
	"fmt"

	"itemdb/internal/blob/core"
	"itemdb/internal/config"
	"itemdb/internal/infra/blob/fs"
	"itemdb/internal/infra/blob/memory"
	"itemdb/internal/infra/blob/s3"
)

// Store is the blob store interface.
type Store = core.Store

// Open builds the driver named by cfg.Driver (default fs).
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Driver {
	case config.BlobFilesystem, "":
		return fs.New(cfg.FSRoot)
	case config.BlobS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case config.BlobMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMockS3ForTests exposes the in-memory S3 fake for tests in other packages.
func NewMockS3ForTests() Store { return s3.NewMockForTests() }
