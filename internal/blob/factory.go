package blob

import (
	"context"
	"fmt"

	"sampleflow/internal/infra/blob/fs"
	memorystore "sampleflow/internal/infra/blob/memory"
	infraS3 "sampleflow/internal/infra/blob/s3"
)

// S3Config re-exports the infra S3 configuration type.
type S3Config = infraS3.Config

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open constructs the blob.Store named by cfg.Driver (default fs).
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		store, err := infraS3.New(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed blob.Store rooted at the provided path.
func NewFilesystem(root string) (Store, error) {
	store, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests exposes the in-memory S3 mock for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
