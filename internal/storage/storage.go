// Package storage provides the object stores finished reports are exported to.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts where report artifacts end up.
// Implementations are the local filesystem and S3-compatible object stores.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to the local file at localPath.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures an ObjectStorage.
type Config struct {
	// Type is none, local, or s3
	Type string

	// Path is the base directory for local storage
	Path string

	// Bucket and S3 configure s3 storage
	Bucket string
	S3     S3Config
}

// New builds the storage named by cfg.Type. It returns nil for type "none".
func New(ctx context.Context, cfg Config) (ObjectStorage, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "local":
		local, err := NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return local, nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, errors.New("s3 storage requires a bucket")
		}
		remote, err := NewS3Storage(ctx, cfg.Bucket, cfg.S3)
		if err != nil {
			return nil, err
		}
		return remote, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
