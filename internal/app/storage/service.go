/*
Package storage presigns uploads of profile images to S3-compatible object
storage.

The server never handles image bytes: it validates what the browser intends
to upload, hands out a short-lived PUT URL scoped to the user, verifies the
object afterwards and removes images a profile no longer references.
*/
package storage

import (
	"context"
	"time"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// StorageService defines the public interface for the file storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// Stat returns the metadata of the object at key, or ErrObjectNotFound.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Delete removes the file specified by the given key.
	Delete(ctx context.Context, key string) error
}

// NewStorageService is the factory function for StorageService.
// Currently, only S3 compatible implementations are supported.
func NewStorageService(cfg ServiceConfig) (StorageService, error) {
	return newS3Client(cfg)
}
