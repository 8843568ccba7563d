package interfaces

import (
	"context"
	"time"
)

// UploadResult describes a stored object
type UploadResult struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	ETag string `json:"etag,omitempty"`
}

// ObjectStorageService stores recipe images. An empty contentType derives
// the type from the key's extension; unknown extensions fall back to
// application/octet-stream.
type ObjectStorageService interface {
	// UploadFile streams a local file to the bucket
	UploadFile(ctx context.Context, path, key, contentType string) (*UploadResult, error)

	// UploadBuffer stores an in-memory payload
	UploadBuffer(ctx context.Context, data []byte, key, contentType string) (*UploadResult, error)

	// GeneratePresignedUploadURL returns a signed PUT URL
	GeneratePresignedUploadURL(ctx context.Context, key, contentType string, expiresIn time.Duration) (string, error)

	// GeneratePresignedDownloadURL returns a signed GET URL
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// Close releases the client
	Close() error
}
