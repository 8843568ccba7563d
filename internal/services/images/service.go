// Package images stores recipe images in a GCS bucket.
package images

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/ternarybob/arbor"
	"google.golang.org/api/option"

	"github.com/ternarybob/skillet/internal/interfaces"
)

// Config selects the bucket and client credentials
type Config struct {
	Bucket string
	// CredentialsFile is optional; empty uses application default credentials
	CredentialsFile string
	UploadTimeout   time.Duration
}

// Service is the GCS-backed object store for recipe images
type Service struct {
	client        *storage.Client
	bucket        string
	uploadTimeout time.Duration
	logger        arbor.ILogger
}

var _ interfaces.ObjectStorageService = (*Service)(nil)

// NewService connects the GCS client. An empty bucket is a configuration
// error; callers gate on it before constructing the service.
func NewService(ctx context.Context, config Config, logger arbor.ILogger) (*Service, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("image bucket is required")
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	timeout := config.UploadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	logger.Info().Str("bucket", config.Bucket).Msg("Image storage initialized")
	return &Service{
		client:        client,
		bucket:        config.Bucket,
		uploadTimeout: timeout,
		logger:        logger,
	}, nil
}

// UploadFile streams a local file to the bucket
func (s *Service) UploadFile(ctx context.Context, path, key, contentType string) (*interfaces.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return s.upload(ctx, f, key, contentType)
}

// UploadBuffer stores an in-memory payload
func (s *Service) UploadBuffer(ctx context.Context, data []byte, key, contentType string) (*interfaces.UploadResult, error) {
	return s.upload(ctx, bytes.NewReader(data), key, contentType)
}

func (s *Service) upload(ctx context.Context, r io.Reader, key, contentType string) (*interfaces.UploadResult, error) {
	if key == "" {
		return nil, fmt.Errorf("object key is required")
	}
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer for %s: %w", key, err)
	}

	attrs := w.Attrs()
	s.logger.Debug().
		Str("key", key).
		Int64("size", attrs.Size).
		Str("content_type", contentType).
		Msg("Object uploaded")
	return &interfaces.UploadResult{
		Key:  key,
		URL:  fmt.Sprintf("gs://%s/%s", s.bucket, key),
		Size: attrs.Size,
		ETag: attrs.Etag,
	}, nil
}

// GeneratePresignedUploadURL returns a signed PUT URL
func (s *Service) GeneratePresignedUploadURL(ctx context.Context, key, contentType string, expiresIn time.Duration) (string, error) {
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	return s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		ContentType: contentType,
		Expires:     time.Now().Add(expiresIn),
	})
}

// GeneratePresignedDownloadURL returns a signed GET URL
func (s *Service) GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	return s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiresIn),
	})
}

// Close releases the client
func (s *Service) Close() error {
	return s.client.Close()
}

// ContentTypeForKey derives the content type from the key's extension.
// Unknown extensions fall back to application/octet-stream.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(s, ".bmp"):
		return "image/bmp"
	case strings.HasSuffix(s, ".tiff"), strings.HasSuffix(s, ".tif"):
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
