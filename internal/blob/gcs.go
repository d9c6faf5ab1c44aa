package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore creates a store backed by bucket using application default
// credentials. baseURL, when set, replaces the public storage.googleapis.com
// host in object URLs (for a CDN in front of the bucket).
func NewGCSStore(ctx context.Context, bucket, baseURL string, logger *slog.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With(slog.String("component", "gcs_blob_store"), slog.String("bucket", bucket)),
	}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) object(p string) (*storage.ObjectHandle, string, error) {
	key, err := cleanKey(p)
	if err != nil {
		return nil, "", err
	}
	return s.client.Bucket(s.bucket).Object(key), key, nil
}

// Save implements Store.
func (s *GCSStore) Save(ctx context.Context, data []byte, p string) (string, error) {
	obj, key, err := s.object(p)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := obj.NewWriter(ctx)
	w.ContentType = DetectMimeType(key, data)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.logger.Debug("blob saved", slog.String("path", key), slog.Int("size", len(data)))
	return key, nil
}

// Get implements Store.
func (s *GCSStore) Get(ctx context.Context, p string) ([]byte, error) {
	obj, _, err := s.object(p)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *GCSStore) Delete(ctx context.Context, p string) (bool, error) {
	obj, _, err := s.object(p)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err = obj.Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return true, nil
}

// Exists implements Store.
func (s *GCSStore) Exists(ctx context.Context, p string) (bool, error) {
	obj, _, err := s.object(p)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat GCS object: %w", err)
	}
	return true, nil
}

// URL implements Store.
func (s *GCSStore) URL(_ context.Context, p string) (string, error) {
	key, err := cleanKey(p)
	if err != nil {
		return "", err
	}
	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key), nil
}
