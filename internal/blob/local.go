package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects as files under a root directory.
type LocalStore struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the root directory if needed. baseURL, when set, is
// used to build object URLs; otherwise URL returns a file:// URL.
func NewLocalStore(root, baseURL string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{
		root:    abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With(slog.String("component", "local_blob_store")),
	}, nil
}

func (s *LocalStore) fullPath(p string) (string, string, error) {
	key, err := cleanKey(p)
	if err != nil {
		return "", "", err
	}
	return key, filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Save implements Store. The file is written to a temporary name and renamed
// so readers never observe a partial object.
func (s *LocalStore) Save(_ context.Context, data []byte, p string) (string, error) {
	key, full, err := s.fullPath(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("failed to move blob into place: %w", err)
	}

	s.logger.Debug("blob saved", slog.String("path", key), slog.Int("size", len(data)))
	return key, nil
}

// Get implements Store.
func (s *LocalStore) Get(_ context.Context, p string) ([]byte, error) {
	_, full, err := s.fullPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(_ context.Context, p string) (bool, error) {
	_, full, err := s.fullPath(p)
	if err != nil {
		return false, err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete blob: %w", err)
	}
	return true, nil
}

// Exists implements Store.
func (s *LocalStore) Exists(_ context.Context, p string) (bool, error) {
	_, full, err := s.fullPath(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// URL implements Store.
func (s *LocalStore) URL(_ context.Context, p string) (string, error) {
	key, full, err := s.fullPath(p)
	if err != nil {
		return "", err
	}
	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String(), nil
}
