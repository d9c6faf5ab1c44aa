// Package blob stores uploaded file content. Callers depend on the Store
// interface; the filesystem, Google Cloud Storage and in-memory variants are
// interchangeable.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no object exists at the path.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidPath is returned for paths that escape the store root.
var ErrInvalidPath = errors.New("invalid blob path")

// Store is the capability interface of a blob backend.
type Store interface {
	// Save writes data at path and returns the stored path.
	Save(ctx context.Context, data []byte, path string) (string, error)
	// Get reads the object at path. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, path string) ([]byte, error)
	// Delete removes the object and reports whether it existed.
	Delete(ctx context.Context, path string) (bool, error)
	Exists(ctx context.Context, path string) (bool, error)
	// URL returns a location the object can be fetched from.
	URL(ctx context.Context, path string) (string, error)
}

// GeneratePath returns tenants/{tenant}/{YYYY}/{MM}/{uuid}_{filename}.
func GeneratePath(tenantID uuid.UUID, filename string, now time.Time) string {
	return fmt.Sprintf("tenants/%s/%04d/%02d/%s_%s",
		tenantID, now.Year(), int(now.Month()), uuid.New(), SanitizeFilename(filename))
}

// SanitizeFilename strips directory components and characters that are
// unsafe in object keys.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '/', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			return '_'
		default:
			return r
		}
	}, name)
	if name == "." || name == ".." || name == "" {
		return "file"
	}
	return name
}

// ComputeHash returns the hex SHA-256 of data.
func ComputeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DetectMimeType guesses the MIME type from the filename extension and
// falls back to sniffing the content.
func DetectMimeType(filename string, data []byte) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			if base, _, err := mime.ParseMediaType(t); err == nil {
				return base
			}
			return t
		}
	}
	if len(data) > 0 {
		return mimetype.Detect(data).String()
	}
	return "application/octet-stream"
}

func cleanKey(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if p == "" || p == "." {
		return "", ErrInvalidPath
	}
	return p, nil
}
