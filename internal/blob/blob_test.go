package blob

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePath(t *testing.T) {
	t.Parallel()
	tenant := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	now := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)

	p := GeneratePath(tenant, "Annual Report.pdf", now)
	pattern := regexp.MustCompile(`^tenants/11111111-1111-1111-1111-111111111111/2026/03/[0-9a-f-]{36}_Annual Report\.pdf$`)
	assert.Regexp(t, pattern, p)

	assert.NotEqual(t, p, GeneratePath(tenant, "Annual Report.pdf", now), "paths never collide")
	assert.True(t, strings.HasSuffix(GeneratePath(tenant, "../../etc/passwd", now), "_passwd"))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "report.pdf", SanitizeFilename("report.pdf"))
	assert.Equal(t, "evil.txt", SanitizeFilename(`C:\temp\evil.txt`))
	assert.Equal(t, "a_b.txt", SanitizeFilename("a:b.txt"))
	assert.Equal(t, "file", SanitizeFilename(".."))
}

func TestComputeHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		ComputeHash([]byte("hello world")))
}

func TestDetectMimeType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "application/pdf", DetectMimeType("a.pdf", nil))
	assert.Equal(t, "text/markdown", DetectMimeType("a.md", nil))
	assert.Equal(t, "text/plain", DetectMimeType("a.txt", []byte("hi")))
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		DetectMimeType("a.docx", nil))
	assert.Equal(t, "application/pdf", DetectMimeType("noext", []byte("%PDF-1.4\n%...")))
	assert.Equal(t, "application/octet-stream", DetectMimeType("noext", nil))
}

func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	p := "tenants/t/2026/01/abc_notes.txt"

	ok, err := s.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, p)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := s.Save(ctx, []byte("hello"), p)
	require.NoError(t, err)
	assert.Equal(t, p, stored)

	data, err := s.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	ok, err = s.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := s.URL(ctx, p)
	require.NoError(t, err)
	assert.Contains(t, u, "abc_notes.txt")

	deleted, err := s.Delete(ctx, p)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, p)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	storeContract(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s, err := NewLocalStore(root, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	storeContract(t, s)
}

func TestLocalStore_StaysInsideRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s, err := NewLocalStore(root, "https://files.example.com/", nil)
	require.NoError(t, err)

	key, err := s.Save(context.Background(), []byte("x"), "../../outside.txt")
	require.NoError(t, err)
	assert.Equal(t, "outside.txt", key)

	_, err = os.Stat(filepath.Join(root, "outside.txt"))
	assert.NoError(t, err)

	u, err := s.URL(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/outside.txt", u)

	_, err = s.Save(context.Background(), []byte("x"), "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
