package pipeline

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/phrazzld/docintel-api/internal/domain"
)

// DefaultTextLimit is the number of characters of extracted text kept on the
// document.
const DefaultTextLimit = 10000

// ErrInvalidEncoding is returned for text files that are not valid UTF-8.
var ErrInvalidEncoding = errors.New("text is not valid UTF-8")

// Extractor pulls plain text out of a file's bytes.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// PageCounter reports the number of pages of a paginated format.
type PageCounter interface {
	CountPages(ctx context.Context, data []byte) (int, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Extractors maps document types to their extractor. Types without an entry
// produce no text.
type Extractors map[domain.DocumentType]Extractor

// DefaultExtractors returns the extractors for every supported format.
func DefaultExtractors() Extractors {
	text := PlainTextExtractor{}
	return Extractors{
		domain.DocumentTypePDF:      PDFExtractor{},
		domain.DocumentTypeWord:     DOCXExtractor{},
		domain.DocumentTypeText:     text,
		domain.DocumentTypeMarkdown: text,
	}
}

// PlainTextExtractor decodes UTF-8 text and markdown files.
type PlainTextExtractor struct{}

// Extract implements Extractor.
func (PlainTextExtractor) Extract(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}
	return string(data), nil
}

// TruncateText returns at most limit characters of s. A non-positive limit
// keeps everything.
func TruncateText(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
