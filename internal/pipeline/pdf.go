package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// ConfigurePDFLicense installs the metered unipdf license key. An empty key
// leaves the library unlicensed.
func ConfigurePDFLicense(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("failed to set pdf license: %w", err)
	}
	return nil
}

// PDFExtractor extracts page text and counts pages with unipdf.
type PDFExtractor struct{}

var (
	_ Extractor   = PDFExtractor{}
	_ PageCounter = PDFExtractor{}
)

func openPDF(data []byte) (*model.PdfReader, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return nil, fmt.Errorf("failed to inspect pdf encryption: %w", err)
	}
	if encrypted {
		ok, err := reader.Decrypt([]byte(""))
		if err != nil || !ok {
			return nil, fmt.Errorf("pdf is password protected")
		}
	}
	return reader, nil
}

// Extract implements Extractor. Pages are joined by a blank line.
func (PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	reader, err := openPDF(data)
	if err != nil {
		return "", err
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("failed to read page count: %w", err)
	}

	parts := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page, err := reader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("failed to create extractor for page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// CountPages implements PageCounter.
func (PDFExtractor) CountPages(_ context.Context, data []byte) (int, error) {
	reader, err := openPDF(data)
	if err != nil {
		return 0, err
	}
	n, err := reader.GetNumPages()
	if err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	return n, nil
}
