package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestDOCXExtractor(t *testing.T) {
	t.Parallel()
	data := buildDOCX(t,
		`<w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> report</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>   </w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Revenue</w:t><w:tab/><w:t>up</w:t><w:br/><w:t>again</w:t></w:r></w:p>`)

	text, err := DOCXExtractor{}.Extract(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report\n\nRevenue\tup\nagain", text)
}

func TestDOCXExtractor_Errors(t *testing.T) {
	t.Parallel()
	_, err := DOCXExtractor{}.Extract(context.Background(), []byte("not a zip"))
	assert.Error(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = DOCXExtractor{}.Extract(context.Background(), buf.Bytes())
	assert.ErrorIs(t, err, ErrNoDocumentPart)
}

func TestPlainTextExtractor(t *testing.T) {
	t.Parallel()
	text, err := PlainTextExtractor{}.Extract(context.Background(), []byte("héllo\nworld"))
	require.NoError(t, err)
	assert.Equal(t, "héllo\nworld", text)

	_, err = PlainTextExtractor{}.Extract(context.Background(), []byte{0xff, 0xfe, 0x00})
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestPDFExtractor_RejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := PDFExtractor{}.Extract(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)
	_, err = PDFExtractor{}.CountPages(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)

	text, err := PDFExtractor{}.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTruncateText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", TruncateText("abc", 10))
	assert.Equal(t, "ab", TruncateText("abc", 2))
	assert.Equal(t, "日本", TruncateText("日本語", 2))
	assert.Equal(t, "abc", TruncateText("abc", 0))
}

func TestConfigurePDFLicense_EmptyKey(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ConfigurePDFLicense(""))
}
