// Package extract converts uploaded source documents into normalized plain
// text ready for chunking.
//
// Supported media types are plain text, PDF and DOCX. Extraction strips
// control characters but preserves newlines and tabs so the chunker can still
// see paragraph structure.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedMediaType indicates a media type no extractor handles.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrExtractionFailed indicates the document could not be parsed or
	// yielded no usable text.
	ErrExtractionFailed = errors.New("extraction failed")
)

// Media types accepted by Extract.
const (
	MediaTypeText     = "text/plain"
	MediaTypeMarkdown = "text/markdown"
	MediaTypePDF      = "application/pdf"
	MediaTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor extracts plain text from documents by media type.
type Extractor struct {
	logger *zap.Logger
}

// New creates an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Supported reports whether Extract handles the given media type.
func Supported(mediaType string) bool {
	switch normalizeMediaType(mediaType) {
	case MediaTypeText, MediaTypeMarkdown, MediaTypePDF, MediaTypeDOCX:
		return true
	}
	return false
}

// Extract returns the normalized text of the document.
//
// Unknown media types return ErrUnsupportedMediaType. Parse failures and PDFs
// with no extractable text return ErrExtractionFailed. A plain-text document
// that is genuinely empty extracts to the empty string without error; the
// ingestion layer decides what to do with it.
func (e *Extractor) Extract(ctx context.Context, mediaType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	normalized := normalizeMediaType(mediaType)

	var (
		text string
		err  error
	)
	switch normalized {
	case MediaTypeText, MediaTypeMarkdown:
		text, err = extractPlainText(data)
	case MediaTypePDF:
		text, err = extractPDF(data)
	case MediaTypeDOCX:
		text, err = extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}
	if err != nil {
		return "", err
	}

	text = stripControl(text)

	e.logger.Debug("extracted document",
		zap.String("media_type", normalized),
		zap.Int("bytes_in", len(data)),
		zap.Int("runes_out", utf8.RuneCountInString(text)),
	)

	return text, nil
}

// normalizeMediaType lowercases the type and drops parameters such as
// charset.
func normalizeMediaType(mediaType string) string {
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return parsed
}

func extractPlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrExtractionFailed)
	}
	return string(data), nil
}

// extractPDF concatenates the plain text of every page. Scanned PDFs carry no
// text layer and come back empty, which is reported as a failure rather than
// silently ingesting nothing.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parsing PDF: %v", ErrExtractionFailed, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: reading PDF page %d: %v", ErrExtractionFailed, i, err)
		}
		if pageText == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: PDF contains no extractable text", ErrExtractionFailed)
	}
	return text, nil
}

// extractDOCX renders every paragraph and table of the document body on its
// own line.
func extractDOCX(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: parsing DOCX: %v", ErrExtractionFailed, err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch block := item.(type) {
		case *docx.Paragraph:
			sb.WriteString(block.String())
			sb.WriteString("\n")
		case *docx.Table:
			sb.WriteString(block.String())
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// stripControl removes control characters while keeping newlines and tabs,
// and replaces invalid rune encodings with nothing.
func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t':
			return r
		case utf8.RuneError:
			return -1
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, text)
}
