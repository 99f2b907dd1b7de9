// Package extract pulls scannable text out of document files.
package extract

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel/attribute"

	piiotel "github.com/dativo-io/piiscan/internal/otel"
)

var tracer = piiotel.Tracer("github.com/dativo-io/piiscan/internal/extract")

// DefaultMaxBytes caps the size of a document handed to the scanner.
const DefaultMaxBytes = 10 << 20

var (
	// ErrUnsupportedFormat is returned for file extensions with no extractor.
	ErrUnsupportedFormat = errors.New("unsupported file type")
	// ErrTooLarge is returned when a document exceeds the size limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// Extractor extracts text content from plain-text and HTML documents.
// Offsets reported by a scan refer to the extracted text.
type Extractor struct {
	maxSize int64
	policy  *bluemonday.Policy
}

// NewExtractor creates an extractor. maxBytes <= 0 uses DefaultMaxBytes.
func NewExtractor(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{maxSize: maxBytes, policy: bluemonday.StrictPolicy()}
}

// Extract reads path and returns its text.
// Supported: .txt, .md, .csv, .log, .jsonl and extensionless files as-is;
// .html/.htm with all markup, scripts and styles stripped.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.Size() > e.maxSize {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, info.Size(), e.maxSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file %s: %w", path, err)
	}
	return e.ExtractBytes(ctx, filepath.Base(path), content)
}

// ExtractBytes is like Extract for in-memory content; name selects the format.
func (e *Extractor) ExtractBytes(ctx context.Context, name string, content []byte) (string, error) {
	_, span := tracer.Start(ctx, "extract.document")
	defer span.End()

	if int64(len(content)) > e.maxSize {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(content), e.maxSize)
	}
	ext := strings.ToLower(filepath.Ext(name))
	span.SetAttributes(
		attribute.String("extract.format", ext),
		attribute.Int("extract.bytes", len(content)),
	)

	switch ext {
	case "", ".txt", ".md", ".csv", ".log", ".jsonl":
		return string(content), nil
	case ".html", ".htm":
		// StrictPolicy escapes entities; undo that so values like "a&b"
		// scan as written.
		return html.UnescapeString(e.policy.Sanitize(string(content))), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}
