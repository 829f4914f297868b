package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/thinkbook-lm/thinkbook/internal/core"
)

// Parser turns a file on disk into one UTF-8 text string.
type Parser interface {
	Parse(ctx context.Context, path string) (string, error)
}

// Registry dispatches by file extension over a table fixed at
// construction time. No runtime self-registration: what you see below
// is everything the service can parse.
type Registry struct {
	parsers map[string]Parser
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	text := &TextParser{}
	doc := &DocconvParser{}

	parsers := map[string]Parser{
		".txt":      text,
		".md":       text,
		".markdown": text,
		".csv":      text,
		".log":      text,

		".pdf":  doc,
		".doc":  doc,
		".docx": doc,
		".html": doc,
		".htm":  doc,
		".rtf":  doc,
		".odt":  doc,
		".png":  doc,
		".jpg":  doc,
		".jpeg": doc,
		".tiff": doc,
	}

	return &Registry{parsers: parsers, logger: logger}
}

// Supported reports whether any parser handles the extension.
func (r *Registry) Supported(ext string) bool {
	_, ok := r.parsers[strings.ToLower(ext)]
	return ok
}

// Extract returns the file's text. Failure modes are distinguishable:
// core.ErrNoParser for an unknown extension, *core.ExtractionError when
// a parser ran but yielded nothing usable.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	p, ok := r.parsers[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrNoParser, ext)
	}

	text, err := p.Parse(ctx, path)
	if err != nil {
		r.logger.Warn("extraction failed",
			zap.String("path", path),
			zap.Error(err))
		return "", &core.ExtractionError{Path: path, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &core.ExtractionError{Path: path, Err: errors.New("no text extracted")}
	}
	return text, nil
}

// TextParser reads plain-text formats verbatim.
type TextParser struct{}

func (p *TextParser) Parse(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DocconvParser delegates binary formats (PDF, DOCX, HTML, images via
// OCR) to docconv, which picks the converter from the file's MIME type.
type DocconvParser struct{}

func (p *DocconvParser) Parse(ctx context.Context, path string) (string, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", fmt.Errorf("docconv: %w", err)
	}
	return res.Body, nil
}
