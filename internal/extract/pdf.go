// Package extract turns an uploaded PDF into ordered pages of plain text.
// Extraction is delegated to the pdftotext tool; the command seam exists so
// tests can run without poppler installed.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrUnreadableDocument is returned for corrupt, encrypted or image-only
// input that yields no extractable text.
var ErrUnreadableDocument = errors.New("document is unreadable")

// Page is one page of extracted text with its 1-based page number.
type Page struct {
	Number int
	Text   string
}

// CommandRunner executes an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type Extractor struct {
	runner CommandRunner
}

func NewExtractor() *Extractor {
	return &Extractor{runner: execRunner{}}
}

// NewExtractorWithRunner is used by tests to substitute the external tool.
func NewExtractorWithRunner(runner CommandRunner) *Extractor {
	return &Extractor{runner: runner}
}

// Pages extracts the text of every page of the PDF at path. pdftotext
// separates pages with a form feed, which is how the page markers are
// recovered.
func (e *Extractor) Pages(ctx context.Context, path string) ([]Page, error) {
	out, err := e.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("text extraction failed for %s: %w", path, ErrUnreadableDocument)
	}

	raw := strings.Split(string(out), "\f")
	var pages []Page
	for i, text := range raw {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no text in %s: %w", path, ErrUnreadableDocument)
	}
	return pages, nil
}
