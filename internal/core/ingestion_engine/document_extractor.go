package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"code.sajari.com/docconv"

	"github.com/sitewise-ai/knowledge-engine/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

var blankLines = regexp.MustCompile(`\n{3,}`)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// It handles PDF, DOC/DOCX and plain-text-like uploads.
type DocconvExtractor struct {
	useOCR bool
}

func NewDocconvExtractor(useOCR bool) *DocconvExtractor {
	return &DocconvExtractor{useOCR: useOCR}
}

// ExtractText converts the document bytes to normalized plain text based on
// content type. Extraction failures are returned to the caller; for a
// single-document job they fail the job.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useOCR)
	if err != nil {
		return "", fmt.Errorf("docconv %s: %w", contentType, err)
	}

	// Collapse runs of blank lines and trim line edges.
	lines := strings.Split(res.Body, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text := strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
	return text, nil
}
