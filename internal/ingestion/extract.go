package ingestion

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText extracts the plain text of a PDF document held in memory.
// Returns an error for malformed PDFs and for documents that contain no
// extractable text (scanned images, empty pages).
func ExtractPDFText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs; a corrupt upload must
	// surface as a per-file error, not take down the request.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion: malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("ingestion: parse pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("ingestion: extract pdf text: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("ingestion: read pdf text: %w", err)
	}

	text = sb.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("ingestion: pdf contains no extractable text")
	}
	return text, nil
}
