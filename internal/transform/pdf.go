// Package transform holds the pure content transforms applied between the
// caller and the remote backend: PDF text extraction, storage encodings,
// previews and OCR markup handling.
package transform

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// PDF errors.
var (
	// ErrPDFParse indicates the bytes are not a readable PDF document.
	ErrPDFParse = fmt.Errorf("%w: failed to extract text from PDF", domain.ErrValidation)

	// ErrEmptyPDFText indicates a readable PDF without a text layer.
	ErrEmptyPDFText = fmt.Errorf("%w: PDF contains no extractable text, likely a scanned or protected document", domain.ErrValidation)
)

// pdfMagic is the header every PDF document starts with.
var pdfMagic = []byte("%PDF-")

// ExtractPDFText returns the text of every page joined by blank lines.
func ExtractPDFText(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", ErrPDFParse
	}

	// The parser panics on some malformed content streams.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrPDFParse, p)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPDFParse, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrPDFParse, i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n\n")
	}

	text = strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyPDFText
	}
	return text, nil
}

// HasPDFMagic reports whether data starts with the PDF header.
func HasPDFMagic(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}
