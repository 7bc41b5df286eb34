package transform

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// Encoding names how file content is represented on the backend or in a read.
type Encoding string

const (
	EncodingText    Encoding = "text"
	EncodingBase64  Encoding = "base64"
	EncodingPDFText Encoding = "pdf-text"
)

// base64Probe is the prefix length inspected by LooksLikeBase64.
const base64Probe = 100

// TruncationMarker is appended to truncated previews.
const TruncationMarker = "\n\n... (truncated)"

// ToStorageContent converts uploaded bytes into the string stored on the backend.
// PDFs become their extracted text, text/* is kept with invalid UTF-8 dropped,
// anything else is base64 encoded.
func ToStorageContent(mimeType string, data []byte) (string, Encoding, error) {
	switch {
	case mimeType == "application/pdf":
		text, err := ExtractPDFText(data)
		if err != nil {
			return "", "", err
		}
		return text, EncodingPDFText, nil

	case strings.HasPrefix(mimeType, "text/"):
		return strings.ToValidUTF8(string(data), ""), EncodingText, nil

	default:
		return base64.StdEncoding.EncodeToString(data), EncodingBase64, nil
	}
}

// LooksLikeBase64 reports whether s is long and starts with 100 characters of
// the standard base64 alphabet that decode cleanly.
func LooksLikeBase64(s string) bool {
	if len(s) <= base64Probe {
		return false
	}
	probe := s[:base64Probe]
	for i := 0; i < len(probe); i++ {
		c := probe[i]
		isAlpha := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
		if !isAlpha && c != '+' && c != '/' && c != '=' {
			return false
		}
	}
	_, err := base64.StdEncoding.DecodeString(probe)
	return err == nil
}

// IsPDFContent reports whether backend content is a PDF, either raw or base64
// encoded, and returns its bytes when it is.
func IsPDFContent(content string) (bool, []byte) {
	if strings.HasPrefix(content, string(pdfMagic)) {
		return true, []byte(content)
	}
	if !LooksLikeBase64(content) {
		return false, nil
	}
	head, err := base64.StdEncoding.DecodeString(content[:20])
	if err != nil || !HasPDFMagic(head) {
		return false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return false, nil
	}
	return true, raw
}

// DecodeContent returns the original bytes of backend content.
// Base64 content is decoded; anything else is returned as-is.
func DecodeContent(content string) []byte {
	if LooksLikeBase64(content) {
		if raw, err := base64.StdEncoding.DecodeString(content); err == nil {
			return raw
		}
	}
	return []byte(content)
}

// Truncate cuts s to max runes, appending TruncationMarker when it did.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:max]) + TruncationMarker, true
}

// Preview truncates s to max runes of source text and escapes the result for
// HTML display. Cutting before escaping keeps entities whole.
func Preview(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return html.EscapeString(s), false
	}
	runes := []rune(s)
	return html.EscapeString(string(runes[:max])) + TruncationMarker, true
}

// FormatSize renders a byte count for humans.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
