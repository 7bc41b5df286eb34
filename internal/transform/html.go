package transform

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	// groundingMarkup matches the provider's reference/detection tokens.
	groundingMarkup = regexp.MustCompile(`<\|/?(?:ref|det|grounding)\|>`)

	// coordinates matches [[x1,y1,x2,y2]] boxes.
	coordinates = regexp.MustCompile(`\[\[\s*\d+\s*,\s*\d+\s*,\s*\d+\s*,\s*\d+\s*\]\]`)

	blankRuns = regexp.MustCompile(`\n{3,}`)
)

// CleanHTMLTags strips OCR markup and HTML from s and returns plain text.
// Table cells are separated by tabs and block elements end lines.
func CleanHTMLTags(s string) string {
	s = groundingMarkup.ReplaceAllString(s, "")
	s = coordinates.ReplaceAllString(s, "")

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return tidy(sb.String())

		case html.TextToken:
			sb.Write(z.Text())

		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6", "table":
				sb.WriteByte('\n')
			case "td", "th":
				if tt == html.EndTagToken {
					sb.WriteByte('\t')
				}
			}
		}
	}
}

// tidy trims trailing spaces per line and collapses blank runs.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
