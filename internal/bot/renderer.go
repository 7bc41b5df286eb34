package bot

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/prn-tf/owl-middleware/internal/transform"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns reply templates into Telegram HTML.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded reply templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("replies").Funcs(template.FuncMap{
		// raw marks text that was escaped upstream.
		"raw":  func(s string) template.HTML { return template.HTML(s) },
		"size": transform.FormatSize,
		"inc":  func(i int) int { return i + 1 },
		"deref": func(p *int64) int64 {
			if p == nil {
				return 0
			}
			return *p
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse reply templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render executes the template name (without extension) with values.
func (r *Renderer) Render(name string, values any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name+".html", values); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
