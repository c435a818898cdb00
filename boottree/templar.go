package boottree

import (
	"fmt"
	"strings"
	"text/template"
)

// Templar renders path and configuration templates against per-distro
// metadata (local_img_path, web_img_path, plus anything a caller adds).
type Templar struct {
	metadata map[string]any
}

func NewTemplar(metadata map[string]any) *Templar {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Templar{metadata: metadata}
}

// Set adds or replaces a metadata variable.
func (t *Templar) Set(key string, value any) {
	t.metadata[key] = value
}

// Render executes the template text against the metadata. Missing keys are
// an error: a boot file path with an unresolved variable must not be copied
// to a half-rendered location.
func (t *Templar) Render(text string) (string, error) {
	tmpl, err := template.New("templar").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", text, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, t.metadata); err != nil {
		return "", fmt.Errorf("render template %q: %w", text, err)
	}
	return sb.String(), nil
}
