package mailer

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/flosch/pongo2/v6"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer holds the compiled email templates, keyed by file name without
// extension ("confirm_signup").
type Renderer struct {
	templates map[string]*pongo2.Template
}

// NewRenderer compiles every embedded template.
func NewRenderer() (*Renderer, error) {
	return newRenderer(templateFS, "templates")
}

func newRenderer(fsys fs.FS, dir string) (*Renderer, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	r := &Renderer{templates: make(map[string]*pongo2.Template, len(entries))}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".html" {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		tpl, err := pongo2.FromString(string(b))
		if err != nil {
			return nil, fmt.Errorf("compile template %s: %w", e.Name(), err)
		}
		r.templates[strings.TrimSuffix(e.Name(), ".html")] = tpl
	}
	return r, nil
}

func (r *Renderer) Render(name string, ctx map[string]any) (string, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	out, err := tpl.Execute(pongo2.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}
