package server

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageSet holds one parsed template per page, each sharing the layout. Pages
// are parsed once at startup so a bad template fails the process early, not
// the first request.
type pageSet struct {
	pages map[string]*template.Template
}

var pageFuncs = template.FuncMap{
	"statusBadge": func(s string) string {
		switch s {
		case "completed", "approved", "active":
			return "badge-ok"
		case "blocked", "changes_requested":
			return "badge-alert"
		case "waiting_approval", "pending":
			return "badge-wait"
		default:
			return "badge-plain"
		}
	},
}

func newPageSet() (*pageSet, error) {
	names := []string{"login", "dashboard", "agents", "agent_detail", "projects", "approvals"}
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		t, err := template.New("layout.html").Funcs(pageFuncs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("server: parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &pageSet{pages: pages}, nil
}

func (p *pageSet) render(w io.Writer, name string, data any) error {
	t, ok := p.pages[name]
	if !ok {
		return fmt.Errorf("server: unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}
