package handler

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/dustin/go-humanize"

	"github.com/joestump/joe-contact/internal/auth"
	"github.com/joestump/joe-contact/internal/store"
	"github.com/joestump/joe-contact/internal/theme"
	"github.com/joestump/joe-contact/web"
)

// BasePage carries layout-level data available to every template.
type BasePage struct {
	Theme theme.Theme
	Admin *store.Admin // nil for visitors
	Flash string
}

// newBasePage resolves the theme from the cookie, then the session, then the
// default, and pops any one-time flash message.
func newBasePage(r *http.Request, sm *scs.SessionManager) BasePage {
	p := BasePage{Theme: theme.Default, Admin: auth.AdminFromContext(r.Context())}
	if c, err := r.Cookie(theme.CookieName); err == nil {
		p.Theme = theme.OrDefault(c.Value)
	} else if sm != nil {
		if s := sm.GetString(r.Context(), auth.SessionThemeKey); s != "" {
			p.Theme = theme.OrDefault(s)
		}
	}
	if sm != nil {
		p.Flash = sm.PopString(r.Context(), auth.SessionFlashKey)
	}
	return p
}

var funcs = template.FuncMap{
	"bytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
	"ago":   humanize.Time,
}

// pageCache maps a page file name to a template set of base.html, the
// partials, and that one page, so {{define "content"}} blocks don't collide.
var pageCache map[string]*template.Template

func init() {
	partials, err := fs.Glob(web.TemplateFS, "templates/partials/*.html")
	if err != nil {
		panic("glob partials: " + err.Error())
	}

	pageCache = make(map[string]*template.Template)
	err = fs.WalkDir(web.TemplateFS, "templates/pages", func(p string, d fs.DirEntry, e error) error {
		if e != nil || d.IsDir() || !strings.HasSuffix(p, ".html") {
			return e
		}
		files := append([]string{"templates/base.html"}, partials...)
		files = append(files, p)

		t, err := template.New("").Funcs(funcs).ParseFS(web.TemplateFS, files...)
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		rel, _ := strings.CutPrefix(p, "templates/pages/")
		pageCache[rel] = t
		return nil
	})
	if err != nil {
		panic("build page cache: " + err.Error())
	}
}

// render executes a full page (base layout + named page) with status 200.
func render(w http.ResponseWriter, tmpl string, data any) {
	renderStatus(w, http.StatusOK, tmpl, data)
}

// renderStatus is render with an explicit status code.
func renderStatus(w http.ResponseWriter, status int, tmpl string, data any) {
	t, ok := pageCache[tmpl]
	if !ok {
		http.Error(w, "template not found: "+tmpl, http.StatusInternalServerError)
		return
	}
	var buf strings.Builder
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}
