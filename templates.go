package main

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"devblog/internal/apiclient"
	"devblog/internal/logging"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

//go:embed static
var staticFiles embed.FS

var pages = []string{
	"home.html", "articles.html", "article.html", "login.html",
	"admin.html", "editor.html", "uploader.html", "error.html",
}

func linebreaks(s string) template.HTML {
	s = template.HTMLEscapeString(s)

	paragraphs := strings.Split(s, "\n\n")
	var result []string

	for _, p := range paragraphs {
		if p = strings.TrimSpace(p); p != "" {
			p = strings.ReplaceAll(p, "\n", "<br>")
			result = append(result, "<p>"+p+"</p>")
		}
	}

	return template.HTML(strings.Join(result, "\n"))
}

func formatDate(a apiclient.Article) string {
	t := a.Published()
	if t.IsZero() {
		return a.Date
	}
	return t.Format("2006.01.02")
}

func (b *Blog) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"linebreaks": linebreaks,
		"formatDate": formatDate,
		"thumbnail":  b.thumbnail,
		"join":       strings.Join,
		"hasID": func(ids []int, id int) bool {
			for _, v := range ids {
				if v == id {
					return true
				}
			}
			return false
		},
		"categoryIDs": apiclient.CategoryIDs,
		"year":        func() int { return time.Now().Year() },
	}
}

// templateSet holds one parsed template per page. It can be reparsed while
// serving.
type templateSet struct {
	mu    sync.RWMutex
	fsys  fs.FS
	funcs template.FuncMap
	pages map[string]*template.Template
}

func (b *Blog) loadTemplates() (*templateSet, error) {
	var fsys fs.FS
	if b.cfg.TemplateDir != "" {
		fsys = os.DirFS(b.cfg.TemplateDir)
	} else {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}

	ts := &templateSet{fsys: fsys, funcs: b.templateFuncs()}
	if err := ts.reload(); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *templateSet) reload() error {
	parsed := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New("").Funcs(ts.funcs).ParseFS(ts.fsys, "base.html", "partials.html", page)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", page, err)
		}
		parsed[page] = t
	}

	ts.mu.Lock()
	ts.pages = parsed
	ts.mu.Unlock()
	return nil
}

func (ts *templateSet) lookup(page string) (*template.Template, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.pages[page]
	return t, ok
}

// watch reparses the set whenever a file in dir changes, until ctx ends.
// A broken edit keeps the previous templates.
func (ts *templateSet) watch(ctx context.Context, dir string, logger logging.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := ts.reload(); err != nil {
					logger.Error(ctx, "reloading templates", "file", ev.Name, "error", err)
					continue
				}
				logger.Info(ctx, "templates reloaded", "file", ev.Name)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error(ctx, "template watcher", "error", err)
			}
		}
	}()
	return nil
}

// render executes page into a buffer so a template error still yields a
// clean 500. Common layout data is added to data.
func (b *Blog) render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	ctx := r.Context()
	v := b.visitor(r)

	data["Site"] = b.cfg.Site
	data["Profile"] = b.cfg.Profile
	data["Path"] = r.URL.Path
	data["DarkMode"] = darkMode(ctx, v.Store)
	data["Flash"] = popFlash(ctx, v.Store)
	data["CSRFToken"] = b.ensureCSRFToken(w, r)
	if _, ok := data["Title"]; !ok {
		data["Title"] = b.cfg.Site.Title
	}
	if u, err := v.Session.CurrentUser(ctx); err == nil && u != nil {
		data["User"] = u
	}

	t, ok := b.templates.lookup(page)
	if !ok {
		b.logger.Error(ctx, "unknown template", "page", page)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		b.logger.Error(ctx, "rendering template", "page", page, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (b *Blog) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	b.render(w, r, status, "error.html", map[string]any{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": message,
	})
}
