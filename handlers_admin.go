package main

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"devblog/internal/apiclient"
	"devblog/internal/session"
)

const (
	maxUploadSize = 32 << 20
	// autosaveInterval is how often the editor page posts its draft.
	autosaveInterval = 60 * time.Second
)

// authorizedClient returns a client carrying the visitor's valid token. When
// there is none the visitor is told and sent to sign in.
func (b *Blog) authorizedClient(w http.ResponseWriter, r *http.Request) (*apiclient.Client, bool) {
	c, err := b.api.CreateClient(r.Context(), b.visitor(r).Session)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			b.logger.Error(r.Context(), "creating api client", "error", err)
		}
		b.sessionExpired(w, r)
		return nil, false
	}
	return c, true
}

func (b *Blog) sessionExpired(w http.ResponseWriter, r *http.Request) {
	b.notify(r, "warning", "Your session has expired. Please sign in again.")
	http.Redirect(w, r, b.loginURL(returnPath(r)), http.StatusSeeOther)
}

// returnPath is where a visitor lands after signing in again. Form posts
// cannot be replayed as a GET, so they return to a page that shows them.
func returnPath(r *http.Request) string {
	if r.Method == http.MethodGet {
		return r.URL.RequestURI()
	}
	switch r.URL.Path {
	case "/admin/editor":
		return editorURL(r.FormValue("id"))
	case "/admin/uploader":
		return r.URL.Path
	}
	return "/admin"
}

// apiFailed reports a failed admin call. A rejected token ends the session.
func (b *Blog) apiFailed(w http.ResponseWriter, r *http.Request, err error, message, back string) {
	ctx := r.Context()
	if errors.Is(err, apiclient.ErrUnauthorized) {
		b.logger.Info(ctx, "api rejected token", "path", r.URL.Path, "error", err)
		_ = b.visitor(r).Session.Logout(ctx)
		b.sessionExpired(w, r)
		return
	}

	b.logger.Error(ctx, "admin api call", "path", r.URL.Path, "error", err)
	b.notify(r, "error", apiclient.Message(err, message))
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func pageParam(r *http.Request) int {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		return 1
	}
	return page
}

func formIDs(values []string) []int {
	var ids []int
	for _, v := range values {
		if id, err := strconv.Atoi(v); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func viewMode(v string) apiclient.ViewMode {
	if strings.EqualFold(v, string(apiclient.ViewPrivate)) {
		return apiclient.ViewPrivate
	}
	return apiclient.ViewPublic
}

func (b *Blog) AdminHome(w http.ResponseWriter, r *http.Request) {
	c, ok := b.authorizedClient(w, r)
	if !ok {
		return
	}
	page := pageParam(r)

	data := map[string]any{
		"Title": "Admin · " + b.cfg.Site.Title,
		"Page":  page,
	}

	res, err := c.AdminArticles(r.Context(), page, adminPageSize)
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		b.apiFailed(w, r, err, "", "/")
		return
	case err != nil:
		b.logger.Error(r.Context(), "admin: listing articles", "error", err)
		data["Error"] = "Could not load articles."
		data["Pager"] = newPager("/admin", nil, page, 1)
	default:
		data["Articles"] = res.Articles
		data["Pager"] = newPager("/admin", nil, page, res.TotalPage)
	}
	b.render(w, r, http.StatusOK, "admin.html", data)
}

func (b *Blog) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}
	back := "/admin?page=" + strconv.Itoa(max(1, atoiOr(r.FormValue("page"), 1)))

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}

	in := apiclient.ArticleInput{
		Name:       strings.TrimSpace(r.FormValue("article_name")),
		Thumbnail:  strings.TrimSpace(r.FormValue("thumbnail_url")),
		DataURL:    strings.TrimSpace(r.FormValue("article_data_url")),
		ViewMode:   viewMode(r.FormValue("article_view_mode")),
		Categories: formIDs(r.Form["categories"]),
	}
	if in.Name == "" || in.DataURL == "" {
		b.notify(r, "error", "Title and content URL are required.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	c, ok := b.authorizedClient(w, r)
	if !ok {
		return
	}
	if err := c.UpdateArticle(r.Context(), id, in); err != nil {
		b.apiFailed(w, r, err, "Could not update the article.", back)
		return
	}

	b.notify(r, "success", "Article updated.")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (b *Blog) AdminDelete(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}
	back := "/admin?page=" + strconv.Itoa(max(1, atoiOr(r.FormValue("page"), 1)))

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}

	c, ok := b.authorizedClient(w, r)
	if !ok {
		return
	}
	if err := c.DeleteArticle(r.Context(), id); err != nil {
		b.apiFailed(w, r, err, "Could not delete the article.", back)
		return
	}

	b.notify(r, "success", "Article deleted.")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func editorURL(id string) string {
	if id == "" {
		return "/admin/editor"
	}
	return "/admin/editor?" + url.Values{"id": {id}}.Encode()
}

func (b *Blog) Editor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.URL.Query().Get("id")
	if id != "" {
		if _, err := strconv.Atoi(id); err != nil {
			http.Error(w, "Invalid article ID", http.StatusBadRequest)
			return
		}
	}

	c, ok := b.authorizedClient(w, r)
	if !ok {
		return
	}

	d, err := loadDraft(ctx, b.visitor(r).Store, id)
	if err != nil {
		b.logger.Warn(ctx, "editor: loading draft", "id", id, "error", err)
	}
	if d == nil && id != "" {
		d = b.draftFromArticle(r, c, id)
	}
	if d == nil {
		d = &draft{}
	}

	b.renderEditor(w, r, c, id, d, "")
}

// draftFromArticle seeds the editor with a published article.
func (b *Blog) draftFromArticle(r *http.Request, c *apiclient.Client, id string) *draft {
	ctx := r.Context()
	n, _ := strconv.Atoi(id)

	a, err := c.Article(ctx, n)
	if err != nil {
		b.logger.Warn(ctx, "editor: loading article", "id", id, "error", err)
		return nil
	}
	pub, err := b.api.Public()
	if err != nil {
		b.logger.Error(ctx, "editor: creating api client", "error", err)
		return nil
	}
	content, err := pub.ArticleContent(ctx, a.DataURL)
	if err != nil {
		b.logger.Warn(ctx, "editor: loading content", "id", id, "error", err)
		return nil
	}
	return &draft{
		Title:        a.Name,
		Content:      content,
		ThumbnailURL: a.Thumbnail,
		Categories:   apiclient.CategoryIDs(a.Categories),
	}
}

func (b *Blog) renderEditor(w http.ResponseWriter, r *http.Request, c *apiclient.Client, id string, d *draft, preview string) {
	ctx := r.Context()

	cats, err := c.Categories(ctx)
	if err != nil {
		b.logger.Warn(ctx, "editor: loading categories", "error", err)
	}

	data := map[string]any{
		"Title":      "Editor · " + b.cfg.Site.Title,
		"ID":         id,
		"Draft":      d,
		"Categories": cats,
		"Action":     editorURL(id),
		"AutosaveMs": autosaveInterval.Milliseconds(),
	}
	if preview != "" {
		html, err := b.md.Render(preview)
		if err != nil {
			b.logger.Warn(ctx, "editor: preview", "error", err)
		} else {
			data["Preview"] = html
		}
	}
	b.render(w, r, http.StatusOK, "editor.html", data)
}

// EditorSubmit saves the draft first, then runs the requested action. The
// editor page posts action=autosave on a timer and gets 204 back.
func (b *Blog) EditorSubmit(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}
	ctx := r.Context()
	store := b.visitor(r).Store

	id := r.FormValue("id")
	if id != "" {
		if _, err := strconv.Atoi(id); err != nil {
			http.Error(w, "Invalid article ID", http.StatusBadRequest)
			return
		}
	}
	back := editorURL(id)

	d := draft{
		Title:        r.FormValue("title"),
		Content:      r.FormValue("content"),
		ThumbnailURL: strings.TrimSpace(r.FormValue("thumbnail_url")),
		Categories:   formIDs(r.Form["categories"]),
	}
	if err := saveDraft(ctx, store, id, d); err != nil {
		b.logger.Error(ctx, "saving draft", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	action := r.FormValue("action")
	switch action {
	case "publish_public", "publish_private":
	case "autosave":
		w.WriteHeader(http.StatusNoContent)
		return
	case "preview":
		c, ok := b.authorizedClient(w, r)
		if !ok {
			return
		}
		b.renderEditor(w, r, c, id, &d, d.Content)
		return
	default:
		b.notify(r, "info", "Draft saved.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	if strings.TrimSpace(d.Title) == "" {
		b.notify(r, "error", "Please enter a title.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	if strings.TrimSpace(d.Content) == "" {
		b.notify(r, "error", "Please enter some content.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	c, ok := b.authorizedClient(w, r)
	if !ok {
		return
	}

	dataURL, err := c.Upload(ctx, "content.md", "text/markdown", strings.NewReader(d.Content))
	if err != nil {
		b.apiFailed(w, r, err, "Uploading the content failed.", back)
		return
	}

	in := apiclient.ArticleInput{
		Date:       time.Now().UTC().Format(time.RFC3339),
		Name:       d.Title,
		Thumbnail:  d.ThumbnailURL,
		DataURL:    dataURL,
		ViewMode:   apiclient.ViewPublic,
		Categories: d.Categories,
	}
	if action == "publish_private" {
		in.ViewMode = apiclient.ViewPrivate
	}

	if id == "" {
		err = c.CreateArticle(ctx, in)
	} else {
		n, _ := strconv.Atoi(id)
		err = c.UpdateArticle(ctx, n, in)
	}
	if err != nil {
		b.apiFailed(w, r, err, "Publishing failed.", back)
		return
	}

	if err := deleteDraft(ctx, store, id); err != nil {
		b.logger.Warn(ctx, "clearing draft", "error", err)
	}
	b.notify(r, "success", "Published.")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (b *Blog) CreateCategory(w http.ResponseWriter, r *http.Request) {
	if !parseFormWithCSRF(w, r) {
		return
	}
	back := editorURL(r.FormValue("id"))

	name := strings.TrimSpace(r.FormValue("category_name"))
	if name == "" {
		b.notify(r, "error", "Please enter a category name.")
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}

	c, ok := b.authorizedClient(w, r)
	if !ok {
		return
	}
	if _, err := c.CreateCategory(r.Context(), name); err != nil {
		b.apiFailed(w, r, err, "Could not create the category.", back)
		return
	}

	b.notify(r, "success", "Category created.")
	http.Redirect(w, r, back, http.StatusSeeOther)
}

func (b *Blog) Uploader(w http.ResponseWriter, r *http.Request) {
	b.render(w, r, http.StatusOK, "uploader.html", map[string]any{
		"Title": "Uploader · " + b.cfg.Site.Title,
	})
}

func (b *Blog) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if !validateCSRF(r) {
		http.Error(w, "Invalid CSRF token", http.StatusForbidden)
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		b.notify(r, "error", "Please choose a file.")
		http.Redirect(w, r, "/admin/uploader", http.StatusSeeOther)
		return
	}
	defer file.Close()

	c, ok := b.authorizedClient(w, r)
	if !ok {
		return
	}

	fileURL, err := c.Upload(r.Context(), hdr.Filename, hdr.Header.Get("Content-Type"), file)
	if err != nil {
		b.apiFailed(w, r, err, "Upload failed.", "/admin/uploader")
		return
	}

	b.render(w, r, http.StatusOK, "uploader.html", map[string]any{
		"Title":   "Uploader · " + b.cfg.Site.Title,
		"FileURL": fileURL,
		"Name":    hdr.Filename,
	})
}
