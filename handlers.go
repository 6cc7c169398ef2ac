package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"devblog/internal/apiclient"
)

func (b *Blog) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recent, err := b.recentPosts(ctx)
	recentErr := ""
	if err != nil {
		b.logger.Warn(ctx, "home: recent posts", "error", err)
		recentErr = "Could not load recent posts."
	}

	data := map[string]any{
		"Recent":      recent,
		"RecentError": recentErr,
		"Views":       b.visitorCount(ctx),
		"Posts":       b.categoryPosts(ctx, "/", r.URL.Query(), false),
	}
	b.render(w, r, http.StatusOK, "home.html", data)
}

func (b *Blog) Articles(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title": "Articles · " + b.cfg.Site.Title,
		"Posts": b.categoryPosts(r.Context(), "/articles", r.URL.Query(), true),
	}
	b.render(w, r, http.StatusOK, "articles.html", data)
}

func (b *Blog) Article(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		b.renderError(w, r, http.StatusNotFound, "This article does not exist.")
		return
	}

	view, err := b.loadArticle(ctx, id)
	switch {
	case errors.Is(err, apiclient.ErrNotFound):
		b.renderError(w, r, http.StatusNotFound, "This article does not exist.")
		return
	case err != nil:
		b.logger.Error(ctx, "loading article", "id", id, "error", err)
		b.renderError(w, r, http.StatusBadGateway, "The article could not be loaded. Please try again later.")
		return
	}

	recent, err := b.recentPosts(ctx)
	if err != nil {
		b.logger.Warn(ctx, "article: recent posts", "error", err)
	}

	data := map[string]any{
		"Title":  view.Article.Name + " · " + b.cfg.Site.Title,
		"View":   view,
		"Recent": recent,
	}
	b.render(w, r, http.StatusOK, "article.html", data)
}

func (b *Blog) NotFound(w http.ResponseWriter, r *http.Request) {
	b.renderError(w, r, http.StatusNotFound, "Page not found.")
}
