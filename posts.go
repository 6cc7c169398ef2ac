package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"devblog/internal/apiclient"
	"devblog/internal/markdown"
)

const (
	recentPostsSize   = 4
	simplePostsSize   = 8
	fullPostsSize     = 16
	adminPageSize     = 8
	descriptionLength = 155
)

func (b *Blog) publicClient() (*apiclient.Client, error) {
	return b.api.Public()
}

func (b *Blog) recentPosts(ctx context.Context) ([]apiclient.Article, error) {
	c, err := b.publicClient()
	if err != nil {
		return nil, err
	}
	page, err := c.ListArticles(ctx, 1, recentPostsSize)
	if err != nil {
		return nil, fmt.Errorf("fetching recent posts: %w", err)
	}
	return page.Articles, nil
}

func (b *Blog) visitorCount(ctx context.Context) int64 {
	c, err := b.publicClient()
	if err != nil {
		return 0
	}
	info, err := c.BlogInfo(ctx)
	if err != nil {
		b.logger.Warn(ctx, "fetching visitor count", "error", err)
		return 0
	}
	return info.TotalViews
}

// categoryNames returns the tabs to show. The full listing asks the API and
// falls back to the configured list.
func (b *Blog) categoryNames(ctx context.Context, full bool) []string {
	defaults := b.cfg.DefaultCategories
	if !full {
		return defaults
	}

	c, err := b.publicClient()
	if err == nil {
		var cats []apiclient.Category
		if cats, err = c.Categories(ctx); err == nil {
			names := []string{b.cfg.AllCategory()}
			for _, cat := range cats {
				names = append(names, cat.Name)
			}
			return names
		}
	}
	b.logger.Warn(ctx, "fetching categories", "error", err)
	return defaults
}

// categoryPosts builds the category block. Listing failures end up in
// postList.Error rather than failing the page.
func (b *Blog) categoryPosts(ctx context.Context, base string, q url.Values, full bool) postList {
	all := b.cfg.AllCategory()
	selected := q.Get("category")
	if selected == "" {
		selected = all
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	size := simplePostsSize
	if full {
		size = fullPostsSize
	}

	list := postList{Full: full, Selected: selected}
	for _, name := range b.categoryNames(ctx, full) {
		tab := categoryTab{Name: name, Selected: name == selected, URL: base}
		if name != all {
			tab.URL = base + "?" + url.Values{"category": {name}}.Encode()
		}
		list.Categories = append(list.Categories, tab)
	}

	pagerQuery := url.Values{}
	if selected != all {
		pagerQuery.Set("category", selected)
	}
	list.Pager = newPager(base, pagerQuery, page, 1)

	c, err := b.publicClient()
	if err != nil {
		list.Error = "Could not load posts."
		return list
	}

	var res *apiclient.ArticlePage
	if selected == all {
		res, err = c.ListArticles(ctx, page, size)
	} else {
		res, err = c.SearchCategory(ctx, selected, page, size)
	}
	if err != nil {
		b.logger.Warn(ctx, "fetching category posts", "category", selected, "page", page, "error", err)
		list.Error = "Could not load posts."
		return list
	}

	list.Articles = res.Articles
	list.Pager = newPager(base, pagerQuery, page, res.TotalPage)
	return list
}

// loadArticle fetches metadata, then the markdown body, and renders it.
func (b *Blog) loadArticle(ctx context.Context, id int) (*articleView, error) {
	c, err := b.publicClient()
	if err != nil {
		return nil, err
	}

	a, err := c.Article(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching article %d: %w", id, err)
	}
	src, err := c.ArticleContent(ctx, a.DataURL)
	if err != nil {
		return nil, fmt.Errorf("fetching article %d content: %w", id, err)
	}
	body, err := b.md.Render(src)
	if err != nil {
		return nil, err
	}

	v := &articleView{
		Article:     *a,
		Body:        body,
		Description: markdown.Excerpt(src, descriptionLength),
		Canonical:   strings.TrimSuffix(b.cfg.Site.URL, "/") + "/articles/" + strconv.Itoa(a.ID),
		Image:       b.thumbnail(a.Thumbnail),
	}
	v.JSONLD, err = b.articleJSONLD(v)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (b *Blog) articleJSONLD(v *articleView) (template.JS, error) {
	doc := map[string]any{
		"@context":      "https://schema.org",
		"@type":         "BlogPosting",
		"headline":      v.Article.Name,
		"description":   v.Description,
		"image":         v.Image,
		"datePublished": v.Article.Date,
		"url":           v.Canonical,
		"author":        map[string]string{"@type": "Person", "name": b.cfg.Site.Author},
		"publisher":     map[string]string{"@type": "Organization", "name": b.cfg.Site.Title},
		"keywords":      strings.Join(v.Article.CategoryNames(), ", "),
		"inLanguage":    b.cfg.Site.Language,
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding json-ld: %w", err)
	}
	return template.JS(out), nil
}

// thumbnail substitutes the default image for empty or "NULL" values.
func (b *Blog) thumbnail(u string) string {
	if u == "" || strings.EqualFold(u, "NULL") {
		return b.cfg.DefaultThumbnail
	}
	return u
}
