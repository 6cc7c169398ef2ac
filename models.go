package main

import (
	"html/template"
	"net/url"
	"strconv"

	"devblog/internal/apiclient"
)

// pager describes numbered pagination links.
type pager struct {
	Page  int
	Total int
	base  string
	query url.Values
}

func newPager(base string, query url.Values, page, total int) pager {
	if total < 1 {
		total = 1
	}
	return pager{Page: page, Total: total, base: base, query: query}
}

// pagerWindow is how many page links are shown at once.
const pagerWindow = 10

// Pages lists at most pagerWindow page numbers around the current page.
func (p pager) Pages() []int {
	first := max(1, p.Page-pagerWindow/2)
	last := min(p.Total, first+pagerWindow-1)
	first = max(1, last-pagerWindow+1)

	pages := make([]int, 0, last-first+1)
	for n := first; n <= last; n++ {
		pages = append(pages, n)
	}
	return pages
}

func (p pager) URL(page int) string {
	q := url.Values{}
	for k, v := range p.query {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(page))
	return p.base + "?" + q.Encode()
}

type categoryTab struct {
	Name     string
	URL      string
	Selected bool
}

// postList is one rendering of the category posts block.
type postList struct {
	Full       bool
	Categories []categoryTab
	Selected   string
	Articles   []apiclient.Article
	Pager      pager
	Error      string
}

type articleView struct {
	Article     apiclient.Article
	Body        template.HTML
	Description string
	Canonical   string
	Image       string
	JSONLD      template.JS
}
