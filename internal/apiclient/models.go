package apiclient

import (
	"encoding/json"
	"time"
)

type ViewMode string

const (
	ViewPublic  ViewMode = "PUBLIC"
	ViewPrivate ViewMode = "PRIVATE"
)

// Category arrives either as an object or as a bare name.
type Category struct {
	ID   int    `json:"category_id"`
	Name string `json:"category_name"`
}

func (c *Category) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Name)
	}
	type plain Category
	return json.Unmarshal(data, (*plain)(c))
}

type Article struct {
	ID         int        `json:"article_id"`
	Name       string     `json:"article_name"`
	Date       string     `json:"article_date"`
	DataURL    string     `json:"article_data_url"`
	Thumbnail  string     `json:"thumbnail_url"`
	ViewMode   ViewMode   `json:"article_view_mode,omitempty"`
	Categories []Category `json:"categorys"`
}

// UnmarshalJSON accepts the category list under "categorys" or "categories".
func (a *Article) UnmarshalJSON(data []byte) error {
	type plain Article
	var aux struct {
		plain
		Alt []Category `json:"categories"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = Article(aux.plain)
	if len(a.Categories) == 0 {
		a.Categories = aux.Alt
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Published parses Date, returning the zero time when no layout fits.
func (a Article) Published() time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, a.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

// CategoryNames lists the names in order.
func (a Article) CategoryNames() []string {
	names := make([]string, 0, len(a.Categories))
	for _, c := range a.Categories {
		names = append(names, c.Name)
	}
	return names
}

type ArticlePage struct {
	Articles  []Article `json:"articles"`
	TotalPage int       `json:"totalPage"`
}

type BlogInfo struct {
	TotalViews int64 `json:"blog_total_views"`
}

type LoginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
	PIN      string `json:"pin,omitempty"`
}

// ArticleInput is the body of create and update calls.
type ArticleInput struct {
	Date       string   `json:"article_date,omitempty"`
	Name       string   `json:"article_name"`
	Thumbnail  string   `json:"thumbnail_url"`
	DataURL    string   `json:"article_data_url"`
	ViewMode   ViewMode `json:"article_view_mode"`
	Categories []int    `json:"categories"`
}

// CategoryIDs collects the ids of a's categories, skipping unknown ones.
func CategoryIDs(cs []Category) []int {
	ids := make([]int, 0, len(cs))
	for _, c := range cs {
		if c.ID != 0 {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
