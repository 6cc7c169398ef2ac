// Package markdown turns article bodies into HTML with the blog's own markup
// for each element.
package markdown

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const (
	DefaultCodeStyle = "github"
	DefaultImageAlt  = "Markdown Image"
)

// Renderer is safe for concurrent use. The same input always yields the same
// output.
type Renderer struct {
	md goldmark.Markdown
}

type config struct {
	imageBase *url.URL
	style     *chroma.Style
}

type Option func(*config)

// WithImageBase resolves relative image sources against base.
func WithImageBase(base string) Option {
	return func(c *config) {
		if u, err := url.Parse(base); err == nil && u.IsAbs() {
			c.imageBase = u
		}
	}
}

// WithCodeStyle picks the chroma style for fenced code. Unknown names fall
// back to chroma's default.
func WithCodeStyle(name string) Option {
	return func(c *config) { c.style = styles.Get(name) }
}

func New(opts ...Option) *Renderer {
	cfg := &config{style: styles.Get(DefaultCodeStyle)}
	for _, opt := range opts {
		opt(cfg)
	}

	nr := &nodeRenderer{
		imageBase: cfg.imageBase,
		style:     cfg.style,
		formatter: chromahtml.New(chromahtml.TabWidth(4)),
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			// lower value wins over the stock html and GFM renderers
			renderer.WithNodeRenderers(util.Prioritized(nr, 100)),
		),
	)
	return &Renderer{md: md}
}

func (r *Renderer) Render(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Excerpt returns the first n runes of the plain text of src.
func Excerpt(src string, n int) string {
	var b strings.Builder
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#>-*` "))
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(line)
	}
	return Truncate(b.String(), n)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
