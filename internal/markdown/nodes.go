package markdown

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

type nodeRenderer struct {
	imageBase *url.URL
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// table maps each node kind the blog styles to its renderer. Kinds missing
// here go to goldmark's defaults.
func (r *nodeRenderer) table() map[ast.NodeKind]renderer.NodeRendererFunc {
	return map[ast.NodeKind]renderer.NodeRendererFunc{
		ast.KindHeading:         r.heading,
		ast.KindParagraph:       r.paragraph,
		ast.KindList:            r.list,
		ast.KindListItem:        r.listItem,
		ast.KindLink:            r.link,
		ast.KindImage:           r.image,
		ast.KindFencedCodeBlock: r.fencedCode,
		ast.KindCodeBlock:       r.indentedCode,
		ast.KindCodeSpan:        r.codeSpan,
		ast.KindBlockquote:      r.blockquote,
		east.KindTable:          r.tableNode,
		east.KindTableHeader:    r.tableHeader,
		east.KindTableRow:       r.tableRow,
		east.KindTableCell:      r.tableCell,
	}
}

func (r *nodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	for kind, fn := range r.table() {
		reg.Register(kind, fn)
	}
}

func (r *nodeRenderer) heading(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Heading)
	if entering {
		fmt.Fprintf(w, `<h%d class="md-h%d">`, n.Level, n.Level)
	} else {
		fmt.Fprintf(w, "</h%d>\n", n.Level)
	}
	return ast.WalkContinue, nil
}

func soleImage(n ast.Node) bool {
	return n.ChildCount() == 1 && n.FirstChild().Kind() == ast.KindImage
}

func (r *nodeRenderer) paragraph(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if soleImage(n) {
		return ast.WalkContinue, nil
	}
	if entering {
		_, _ = w.WriteString(`<p class="md-p">`)
	} else {
		_, _ = w.WriteString("</p>\n")
	}
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) list(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.List)
	tag := "ul"
	if n.IsOrdered() {
		tag = "ol"
	}
	if !entering {
		fmt.Fprintf(w, "</%s>\n", tag)
		return ast.WalkContinue, nil
	}

	fmt.Fprintf(w, `<%s class="md-list"`, tag)
	if n.IsOrdered() && n.Start != 1 {
		fmt.Fprintf(w, ` start="%d"`, n.Start)
	}
	_, _ = w.WriteString(">\n")
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) listItem(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(`<li class="md-li">`)
	} else {
		_, _ = w.WriteString("</li>\n")
	}
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) link(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Link)
	if !entering {
		_, _ = w.WriteString("</a>")
		return ast.WalkContinue, nil
	}

	_, _ = w.WriteString(`<a class="md-link" href="`)
	if !html.IsDangerousURL(n.Destination) {
		_, _ = w.Write(util.EscapeHTML(util.URLEscape(n.Destination, true)))
	}
	_ = w.WriteByte('"')
	if len(n.Title) > 0 {
		_, _ = w.WriteString(` title="`)
		_, _ = w.Write(util.EscapeHTML(n.Title))
		_ = w.WriteByte('"')
	}
	if isExternal(n.Destination) {
		_, _ = w.WriteString(` target="_blank" rel="noopener noreferrer"`)
	}
	_ = w.WriteByte('>')
	return ast.WalkContinue, nil
}

func isExternal(dest []byte) bool {
	return bytes.HasPrefix(dest, []byte("http://")) || bytes.HasPrefix(dest, []byte("https://"))
}

func (r *nodeRenderer) resolve(dest []byte) []byte {
	if r.imageBase == nil || html.IsDangerousURL(dest) {
		return dest
	}
	ref, err := url.Parse(string(dest))
	if err != nil || ref.IsAbs() || strings.HasPrefix(ref.String(), "//") {
		return dest
	}
	return []byte(r.imageBase.ResolveReference(ref).String())
}

func (r *nodeRenderer) image(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Image)

	alt := plainText(n, source)
	if len(alt) == 0 {
		alt = []byte(DefaultImageAlt)
	}

	block := n.Parent() != nil && n.Parent().Kind() == ast.KindParagraph && soleImage(n.Parent())
	if block {
		_, _ = w.WriteString(`<figure class="md-figure">`)
	}

	_, _ = w.WriteString(`<img class="md-img" src="`)
	if !html.IsDangerousURL(n.Destination) {
		_, _ = w.Write(util.EscapeHTML(util.URLEscape(r.resolve(n.Destination), true)))
	}
	_, _ = w.WriteString(`" alt="`)
	_, _ = w.Write(util.EscapeHTML(alt))
	_ = w.WriteByte('"')
	if len(n.Title) > 0 {
		_, _ = w.WriteString(` title="`)
		_, _ = w.Write(util.EscapeHTML(n.Title))
		_ = w.WriteByte('"')
	}
	_, _ = w.WriteString(` loading="lazy">`)

	if block {
		_, _ = w.WriteString("</figure>\n")
	}
	return ast.WalkSkipChildren, nil
}

// plainText concatenates the text below n.
func plainText(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.Bytes()
}

func codeLines(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}

func (r *nodeRenderer) fencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	code := strings.TrimSuffix(codeLines(n, source), "\n")

	lang := string(n.Language(source))
	if lang == "" {
		writePlainCode(w, code)
		return ast.WalkSkipChildren, nil
	}

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		writePlainCode(w, code)
		return ast.WalkSkipChildren, nil
	}

	fmt.Fprintf(w, `<div class="md-code" data-lang="%s">`, util.EscapeHTML([]byte(lang)))
	if err := r.formatter.Format(w, r.style, it); err != nil {
		return ast.WalkStop, fmt.Errorf("highlighting %s: %w", lang, err)
	}
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}

func (r *nodeRenderer) indentedCode(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		writePlainCode(w, strings.TrimSuffix(codeLines(n, source), "\n"))
	}
	return ast.WalkSkipChildren, nil
}

func writePlainCode(w util.BufWriter, code string) {
	_, _ = w.WriteString(`<pre class="md-pre"><code>`)
	_, _ = w.Write(util.EscapeHTML([]byte(code)))
	_, _ = w.WriteString("</code></pre>\n")
}

func (r *nodeRenderer) codeSpan(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(`<code class="md-code-inline">`)
	} else {
		_, _ = w.WriteString("</code>")
	}
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) blockquote(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<blockquote class=\"md-quote\">\n")
	} else {
		_, _ = w.WriteString("</blockquote>\n")
	}
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) tableNode(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<div class=\"md-table-wrap\"><table class=\"md-table\">\n")
		return ast.WalkContinue, nil
	}
	if n.LastChild() != nil && n.LastChild().Kind() == east.KindTableRow {
		_, _ = w.WriteString("</tbody>\n")
	}
	_, _ = w.WriteString("</table></div>\n")
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) tableHeader(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<thead>\n<tr>\n")
	} else {
		_, _ = w.WriteString("</tr>\n</thead>\n")
	}
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) tableRow(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("</tr>\n")
		return ast.WalkContinue, nil
	}
	if prev := n.PreviousSibling(); prev == nil || prev.Kind() == east.KindTableHeader {
		_, _ = w.WriteString("<tbody>\n")
	}
	_, _ = w.WriteString("<tr>\n")
	return ast.WalkContinue, nil
}

func (r *nodeRenderer) tableCell(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*east.TableCell)
	tag := "td"
	if n.Parent() != nil && n.Parent().Kind() == east.KindTableHeader {
		tag = "th"
	}
	if !entering {
		fmt.Fprintf(w, "</%s>\n", tag)
		return ast.WalkContinue, nil
	}

	fmt.Fprintf(w, `<%s class="md-%s"`, tag, tag)
	if n.Alignment != east.AlignNone {
		fmt.Fprintf(w, ` style="text-align:%s"`, n.Alignment.String())
	}
	_ = w.WriteByte('>')
	return ast.WalkContinue, nil
}
