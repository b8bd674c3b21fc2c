package content

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

var (
	// reTemplateExpr matches a single {{ ... }} template action
	reTemplateExpr = regexp.MustCompile(`(?s)\{\{.*?\}\}`)

	reBlankLines = regexp.MustCompile(`\n[ \t]*\n+`)
)

// placeholderFmt yields tokens that markdown, HTML escaping and markup
// stripping all leave untouched
const placeholderFmt = "mbtplexpr%dz"

// Converter moves campaign bodies between content types
type Converter struct {
	md goldmark.Markdown
}

// NewConverter creates a converter with raw HTML enabled in markdown
func NewConverter() *Converter {
	return &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.TaskList),
			goldmark.WithRendererOptions(ghtml.WithUnsafe(), ghtml.WithXHTML()),
		),
	}
}

// Convert rewrites body from one content type to another. The returned flag is
// true when formatting was lost along the way. Template expressions are
// preserved byte for byte in every direction.
func (c *Converter) Convert(from, to models.ContentType, body string) (string, bool, error) {
	if !from.IsValid() {
		return "", false, fmt.Errorf("unknown source content type %q", from)
	}
	if !to.IsValid() {
		return "", false, fmt.Errorf("unknown target content type %q", to)
	}
	if from == to {
		return body, false, nil
	}

	switch {
	case from.IsHTML() && to.IsHTML():
		return body, false, nil

	case from.IsHTML() && to == models.ContentMarkdown:
		// markdown accepts inline HTML
		return body, false, nil

	case from == models.ContentMarkdown && to.IsHTML():
		out, err := c.MarkdownToHTML(body)
		return out, true, err

	case to == models.ContentPlain:
		out, err := c.ToText(from, body)
		return out, true, err

	case from == models.ContentPlain && to.IsHTML():
		return PlainToHTML(body), true, nil

	case from == models.ContentPlain && to == models.ContentMarkdown:
		return body, true, nil
	}

	return "", false, fmt.Errorf("no conversion from %s to %s", from, to)
}

// MarkdownToHTML renders markdown, leaving template expressions intact
func (c *Converter) MarkdownToHTML(body string) (string, error) {
	src, exprs := protect(body)
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("error converting markdown: %w", err)
	}
	return restore(buf.String(), exprs), nil
}

// ToHTML returns the HTML form of a body of type ct. Plain bodies have none.
func (c *Converter) ToHTML(ct models.ContentType, body string) (string, error) {
	switch ct {
	case models.ContentMarkdown:
		return c.MarkdownToHTML(body)
	case models.ContentPlain:
		return "", nil
	}
	return body, nil
}

// ToText strips the markup of a body of type ct
func (c *Converter) ToText(ct models.ContentType, body string) (string, error) {
	h := body
	if ct == models.ContentPlain {
		return CollapseWhitespace(body), nil
	}
	if ct == models.ContentMarkdown {
		var err error
		if h, err = c.MarkdownToHTML(body); err != nil {
			return "", err
		}
	}
	src, exprs := protect(h)
	return restore(HTMLToText(src), exprs), nil
}

// AltBody derives the plain-text alternative of a body. Plain campaigns have none.
func (c *Converter) AltBody(ct models.ContentType, body string) (*string, error) {
	if ct == models.ContentPlain {
		return nil, nil
	}
	alt, err := c.ToText(ct, body)
	if err != nil {
		return nil, err
	}
	return &alt, nil
}

// PlainToHTML escapes text and wraps it into paragraphs, one per blank-line
// separated block, with <br> for single line breaks.
func PlainToHTML(body string) string {
	src, exprs := protect(strings.ReplaceAll(body, "\r\n", "\n"))
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}

	var b strings.Builder
	for i, para := range reBlankLines.Split(src, -1) {
		if i > 0 {
			b.WriteByte('\n')
		}
		lines := strings.Split(strings.TrimSpace(para), "\n")
		for j, l := range lines {
			lines[j] = html.EscapeString(strings.TrimSpace(l))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>\n"))
		b.WriteString("</p>")
	}
	return restore(b.String(), exprs)
}

// protect swaps template expressions for inert placeholder tokens
func protect(s string) (string, []string) {
	var exprs []string
	out := reTemplateExpr.ReplaceAllStringFunc(s, func(m string) string {
		exprs = append(exprs, m)
		return fmt.Sprintf(placeholderFmt, len(exprs)-1)
	})
	return out, exprs
}

func restore(s string, exprs []string) string {
	for i := len(exprs) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, fmt.Sprintf(placeholderFmt, i), exprs[i])
	}
	return s
}
