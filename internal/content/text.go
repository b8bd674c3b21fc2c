package content

import (
	"strings"

	"golang.org/x/net/html"
)

// blockTags end a run of inline text when converting markup to text
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {}, "dd": {}, "div": {},
	"dl": {}, "dt": {}, "footer": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"header": {}, "hr": {}, "li": {}, "ol": {}, "p": {}, "pre": {}, "section": {}, "table": {},
	"td": {}, "th": {}, "tr": {}, "ul": {},
}

// skipTags have content that is never visible text
var skipTags = map[string]struct{}{
	"head": {}, "script": {}, "style": {}, "title": {},
}

// HTMLToText strips markup from s, decodes entities and collapses all
// whitespace runs into single spaces.
func HTMLToText(s string) string {
	var (
		b    strings.Builder
		skip int
		z    = html.NewTokenizer(strings.NewReader(s))
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF is the only error a strings.Reader can produce
			return CollapseWhitespace(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if _, ok := skipTags[tag]; ok && tt == html.StartTagToken {
				skip++
				continue
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte(' ')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if _, ok := skipTags[tag]; ok {
				if skip > 0 {
					skip--
				}
				continue
			}
			if _, ok := blockTags[tag]; ok {
				b.WriteByte(' ')
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			b.WriteString(z.Token().Data)
		}
	}
}

// CollapseWhitespace replaces whitespace runs with one space and trims the ends
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
