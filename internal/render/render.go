// Package render turns post sources (Markdown or editor blocks) into
// sanitized HTML and derives slugs and excerpts from them.
package render

import (
	"bytes"
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"jakob-blog/pkg/utilities"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			// raw HTML is let through here and cleaned by contentPolicy
			goldmarkhtml.WithUnsafe(),
		),
	)

	contentPolicy = newContentPolicy()
	inlinePolicy  = newInlinePolicy()
	stripPolicy   = bluemonday.StrictPolicy()
)

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowElements(
		"p", "br", "strong", "em", "u", "s", "del", "code", "pre",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li", "blockquote",
		"table", "thead", "tbody", "tr", "th", "td",
		"figure", "figcaption", "audio", "video", "source",
	)
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "class").OnElements("img")
	p.AllowAttrs("controls", "class").OnElements("audio", "video")
	p.AllowAttrs("src", "type").OnElements("source")
	p.AllowAttrs("class").OnElements("figure", "figcaption")
	return p
}

func newInlinePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowStandardURLs()
	p.AllowElements("b", "i", "u", "s", "code", "mark", "br")
	p.AllowAttrs("href").OnElements("a")
	return p
}

// Markdown renders Markdown source and sanitizes the result.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return contentPolicy.Sanitize(buf.String()), nil
}

// SanitizeInline keeps only basic inline formatting.
func SanitizeInline(s string) string {
	return inlinePolicy.Sanitize(s)
}

// StripTags removes all markup and returns plain text.
func StripTags(s string) string {
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

// Excerpt returns the first n characters of the text behind rendered HTML.
func Excerpt(renderedHTML string, n int) string {
	text := strings.Join(strings.Fields(StripTags(renderedHTML)), " ")
	return utilities.Truncate(text, n)
}

// Slugify converts a title into a URL fragment. Letters of any script survive.
func Slugify(text string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			pendingDash = true
		}
	}
	return b.String()
}
