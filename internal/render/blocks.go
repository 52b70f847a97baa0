package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

type document struct {
	Blocks []block `json:"blocks"`
}

type block struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type blockData struct {
	Text      string            `json:"text"`
	Level     json.Number       `json:"level"`
	Caption   string            `json:"caption"`
	Stretched bool              `json:"stretched"`
	Style     string            `json:"style"`
	Items     []json.RawMessage `json:"items"`
	Code      string            `json:"code"`
	File      struct {
		URL string `json:"url"`
	} `json:"file"`
}

// ValidBlocks reports whether raw looks like an editor document.
func ValidBlocks(raw []byte) bool {
	var doc document
	return len(raw) > 0 && json.Unmarshal(raw, &doc) == nil && doc.Blocks != nil
}

// Blocks renders an editor document to HTML. Inline text is sanitized,
// code is fully escaped and unknown block types are skipped.
func Blocks(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}

	parts := make([]string, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		var d blockData
		if len(b.Data) > 0 {
			if err := json.Unmarshal(b.Data, &d); err != nil {
				continue
			}
		}
		if s, ok := renderBlock(b.Type, d); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func renderBlock(kind string, d blockData) (string, bool) {
	switch kind {
	case "paragraph":
		return "<p>" + SanitizeInline(d.Text) + "</p>", true

	case "header":
		level := headerLevel(d.Level)
		return fmt.Sprintf("<h%d>%s</h%d>", level, SanitizeInline(d.Text), level), true

	case "image":
		url := d.File.URL
		if !strings.HasPrefix(url, "/") && !strings.HasPrefix(url, "https://") {
			url = ""
		}
		width := "max-w-full"
		if d.Stretched {
			width = "w-full"
		}
		var captionHTML string
		if caption := SanitizeInline(d.Caption); caption != "" {
			captionHTML = `<figcaption class="text-center text-gray-500 mt-2">` + caption + `</figcaption>`
		}
		return fmt.Sprintf(`<figure class="my-4"><img src="%s" alt="%s" class="%s rounded-lg">%s</figure>`,
			html.EscapeString(url), html.EscapeString(d.Caption), width, captionHTML), true

	case "list":
		tag, class := "ul", "list-disc ml-6"
		if d.Style == "ordered" {
			tag, class = "ol", "list-decimal ml-6"
		}
		var items strings.Builder
		for _, item := range d.Items {
			items.WriteString("<li>" + SanitizeInline(listItemText(item)) + "</li>")
		}
		return fmt.Sprintf(`<%s class="%s">%s</%s>`, tag, class, items.String(), tag), true

	case "quote":
		var cite string
		if caption := SanitizeInline(d.Caption); caption != "" {
			cite = `<cite class="text-gray-500 text-sm">` + caption + `</cite>`
		}
		return `<blockquote class="border-l-4 border-gray-300 pl-4 italic my-4"><p>` +
			SanitizeInline(d.Text) + `</p>` + cite + `</blockquote>`, true

	case "delimiter":
		return `<hr class="my-8 border-gray-200">`, true

	case "code":
		return `<pre class="bg-gray-100 p-4 rounded-lg overflow-x-auto"><code>` +
			html.EscapeString(d.Code) + `</code></pre>`, true
	}
	return "", false
}

func headerLevel(n json.Number) int {
	level, err := n.Int64()
	if err != nil {
		return 2
	}
	return int(min(max(level, 2), 4))
}

// list items are plain strings in older editor versions and {"content": …} objects in newer ones
func listItemText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content
	}
	return ""
}
