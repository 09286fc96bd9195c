// ABOUTME: Markdown rendering for message bodies shown on the dashboard
// ABOUTME: Uses goldmark with GFM; raw HTML in messages is never passed through

package dashboard

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderMarkdown converts a message body to HTML. Falls back to escaped text
// if conversion fails.
func renderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(content) + "</pre>")
	}
	// goldmark omits raw HTML unless WithUnsafe is set.
	return template.HTML(buf.String())
}
