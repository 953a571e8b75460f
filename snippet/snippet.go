// Package snippet exports the content of an inspected element in the form
// a consumer wants to paste elsewhere: raw outer HTML, visible text,
// Markdown, or sanitised HTML.
package snippet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
	"github.com/hazyhaar/elemscope/extract"
)

// Format names an export format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatSafe     Format = "safe-html"
)

// ErrUnknownFormat is returned for format names ParseFormat does not know.
var ErrUnknownFormat = errors.New("snippet: unknown format")

// ParseFormat maps a query value to a Format. Empty means html, and "safe"
// is accepted for safe-html.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatHTML, nil
	case "safe":
		return FormatSafe, nil
	case FormatHTML, FormatText, FormatMarkdown, FormatSafe:
		return f, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
	}
}

// Exporter renders element snippets. Safe for concurrent use.
type Exporter struct {
	md     *converter.Converter
	policy *bluemonday.Policy
}

// New creates an Exporter.
func New() *Exporter {
	return &Exporter{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Export renders n in format f. baseURL resolves relative links in the
// Markdown output and may be empty.
func (e *Exporter) Export(n *html.Node, f Format, baseURL string) (string, error) {
	if !dom.IsElement(n) {
		return "", fmt.Errorf("snippet: not an element")
	}
	switch f {
	case FormatText:
		return extract.Text(n), nil
	case FormatHTML, FormatMarkdown, FormatSafe:
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, f)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("snippet: render: %w", err)
	}
	raw := buf.String()

	switch f {
	case FormatSafe:
		return e.policy.Sanitize(raw), nil
	case FormatMarkdown:
		var md string
		var err error
		if baseURL != "" {
			md, err = e.md.ConvertString(raw, converter.WithDomain(baseURL))
		} else {
			md, err = e.md.ConvertString(raw)
		}
		if err != nil {
			return "", fmt.Errorf("snippet: markdown: %w", err)
		}
		return strings.TrimSpace(md), nil
	default:
		return raw, nil
	}
}
