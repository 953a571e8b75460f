// Package extract pulls inspection metadata out of a DOM element: tag, id,
// class, visible text and the attribute snapshot shown in the tooltip and
// shipped in the selector bundle.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Summary is the read-only description of an element recomputed on every
// hover.
type Summary struct {
	TagName   string `json:"tagName"`
	ID        string `json:"id"`
	ClassName string `json:"className"`
	Text      string `json:"text"`
	Name      string `json:"name,omitempty"`
}

// Summarize describes n. Non-element nodes yield a zero Summary.
func Summarize(n *html.Node) Summary {
	if n == nil || n.Type != html.ElementNode {
		return Summary{}
	}
	s := Summary{
		TagName: strings.ToLower(n.Data),
		Text:    Text(n),
	}
	for _, a := range n.Attr {
		if a.Namespace != "" {
			continue
		}
		switch a.Key {
		case "id":
			if s.ID == "" {
				s.ID = a.Val
			}
		case "class":
			if s.ClassName == "" {
				s.ClassName = a.Val
			}
		case "name":
			if s.Name == "" {
				s.Name = a.Val
			}
		}
	}
	return s
}

// Text returns the visible text of n: every descendant text node whose
// parent is not script, style or noscript, joined with single spaces and
// whitespace-collapsed.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var parts []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			if !hiddenParent(c.Parent) {
				parts = append(parts, c.Data)
			}
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return strings.TrimSpace(collapseWhitespace(strings.Join(parts, " ")))
}

func hiddenParent(p *html.Node) bool {
	if p == nil || p.Type != html.ElementNode {
		return false
	}
	switch p.DataAtom {
	case atom.Script, atom.Style, atom.Noscript:
		return true
	}
	return false
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return multiSpaceRe.ReplaceAllString(s, " ")
}

// Truncate shortens s to at most max runes, appending an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
