package selector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
	"github.com/hazyhaar/elemscope/extract"
)

// textTags are the tags whose trimmed text is tried as an identifier.
var textTags = map[string]bool{
	"a": true, "button": true, "label": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// preferredAttrs is tried in order after the text strategy.
var preferredAttrs = []string{"name", "placeholder", "title", "aria-label", "data-testid"}

// BuildXPath returns a relative XPath for n.
//
// Strategies, in order: id shortcut, unique text match for text-bearing
// tags, unique match on a preferred attribute, then the parent chain.
func (s *Synthesizer) BuildXPath(n *html.Node) (string, error) {
	if !dom.IsElement(n) {
		return "", ErrNotElement
	}
	tag := dom.LocalName(n)

	if id := dom.AttrValue(n, "id"); id != "" {
		expr := fmt.Sprintf("//*[@id=%s]", xpathLiteral(id))
		if !s.verifyIDs || s.unique("xpath", expr, n) {
			return expr, nil
		}
	}

	if textTags[dom.TagName(n)] {
		if text := extract.Text(n); text != "" {
			expr := fmt.Sprintf("//%s[text()=%s]", tag, xpathLiteral(text))
			if s.unique("xpath", expr, n) {
				return expr, nil
			}
		}
	}

	for _, attr := range preferredAttrs {
		v, ok := dom.Attr(n, attr)
		if !ok || v == "" {
			continue
		}
		expr := fmt.Sprintf("//%s[@%s=%s]", tag, attr, xpathLiteral(v))
		if s.unique("xpath", expr, n) {
			return expr, nil
		}
	}

	return chainXPath(n)
}

// chainXPath builds /html/body/tag[k]/... where k counts preceding siblings
// with the same tag.
func chainXPath(n *html.Node) (string, error) {
	var segs []string
	seen := make(map[*html.Node]struct{})
	for cur := n; ; cur = cur.Parent {
		if cur == nil || cur.Type != html.ElementNode {
			return "", ErrDetached
		}
		if _, dup := seen[cur]; dup {
			return "", ErrCycle
		}
		seen[cur] = struct{}{}

		switch dom.LocalName(cur) {
		case "html":
			return "/html" + join(segs), nil
		case "body":
			if dom.LocalName(cur.Parent) == "html" {
				return "/html/body" + join(segs), nil
			}
		}
		segs = append(segs, fmt.Sprintf("%s[%d]", dom.LocalName(cur), dom.SameTagIndex(cur)))
	}
}

// BuildAbsoluteXPath returns /html[1]/body[1]/.../tag[k] for n, with no id
// or attribute shortcuts. k is the position among element siblings sharing
// the tag, so the path evaluates to exactly n.
func (s *Synthesizer) BuildAbsoluteXPath(n *html.Node) (string, error) {
	if !dom.IsElement(n) {
		return "", ErrNotElement
	}
	var segs []string
	seen := make(map[*html.Node]struct{})
	for cur := n; ; cur = cur.Parent {
		if cur == nil || cur.Type != html.ElementNode {
			return "", ErrDetached
		}
		if _, dup := seen[cur]; dup {
			return "", ErrCycle
		}
		seen[cur] = struct{}{}

		tag := dom.LocalName(cur)
		segs = append(segs, fmt.Sprintf("%s[%d]", tag, dom.SameTagIndex(cur)))
		if tag == "html" {
			if cur.Parent != nil && cur.Parent.Type != html.DocumentNode {
				return "", ErrDetached
			}
			return join(segs), nil
		}
	}
}

// join reverses leaf-first segments into a rooted path.
func join(segs []string) string {
	if len(segs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(segs[i])
	}
	return sb.String()
}

// xpathLiteral quotes s as an XPath 1.0 string literal. Values holding both
// quote kinds are split with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	var sb strings.Builder
	sb.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			sb.WriteString(`, '"', `)
		}
		sb.WriteString(`"` + p + `"`)
	}
	sb.WriteByte(')')
	return sb.String()
}
