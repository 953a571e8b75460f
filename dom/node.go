package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IsElement reports whether n is a non-nil element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// TagName returns the lowercased tag name of an element, or "".
func TagName(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// LocalName returns the tag name of an element as parsed, or "". Foreign
// elements keep their case (linearGradient, foreignObject), which is what
// XPath and CSS engines compare against.
func LocalName(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return n.Data
}

// Attr returns the value of the attribute key and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrValue returns the attribute value or "" when absent.
func AttrValue(n *html.Node, key string) string {
	v, _ := Attr(n, key)
	return v
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// ClassList splits the class attribute on whitespace.
func ClassList(n *html.Node) []string {
	return strings.Fields(AttrValue(n, "class"))
}

// ParentElement returns the nearest element parent, or nil when the parent
// is the document node or absent.
func ParentElement(n *html.Node) *html.Node {
	if n == nil || !IsElement(n.Parent) {
		return nil
	}
	return n.Parent
}

// ElementChildren returns the element children of n in order.
func ElementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// ElementIndex returns the 1-based position of n among all element
// siblings, whatever their tag. It returns 1 for a parentless node.
func ElementIndex(n *html.Node) int {
	if n.Parent == nil {
		return 1
	}
	idx := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		idx++
		if c == n {
			return idx
		}
	}
	return idx
}

// SameTagIndex returns the 1-based position of n among element siblings
// sharing its exact tag name.
func SameTagIndex(n *html.Node) int {
	if n.Parent == nil {
		return 1
	}
	idx := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != n.Data {
			continue
		}
		idx++
		if c == n {
			return idx
		}
	}
	return idx
}

// Contains reports whether other is node itself or one of its descendants,
// mirroring Node.contains. A nil other is never contained.
func Contains(node, other *html.Node) bool {
	if node == nil || other == nil {
		return false
	}
	seen := make(map[*html.Node]struct{})
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == node {
			return true
		}
		if _, dup := seen[cur]; dup {
			return false
		}
		seen[cur] = struct{}{}
	}
	return false
}

// IsPageRoot reports whether n is the <html> or <body> element.
func IsPageRoot(n *html.Node) bool {
	tag := TagName(n)
	return tag == "html" || tag == "body"
}

// NewElement creates a detached element.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

// SetText replaces all children of n with a single text node.
func SetText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
