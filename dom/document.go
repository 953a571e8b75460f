// Package dom models the page context the inspector works against: a
// golang.org/x/net/html tree, the window/document event targets, and the
// layout that answers bounding-rect queries.
//
// A Document is not safe for concurrent use. The inspector serialises every
// access to it behind its own lock; callers that mutate the tree while an
// inspector is attached must go through the inspector.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a live, mutable HTML document.
type Document struct {
	root      *html.Node
	listeners []registration
	slots     map[string]any
}

// New wraps an existing document node. A non-document root is wrapped in a
// fresh document node so that queries always start above <html>.
func New(root *html.Node) *Document {
	if root == nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	if root.Type != html.DocumentNode {
		doc := &html.Node{Type: html.DocumentNode}
		doc.AppendChild(root)
		root = doc
	}
	return &Document{root: root, slots: make(map[string]any)}
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return New(root), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// MustParse parses s and panics on error. Intended for tests and fixtures.
func MustParse(s string) *Document {
	d, err := ParseString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// DocumentElement returns the <html> element, or nil.
func (d *Document) DocumentElement() *html.Node {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	de := d.DocumentElement()
	if de == nil {
		return nil
	}
	for c := de.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Body {
			return c
		}
	}
	return nil
}

// Attached reports whether n is part of this document's tree.
func (d *Document) Attached(n *html.Node) bool {
	return Contains(d.root, n)
}

// Render serialises the whole document.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document, ignoring errors.
func (d *Document) String() string {
	var buf bytes.Buffer
	_ = d.Render(&buf)
	return buf.String()
}

// Slot returns the value stored under key, creating it with create on
// first use. It gives per-document singletons (one inspector per page)
// without package-level globals.
func (d *Document) Slot(key string, create func() any) any {
	if v, ok := d.slots[key]; ok {
		return v
	}
	v := create()
	d.slots[key] = v
	return v
}
