package dom

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPath evaluates expr against the whole document and returns the matching
// nodes in document order.
func (d *Document) XPath(expr string) ([]*html.Node, error) {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("dom: xpath %q: %w", expr, err)
	}
	return nodes, nil
}

// QuerySelectorAll evaluates a CSS selector against the whole document.
// An invalid selector matches nothing.
func (d *Document) QuerySelectorAll(sel string) []*html.Node {
	return goquery.NewDocumentFromNode(d.root).Find(sel).Nodes
}

// UniqueXPath reports whether expr matches exactly one node and that node
// is want. Evaluation errors count as "not unique".
func (d *Document) UniqueXPath(expr string, want *html.Node) bool {
	nodes, err := d.XPath(expr)
	if err != nil {
		return false
	}
	return len(nodes) == 1 && nodes[0] == want
}

// UniqueSelector is UniqueXPath for CSS selectors.
func (d *Document) UniqueSelector(sel string, want *html.Node) bool {
	nodes := d.QuerySelectorAll(sel)
	return len(nodes) == 1 && nodes[0] == want
}

// FindXPath returns the single node matched by expr. It fails when expr
// does not evaluate or matches zero or several nodes.
func (d *Document) FindXPath(expr string) (*html.Node, error) {
	nodes, err := d.XPath(expr)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("dom: xpath %q matched %d nodes", expr, len(nodes))
	}
	return nodes[0], nil
}
