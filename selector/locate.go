package selector

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
)

// Strategy names the bundle field that re-located an element.
type Strategy string

const (
	StrategyCSS       Strategy = "css"
	StrategyXPath     Strategy = "xpath"
	StrategyFullXPath Strategy = "fullXPath"
)

// ErrNotFound is returned when no field of a bundle matches exactly one
// element.
var ErrNotFound = errors.New("selector: no unique match")

// Locate re-finds the element described by b in doc. Fields are tried from
// most to least robust: relative XPath, CSS, then absolute XPath. The first
// one matching exactly one element wins.
func Locate(doc *dom.Document, b Bundle) (*html.Node, Strategy, error) {
	var errs []error

	if b.XPath != "" {
		n, err := doc.FindXPath(b.XPath)
		if err == nil {
			return n, StrategyXPath, nil
		}
		errs = append(errs, err)
	}

	if b.CSS != "" {
		nodes := doc.QuerySelectorAll(b.CSS)
		if len(nodes) == 1 {
			return nodes[0], StrategyCSS, nil
		}
		errs = append(errs, fmt.Errorf("selector: css %q matched %d nodes", b.CSS, len(nodes)))
	}

	if b.FullXPath != "" {
		n, err := doc.FindXPath(b.FullXPath)
		if err == nil {
			return n, StrategyFullXPath, nil
		}
		errs = append(errs, err)
	}

	return nil, "", errors.Join(append([]error{ErrNotFound}, errs...)...)
}
