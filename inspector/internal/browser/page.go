package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
	"github.com/hazyhaar/elemscope/overlay"
	"github.com/hazyhaar/elemscope/selector"
)

// measureTimeout bounds a single geometry query.
const measureTimeout = 2 * time.Second

// Page is one navigated tab.
type Page struct {
	page   *rod.Page
	url    string
	logger *slog.Logger
}

// URL returns the address the tab was opened on.
func (p *Page) URL() string { return p.url }

// Snapshot serialises the live DOM and parses it into a Document. XPath
// positions in the snapshot match the live page until it mutates.
func (p *Page) Snapshot(ctx context.Context) (*dom.Document, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	doc, err := dom.ParseString(res.Value.Str())
	if err != nil {
		return nil, fmt.Errorf("browser: parse DOM: %w", err)
	}
	return doc, nil
}

// Layout returns a dom.Layout answering from the live tab for nodes of doc.
func (p *Page) Layout(doc *dom.Document) *Layout {
	return &Layout{page: p, paths: selector.New(doc)}
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

// Layout measures snapshot nodes by resolving their absolute XPath in the
// live tab. Nodes absent from the tab (the overlay) are reported as not
// measurable.
type Layout struct {
	page  *Page
	paths *selector.Synthesizer
}

const rectJS = `(xp) => {
	const n = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!n || !n.getBoundingClientRect) return null;
	const r = n.getBoundingClientRect();
	return {left: r.left, top: r.top, width: r.width, height: r.height};
}`

func (l *Layout) BoundingClientRect(n *html.Node) (dom.Rect, bool) {
	if overlay.IsOverlay(n) {
		return dom.Rect{}, false
	}
	xp, err := l.paths.BuildAbsoluteXPath(n)
	if err != nil {
		return dom.Rect{}, false
	}
	res, err := l.page.page.Timeout(measureTimeout).Eval(rectJS, xp)
	if err != nil {
		l.page.logger.Debug("browser: measure failed", "xpath", xp, "error", err)
		return dom.Rect{}, false
	}
	if res.Value.Nil() {
		return dom.Rect{}, false
	}
	return dom.Rect{
		Left:   res.Value.Get("left").Num(),
		Top:    res.Value.Get("top").Num(),
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, true
}

func (l *Layout) Viewport() dom.Size {
	res, err := l.page.page.Timeout(measureTimeout).Eval(`() => ({width: window.innerWidth, height: window.innerHeight})`)
	if err != nil {
		l.page.logger.Debug("browser: viewport failed", "error", err)
		return dom.Size{}
	}
	return dom.Size{
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}
}
