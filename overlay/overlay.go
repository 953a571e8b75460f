// Package overlay renders the inspection highlight box and its metadata
// tooltip as fixed-position nodes of the inspected document.
package overlay

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
)

// MarkerAttr tags every node owned by the overlay.
const MarkerAttr = "data-elemscope-overlay"

// ErrNoDocumentElement is returned by Mount when the document has no <html>
// element to host the overlay.
var ErrNoDocumentElement = errors.New("overlay: document has no document element")

// Style controls overlay colours and the metrics used to estimate the
// tooltip size when the layout cannot measure it.
type Style struct {
	HighlightBorder string  `yaml:"highlight_border" json:"highlight_border"`
	HighlightFill   string  `yaml:"highlight_fill" json:"highlight_fill"`
	TooltipBack     string  `yaml:"tooltip_background" json:"tooltip_background"`
	TooltipColor    string  `yaml:"tooltip_color" json:"tooltip_color"`
	FontFamily      string  `yaml:"font_family" json:"font_family"`
	FontSize        float64 `yaml:"font_size" json:"font_size"`
	CharWidth       float64 `yaml:"char_width" json:"char_width"`
	LineHeight      float64 `yaml:"line_height" json:"line_height"`
	Padding         float64 `yaml:"padding" json:"padding"`
	MaxWidth        float64 `yaml:"max_width" json:"max_width"`
}

// DefaultStyle returns the built-in overlay style.
func DefaultStyle() Style {
	return Style{
		HighlightBorder: "#1a73e8",
		HighlightFill:   "rgba(26,115,232,0.15)",
		TooltipBack:     "#202124",
		TooltipColor:    "#f1f3f4",
		FontFamily:      "monospace",
		FontSize:        12,
		CharWidth:       7,
		LineHeight:      16,
		Padding:         8,
		MaxWidth:        420,
	}
}

// withDefaults fills zero fields from DefaultStyle.
func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.HighlightBorder == "" {
		s.HighlightBorder = d.HighlightBorder
	}
	if s.HighlightFill == "" {
		s.HighlightFill = d.HighlightFill
	}
	if s.TooltipBack == "" {
		s.TooltipBack = d.TooltipBack
	}
	if s.TooltipColor == "" {
		s.TooltipColor = d.TooltipColor
	}
	if s.FontFamily == "" {
		s.FontFamily = d.FontFamily
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.CharWidth <= 0 {
		s.CharWidth = d.CharWidth
	}
	if s.LineHeight <= 0 {
		s.LineHeight = d.LineHeight
	}
	if s.Padding <= 0 {
		s.Padding = d.Padding
	}
	if s.MaxWidth <= 0 {
		s.MaxWidth = d.MaxWidth
	}
	return s
}

// Renderer owns the highlight and tooltip nodes of one document.
type Renderer struct {
	doc    *dom.Document
	layout dom.Layout
	style  Style

	highlight *html.Node
	tooltip   *html.Node
	visible   bool
	geometry  dom.Rect
	tipPos    dom.Point
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithStyle overrides the default style. Zero fields keep their defaults.
func WithStyle(s Style) Option {
	return func(r *Renderer) { r.style = s.withDefaults() }
}

// New creates an unmounted renderer.
func New(doc *dom.Document, layout dom.Layout, opts ...Option) *Renderer {
	r := &Renderer{doc: doc, layout: layout, style: DefaultStyle()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Mount creates both overlay nodes, hidden, as the last children of the
// document element. Mounting twice is a no-op.
func (r *Renderer) Mount() error {
	if r.Mounted() {
		return nil
	}
	root := r.doc.DocumentElement()
	if root == nil {
		return ErrNoDocumentElement
	}
	r.highlight = dom.NewElement("div", html.Attribute{Key: MarkerAttr, Val: "highlight"})
	r.tooltip = dom.NewElement("div", html.Attribute{Key: MarkerAttr, Val: "tooltip"})
	root.AppendChild(r.highlight)
	root.AppendChild(r.tooltip)
	r.Hide()
	return nil
}

// Unmount removes both nodes from the document.
func (r *Renderer) Unmount() {
	dom.Detach(r.highlight)
	dom.Detach(r.tooltip)
	r.highlight, r.tooltip = nil, nil
	r.visible = false
	r.geometry = dom.Rect{}
	r.tipPos = dom.Point{}
}

// Mounted reports whether the overlay nodes are in the document.
func (r *Renderer) Mounted() bool {
	return r.highlight != nil && r.doc.Attached(r.highlight)
}

// Visible reports whether the overlay is currently shown.
func (r *Renderer) Visible() bool { return r.visible }

// Geometry returns the last highlight rectangle, in viewport coordinates.
func (r *Renderer) Geometry() dom.Rect { return r.geometry }

// TooltipPosition returns the last tooltip position.
func (r *Renderer) TooltipPosition() dom.Point { return r.tipPos }

// Highlight returns the highlight node, nil when unmounted.
func (r *Renderer) Highlight() *html.Node { return r.highlight }

// Tooltip returns the tooltip node, nil when unmounted.
func (r *Renderer) Tooltip() *html.Node { return r.tooltip }

// TooltipText returns the rendered tooltip lines.
func (r *Renderer) TooltipText() []string {
	if r.tooltip == nil {
		return nil
	}
	return textLines(r.tooltip)
}

// Show rebuilds the tooltip content for n and positions both nodes. It
// returns false, leaving the overlay hidden, when n cannot be measured.
func (r *Renderer) Show(n *html.Node) bool {
	if !r.Mounted() {
		return false
	}
	renderTooltip(r.tooltip, Lines(n))
	return r.Reposition(n)
}

// Reposition recomputes geometry for n without touching tooltip content.
func (r *Renderer) Reposition(n *html.Node) bool {
	if !r.Mounted() {
		return false
	}
	rect, ok := r.layout.BoundingClientRect(n)
	if !ok || !r.doc.Attached(n) {
		r.Hide()
		return false
	}
	r.geometry = rect
	dom.SetAttr(r.highlight, "style", r.highlightStyle(rect))

	vp := r.layout.Viewport()
	tip := r.tooltipSize()

	// Horizontal placement is written first; the tooltip is re-measured
	// at its new left before the vertical decision.
	left := PlaceLeft(rect, tip, vp)
	dom.SetAttr(r.tooltip, "style", r.tooltipStyle(dom.Point{Left: left, Top: rect.Bottom() + margin}))
	tip = r.tooltipSize()
	top := PlaceTop(rect, tip, vp)

	r.tipPos = dom.Point{Left: left, Top: top}
	dom.SetAttr(r.tooltip, "style", r.tooltipStyle(r.tipPos))
	r.visible = true
	return true
}

// Hide sets display:none on both nodes.
func (r *Renderer) Hide() {
	if r.highlight == nil {
		return
	}
	dom.SetAttr(r.highlight, "style", r.baseStyle()+"display:none;")
	dom.SetAttr(r.tooltip, "style", r.baseStyle()+"display:none;")
	r.visible = false
}

// IsOverlay reports whether n is, or is inside, an overlay node.
func IsOverlay(n *html.Node) bool {
	seen := make(map[*html.Node]struct{})
	for cur := n; cur != nil; cur = cur.Parent {
		if _, ok := dom.Attr(cur, MarkerAttr); ok && dom.IsElement(cur) {
			return true
		}
		if _, dup := seen[cur]; dup {
			return false
		}
		seen[cur] = struct{}{}
	}
	return false
}

func (r *Renderer) tooltipSize() dom.Size {
	if rect, ok := r.layout.BoundingClientRect(r.tooltip); ok && rect.Width > 0 && rect.Height > 0 {
		return dom.Size{Width: rect.Width, Height: rect.Height}
	}
	return EstimateSize(textLines(r.tooltip), r.style)
}

func (r *Renderer) baseStyle() string {
	return "position:fixed;pointer-events:none;z-index:2147483647;"
}

func (r *Renderer) highlightStyle(rect dom.Rect) string {
	return r.baseStyle() + fmt.Sprintf(
		"left:%gpx;top:%gpx;width:%gpx;height:%gpx;border:2px solid %s;background:%s;box-sizing:border-box;display:block;",
		rect.Left, rect.Top, rect.Width, rect.Height, r.style.HighlightBorder, r.style.HighlightFill)
}

func (r *Renderer) tooltipStyle(p dom.Point) string {
	return r.baseStyle() + fmt.Sprintf(
		"left:%gpx;top:%gpx;max-width:%gpx;padding:%gpx;background:%s;color:%s;font:%gpx/%gpx %s;white-space:pre-wrap;display:block;",
		p.Left, p.Top, r.style.MaxWidth, r.style.Padding, r.style.TooltipBack, r.style.TooltipColor,
		r.style.FontSize, r.style.LineHeight, r.style.FontFamily)
}

// HighlightCSS returns the inline style of the highlight node, or "" when
// unmounted.
func (r *Renderer) HighlightCSS() string { return dom.AttrValue(r.highlight, "style") }

// TooltipCSS returns the inline style of the tooltip node, or "" when
// unmounted.
func (r *Renderer) TooltipCSS() string { return dom.AttrValue(r.tooltip, "style") }

// StyleValue returns the value of prop in n's inline style, or "".
func StyleValue(n *html.Node, prop string) string {
	for _, decl := range strings.Split(dom.AttrValue(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(k) == prop {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
