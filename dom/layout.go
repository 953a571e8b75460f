package dom

import (
	"math"
	"sync"

	"golang.org/x/net/html"
)

// Rect is a box in viewport (fixed-position) coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a viewport position.
type Point struct {
	Left float64 `json:"left"`
	Top  float64 `json:"top"`
}

// Layout answers geometry questions about rendered nodes.
type Layout interface {
	// BoundingClientRect returns the viewport-relative box of n. ok is
	// false when the layout cannot measure the node.
	BoundingClientRect(n *html.Node) (r Rect, ok bool)
	// Viewport returns the current viewport size.
	Viewport() Size
}

// StaticLayout is a Layout backed by fixed document-space boxes and a
// scroll offset. Safe for concurrent use.
type StaticLayout struct {
	mu       sync.RWMutex
	boxes    map[*html.Node]Rect
	viewport Size
	scrollX  float64
	scrollY  float64
}

// NewStaticLayout creates an empty layout with the given viewport.
func NewStaticLayout(viewport Size) *StaticLayout {
	return &StaticLayout{boxes: make(map[*html.Node]Rect), viewport: viewport}
}

// Set records the document-space box of n.
func (l *StaticLayout) Set(n *html.Node, r Rect) {
	l.mu.Lock()
	l.boxes[n] = r
	l.mu.Unlock()
}

// ScrollTo sets the scroll offset.
func (l *StaticLayout) ScrollTo(x, y float64) {
	l.mu.Lock()
	l.scrollX, l.scrollY = x, y
	l.mu.Unlock()
}

// Resize changes the viewport.
func (l *StaticLayout) Resize(vp Size) {
	l.mu.Lock()
	l.viewport = vp
	l.mu.Unlock()
}

func (l *StaticLayout) BoundingClientRect(n *html.Node) (Rect, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.boxes[n]
	if !ok {
		return Rect{}, false
	}
	r.Left -= l.scrollX
	r.Top -= l.scrollY
	return r, true
}

func (l *StaticLayout) Viewport() Size {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.viewport
}

// FlowLayout derives an outline geometry from document order when no
// renderer is available: every element below <body> gets one row of
// RowHeight, indented by Indent per nesting level and spanning the rest of
// the viewport width. A parent's box covers its descendants' rows.
type FlowLayout struct {
	mu        sync.Mutex
	doc       *Document
	static    *StaticLayout
	RowHeight float64
	Indent    float64
}

// NewFlowLayout creates a flow layout over doc.
func NewFlowLayout(doc *Document, viewport Size) *FlowLayout {
	return &FlowLayout{doc: doc, static: NewStaticLayout(viewport), RowHeight: 20, Indent: 16}
}

// Reflow recomputes every box. Call it after mutating the document.
func (l *FlowLayout) Reflow() {
	l.mu.Lock()
	defer l.mu.Unlock()

	vw := l.static.Viewport().Width
	row := 0
	var place func(n *html.Node, depth int)
	place = func(n *html.Node, depth int) {
		first := row
		row++
		for _, c := range ElementChildren(n) {
			place(c, depth+1)
		}
		left := float64(depth) * l.Indent
		l.static.Set(n, Rect{
			Left:   left,
			Top:    float64(first) * l.RowHeight,
			Width:  math.Max(vw-left, 0),
			Height: float64(row-first) * l.RowHeight,
		})
	}
	if body := l.doc.Body(); body != nil {
		place(body, 0)
	}
}

// ScrollTo sets the scroll offset.
func (l *FlowLayout) ScrollTo(x, y float64) { l.static.ScrollTo(x, y) }

// Resize changes the viewport and reflows.
func (l *FlowLayout) Resize(vp Size) {
	l.static.Resize(vp)
	l.Reflow()
}

func (l *FlowLayout) BoundingClientRect(n *html.Node) (Rect, bool) {
	l.mu.Lock()
	empty := len(l.static.boxes) == 0
	l.mu.Unlock()
	if empty {
		l.Reflow()
	}
	return l.static.BoundingClientRect(n)
}

func (l *FlowLayout) Viewport() Size { return l.static.Viewport() }
