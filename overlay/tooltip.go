package overlay

import (
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
	"github.com/hazyhaar/elemscope/extract"
)

// margin is the gap between the target and the tooltip, and the minimum
// distance kept from the viewport edges.
const margin = 10

const (
	maxValueLen = 60
	maxTextLen  = 80
)

// Line is one rendered tooltip line.
type Line struct {
	Kind string // "header", "title" or "entry"
	Text string
}

// Lines builds the tooltip content for n: a tag#id.class header, then one
// titled block per attribute category.
func Lines(n *html.Node) []Line {
	sum := extract.Summarize(n)
	header := sum.TagName
	if sum.ID != "" {
		header += "#" + sum.ID
	}
	for _, c := range strings.Fields(sum.ClassName) {
		header += "." + c
	}
	lines := []Line{{Kind: "header", Text: header}}

	for _, sec := range extract.Categorize(extract.AttributesOf(n), sum.Text) {
		lines = append(lines, Line{Kind: "title", Text: sec.Title})
		for _, e := range sec.Entries {
			lines = append(lines, Line{Kind: "entry", Text: e.Name + ": " + extract.Truncate(e.Value, maxValueLen)})
		}
		if sec.Text != "" {
			lines = append(lines, Line{Kind: "entry", Text: `text: "` + extract.Truncate(sec.Text, maxTextLen) + `"`})
		}
	}
	return lines
}

// renderTooltip replaces the tooltip children with one div per line.
func renderTooltip(tip *html.Node, lines []Line) {
	dom.SetText(tip, "")
	for _, l := range lines {
		row := dom.NewElement("div", html.Attribute{Key: MarkerAttr, Val: l.Kind})
		dom.SetText(row, l.Text)
		tip.AppendChild(row)
	}
}

// textLines reads the rendered lines back from the tooltip node.
func textLines(tip *html.Node) []string {
	var out []string
	for _, row := range dom.ElementChildren(tip) {
		out = append(out, extract.Text(row))
	}
	return out
}

// EstimateSize approximates the rendered size of lines in a monospace font.
// Lines wider than the max width wrap.
func EstimateSize(lines []string, s Style) dom.Size {
	s = s.withDefaults()
	inner := s.MaxWidth - 2*s.Padding
	if inner < s.CharWidth {
		inner = s.CharWidth
	}
	var widest float64
	rows := 0
	for _, l := range lines {
		w := float64(utf8.RuneCountInString(l)) * s.CharWidth
		if w > inner {
			rows += int(math.Ceil(w / inner))
			w = inner
		} else {
			rows++
		}
		widest = math.Max(widest, w)
	}
	return dom.Size{
		Width:  widest + 2*s.Padding,
		Height: float64(rows)*s.LineHeight + 2*s.Padding,
	}
}

// PlaceLeft returns the tooltip left edge: aligned with the target, shifted
// so the right edge stays margin away from the viewport, never below margin.
func PlaceLeft(target dom.Rect, tip, vp dom.Size) float64 {
	left := target.Left
	if left+tip.Width > vp.Width-margin {
		left = vp.Width - tip.Width - margin
	}
	return math.Max(left, margin)
}

// PlaceTop returns the tooltip top edge: below the target, flipped above it
// on bottom overflow unless the flip would cross the top margin.
func PlaceTop(target dom.Rect, tip, vp dom.Size) float64 {
	top := target.Bottom() + margin
	if top+tip.Height > vp.Height-margin {
		if above := target.Top - tip.Height - margin; above >= margin {
			top = above
		}
	}
	return top
}

// PlaceTooltip combines PlaceLeft and PlaceTop for a fixed tooltip size.
func PlaceTooltip(target dom.Rect, tip, vp dom.Size) dom.Point {
	return dom.Point{Left: PlaceLeft(target, tip, vp), Top: PlaceTop(target, tip, vp)}
}
