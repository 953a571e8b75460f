package selector

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
)

// BuildCSS returns a CSS selector for n.
//
// An element with an id yields "#id". Otherwise the selector is the tag,
// its classes and :nth-child(k) (k counts every element sibling), prefixed
// by the parent's selector with the child combinator. Mixed-case foreign
// tags (SVG, MathML) use "*" in place of the tag. Chains end at body or
// html, so every selector without an id shortcut matches exactly n.
func (s *Synthesizer) BuildCSS(n *html.Node) (string, error) {
	if !dom.IsElement(n) {
		return "", ErrNotElement
	}
	return s.css(n, make(map[*html.Node]struct{}))
}

func (s *Synthesizer) css(n *html.Node, seen map[*html.Node]struct{}) (string, error) {
	if _, dup := seen[n]; dup {
		return "", ErrCycle
	}
	seen[n] = struct{}{}

	if id := dom.AttrValue(n, "id"); id != "" {
		if !s.verifyIDs {
			return "#" + id, nil
		}
		if sel := "#" + cssIdent(id); s.unique("css", sel, n) {
			return sel, nil
		}
	}

	tag := dom.LocalName(n)
	if tag == "html" || tag == "body" {
		return tag, nil
	}

	var sb strings.Builder
	if tag == strings.ToLower(tag) {
		sb.WriteString(cssIdent(tag))
	} else {
		// cascadia lowercases type selectors, so a mixed-case foreign tag
		// can never match by name. nth-child keeps the step exact.
		sb.WriteByte('*')
	}
	for _, c := range dom.ClassList(n) {
		sb.WriteByte('.')
		sb.WriteString(cssIdent(c))
	}

	parent := dom.ParentElement(n)
	if parent == nil {
		return sb.String(), nil
	}
	fmt.Fprintf(&sb, ":nth-child(%d)", dom.ElementIndex(n))

	prefix, err := s.css(parent, seen)
	if err != nil {
		return "", err
	}
	return prefix + " > " + sb.String(), nil
}

// cssIdent escapes s as a CSS identifier. Plain identifiers come back
// unchanged.
func cssIdent(s string) string {
	if s == "-" {
		return `\-`
	}
	var sb strings.Builder
	for i, r := range s {
		switch {
		case r == 0:
			sb.WriteRune('�')
		case r >= 0x1 && r <= 0x1f, r == 0x7f,
			i == 0 && r >= '0' && r <= '9',
			i == 1 && r >= '0' && r <= '9' && s[0] == '-':
			sb.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		case r >= 0x80, r == '-', r == '_',
			r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
