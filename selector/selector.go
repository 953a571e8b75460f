// Package selector synthesizes identifiers that re-locate a DOM element: a
// CSS selector, a relative XPath and an absolute XPath. Candidates that
// claim uniqueness are proven by re-querying the live document.
package selector

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
	"github.com/hazyhaar/elemscope/extract"
)

var (
	// ErrNotElement is returned when the node to describe is not an element.
	ErrNotElement = errors.New("selector: not an element node")
	// ErrDetached is returned when an XPath chain never reaches <html>.
	ErrDetached = errors.New("selector: element is not attached under <html>")
	// ErrCycle is returned when a parent walk revisits a node.
	ErrCycle = errors.New("selector: cyclic parent chain")
)

// Bundle is the identifier package produced for one inspected element.
type Bundle struct {
	CSS         string             `json:"css"`
	XPath       string             `json:"xpath"`
	FullXPath   string             `json:"fullXPath"`
	Attributes  extract.Attributes `json:"attributes"`
	ElementInfo extract.Summary    `json:"elementInfo"`
}

// Synthesizer builds selectors against one document.
type Synthesizer struct {
	doc       *dom.Document
	verifyIDs bool
	logger    *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithVerifiedIDs makes the id shortcuts prove page-wide uniqueness before
// they are used. Without it ids are trusted.
func WithVerifiedIDs(on bool) Option {
	return func(s *Synthesizer) { s.verifyIDs = on }
}

// WithLogger sets the logger used for rejected candidates.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Synthesizer for doc.
func New(doc *dom.Document, opts ...Option) *Synthesizer {
	s := &Synthesizer{doc: doc, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize builds the full bundle for n. The three strategies run
// independently: when one fails the others are still returned, together
// with the joined error.
func (s *Synthesizer) Synthesize(n *html.Node) (Bundle, error) {
	if !dom.IsElement(n) {
		return Bundle{}, ErrNotElement
	}

	var errs []error
	b := Bundle{
		Attributes:  extract.AttributesOf(n),
		ElementInfo: extract.Summarize(n),
	}

	var err error
	if b.CSS, err = s.BuildCSS(n); err != nil {
		errs = append(errs, fmt.Errorf("css: %w", err))
	}
	if b.XPath, err = s.BuildXPath(n); err != nil {
		errs = append(errs, fmt.Errorf("xpath: %w", err))
	}
	if b.FullXPath, err = s.BuildAbsoluteXPath(n); err != nil {
		errs = append(errs, fmt.Errorf("full xpath: %w", err))
	}
	return b, errors.Join(errs...)
}

// unique runs a uniqueness proof and logs rejected candidates.
func (s *Synthesizer) unique(kind, candidate string, n *html.Node) bool {
	var ok bool
	switch kind {
	case "css":
		ok = s.doc.UniqueSelector(candidate, n)
	default:
		ok = s.doc.UniqueXPath(candidate, n)
	}
	if !ok {
		s.logger.Debug("selector: candidate rejected", "kind", kind, "candidate", candidate)
	}
	return ok
}
