// Package inspector is the interactive element inspector: an activation
// state machine that routes page events to the overlay and, on click,
// synthesizes a selector bundle and ships it to the configured sink.
//
// One Engine serves one document. All document access goes through the
// engine, which serialises it; events must be fed with Dispatch or
// DispatchAt rather than dispatched on the document directly.
package inspector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
	"github.com/hazyhaar/elemscope/idgen"
	"github.com/hazyhaar/elemscope/inspector/internal/sink"
	"github.com/hazyhaar/elemscope/inspector/message"
	"github.com/hazyhaar/elemscope/kit"
	"github.com/hazyhaar/elemscope/overlay"
	"github.com/hazyhaar/elemscope/selector"
	"github.com/hazyhaar/elemscope/snippet"
)

// State is the activation state.
type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Scheduler runs f after d. The returned function cancels it and reports
// whether it was still pending.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// OverlayStatus is the overlay as last rendered.
type OverlayStatus struct {
	Visible   bool      `json:"visible"`
	Highlight dom.Rect  `json:"highlight"`
	Tooltip   dom.Point `json:"tooltip"`
	Lines     []string  `json:"lines,omitempty"`

	// inline CSS of both nodes, configured style applied
	HighlightCSS string `json:"highlight_css,omitempty"`
	TooltipCSS   string `json:"tooltip_css,omitempty"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	State   string        `json:"state"`
	Hovered string        `json:"hovered,omitempty"` // absolute XPath
	Overlay OverlayStatus `json:"overlay"`
}

// binding is one listener registration, built once so the same listener
// pointer is used to add and to remove.
type binding struct {
	target dom.Target
	typ    dom.EventType
	phase  dom.Phase
	l      *dom.Listener
}

// Engine is the inspection state machine of one document.
type Engine struct {
	mu sync.Mutex

	doc      *dom.Document
	layout   dom.Layout
	overlay  *overlay.Renderer
	synth    *selector.Synthesizer
	exporter *snippet.Exporter

	sink           sink.Sink
	logger         *slog.Logger
	sched          Scheduler
	recomputeDelay time.Duration
	newID          idgen.Generator
	now            func() time.Time
	onRender       func(OverlayStatus)
	onState        func(State)
	endpointMW     []func(op string) kit.Middleware
	baseURL        string

	// consumed by New
	verifyIDs bool
	style     *overlay.Style

	state    State
	reported State
	hovered  *html.Node
	gen      uint64
	timerSeq uint64
	pending  map[uint64]func() bool
	bindings []binding
	outbox   []message.Event
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sets where events are delivered. Default: discarded.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithScheduler replaces the timer used for scroll/resize recomputes.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithRecomputeDelay sets the delay of the follow-up geometry recompute
// after scroll and resize. Default: 10ms.
func WithRecomputeDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.recomputeDelay = d
		}
	}
}

// WithVerifiedIDs makes id-based selectors prove uniqueness.
func WithVerifiedIDs(on bool) Option {
	return func(e *Engine) { e.verifyIDs = on }
}

// WithOverlayStyle sets the overlay style.
func WithOverlayStyle(s overlay.Style) Option {
	return func(e *Engine) { e.style = &s }
}

// WithIDGenerator sets the event ID generator. Default: evt_ + UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(e *Engine) { e.newID = g }
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRenderHook registers fn to receive the overlay state after every
// change. fn runs outside the engine lock.
func WithRenderHook(fn func(OverlayStatus)) Option {
	return func(e *Engine) { e.onRender = fn }
}

// WithStateHook registers fn to receive every activation state change.
// fn runs outside the engine lock.
func WithStateHook(fn func(State)) Option {
	return func(e *Engine) { e.onState = fn }
}

// WithEndpointMiddleware adds a middleware to every endpoint. mw receives
// the operation name.
func WithEndpointMiddleware(mw func(op string) kit.Middleware) Option {
	return func(e *Engine) { e.endpointMW = append(e.endpointMW, mw) }
}

// WithBaseURL sets the page address used to absolutise links in snippets.
func WithBaseURL(u string) Option {
	return func(e *Engine) { e.baseURL = u }
}

const slotKey = "elemscope.inspector"

// Attach returns the document's engine, creating it on first use. Later
// calls return the same engine and ignore their options.
func Attach(doc *dom.Document, layout dom.Layout, opts ...Option) *Engine {
	return doc.Slot(slotKey, func() any { return New(doc, layout, opts...) }).(*Engine)
}

// New creates an Inactive engine. Prefer Attach, which guarantees one
// engine per document.
func New(doc *dom.Document, layout dom.Layout, opts ...Option) *Engine {
	e := &Engine{
		doc:            doc,
		layout:         layout,
		logger:         slog.Default(),
		sched:          timerScheduler{},
		recomputeDelay: 10 * time.Millisecond,
		newID:          idgen.Prefixed("evt_", idgen.Default),
		now:            time.Now,
		pending:        make(map[uint64]func() bool),
		exporter:       snippet.New(),
	}
	for _, o := range opts {
		o(e)
	}

	var ropts []overlay.Option
	if e.style != nil {
		ropts = append(ropts, overlay.WithStyle(*e.style))
	}
	e.overlay = overlay.New(doc, layout, ropts...)
	e.synth = selector.New(doc, selector.WithVerifiedIDs(e.verifyIDs), selector.WithLogger(e.logger))

	capture := []struct {
		typ dom.EventType
		fn  func(*dom.Event)
	}{
		{dom.MouseOver, e.onMouseOver},
		{dom.MouseOut, e.onMouseOut},
		{dom.Click, e.onClick},
		{dom.ContextMenu, e.onContextMenu},
		{dom.KeyDown, e.onKeyDown},
		{dom.Scroll, e.onScrollOrResize},
	}
	for _, c := range capture {
		e.bindings = append(e.bindings, binding{
			target: dom.DocumentTarget, typ: c.typ, phase: dom.Capture, l: dom.NewListener(c.fn),
		})
	}
	e.bindings = append(e.bindings, binding{
		target: dom.WindowTarget, typ: dom.Resize, phase: dom.Bubble, l: dom.NewListener(e.onScrollOrResize),
	})
	return e
}

// Document returns the inspected document.
func (e *Engine) Document() *dom.Document { return e.doc }

// State returns the current activation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Activate enters the Active state: mounts the overlay and registers every
// listener. Activating an Active engine is a no-op.
func (e *Engine) Activate(ctx context.Context) error {
	e.mu.Lock()
	err := e.activateLocked()
	e.unlock(ctx)
	return err
}

func (e *Engine) activateLocked() error {
	if e.state == Active {
		return nil
	}
	if err := e.overlay.Mount(); err != nil {
		aerr := &ActivationError{Op: "mount overlay", Cause: err}
		e.logger.Error("inspector: activate", "error", aerr)
		e.emit(message.Event{Type: message.EvtError, Message: aerr.Error()})
		return aerr
	}
	for _, b := range e.bindings {
		e.doc.AddEventListener(b.target, b.typ, b.l, b.phase)
	}
	e.state = Active
	e.gen++
	e.logger.Info("inspector: activated")
	return nil
}

// Deactivate leaves the Active state: removes listeners and overlay and
// drops pending recomputes. It emits no event. Deactivating an Inactive
// engine is a no-op.
func (e *Engine) Deactivate(ctx context.Context) {
	e.mu.Lock()
	e.deactivateLocked("command")
	e.unlock(ctx)
}

func (e *Engine) deactivateLocked(cause string) bool {
	if e.state == Inactive {
		return false
	}
	for _, b := range e.bindings {
		e.doc.RemoveEventListener(b.target, b.typ, b.l, b.phase)
	}
	for id, stop := range e.pending {
		stop()
		delete(e.pending, id)
	}
	e.overlay.Unmount()
	e.hovered = nil
	e.state = Inactive
	e.gen++
	e.logger.Info("inspector: deactivated", "cause", cause)
	return true
}

// Dispatch routes ev through the document. It returns false when a
// listener cancelled the event.
func (e *Engine) Dispatch(ctx context.Context, ev *dom.Event) bool {
	e.mu.Lock()
	ok := e.doc.DispatchEvent(ev)
	e.unlock(ctx)
	return ok
}

// EventInput addresses an event by absolute XPath, for transports that
// cannot hold node references.
type EventInput struct {
	Type          dom.EventType `json:"type"`
	Target        string        `json:"target,omitempty"`
	RelatedTarget string        `json:"related_target,omitempty"`
	Key           string        `json:"key,omitempty"`
}

// DispatchAt resolves in against the document and dispatches it. An empty
// target means the window for resize and <body> otherwise.
func (e *Engine) DispatchAt(ctx context.Context, in EventInput) (bool, error) {
	switch in.Type {
	case dom.MouseOver, dom.MouseOut, dom.Click, dom.ContextMenu, dom.KeyDown, dom.Scroll, dom.Resize:
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Type)
	}

	e.mu.Lock()
	ev := &dom.Event{Type: in.Type, Key: in.Key}
	var err error
	switch {
	case in.Target != "":
		ev.Target, err = e.resolve(in.Target)
	case in.Type != dom.Resize:
		ev.Target = e.doc.Body()
		if ev.Target == nil {
			ev.Target = e.doc.DocumentElement()
		}
	}
	if err == nil && in.RelatedTarget != "" {
		ev.RelatedTarget, err = e.resolve(in.RelatedTarget)
	}
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	ok := e.doc.DispatchEvent(ev)
	e.unlock(ctx)
	return ok, nil
}

func (e *Engine) resolve(xpath string) (*html.Node, error) {
	n, err := e.doc.FindXPath(xpath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, xpath)
	}
	return n, nil
}

func (e *Engine) onMouseOver(ev *dom.Event) {
	t := ev.Target
	if !dom.IsElement(t) || dom.IsPageRoot(t) || overlay.IsOverlay(t) {
		return
	}
	e.hovered = t
	e.overlay.Show(t)
}

func (e *Engine) onMouseOut(ev *dom.Event) {
	if overlay.IsOverlay(ev.Target) {
		return
	}
	if !dom.Contains(ev.Target, ev.RelatedTarget) {
		e.overlay.Hide()
		e.hovered = nil
	}
}

func (e *Engine) onClick(ev *dom.Event) {
	ev.PreventDefault()
	ev.StopPropagation()
	if overlay.IsOverlay(ev.Target) {
		return
	}

	bundle, err := e.synthesize(ev.Target)
	if err != nil {
		serr := &SynthesisError{Tag: dom.TagName(ev.Target), Cause: err}
		e.logger.Warn("inspector: click", "error", serr)
		e.emit(message.Event{Type: message.EvtError, Message: serr.Error()})
		if e.deactivateLocked("error") {
			e.emit(message.Event{Type: message.EvtDeactivated, Reason: message.ReasonError})
		}
		return
	}

	if e.deactivateLocked("inspected") {
		e.emit(message.Event{Type: message.EvtDeactivated, Reason: message.ReasonInspected})
	}
	e.emit(message.Event{Type: message.EvtSelectors, Selectors: &bundle})
}

// synthesize builds the bundle for n, converting panics into errors.
func (e *Engine) synthesize(n *html.Node) (b selector.Bundle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.synth.Synthesize(n)
}

func (e *Engine) onContextMenu(ev *dom.Event) {
	ev.PreventDefault()
	if e.deactivateLocked("contextmenu") {
		e.emit(message.Event{Type: message.EvtDeactivated, Reason: message.ReasonContextMenu})
	}
}

func (e *Engine) onKeyDown(ev *dom.Event) {
	if ev.Key != "Escape" {
		return
	}
	if e.deactivateLocked("escape") {
		e.emit(message.Event{Type: message.EvtDeactivated, Reason: message.ReasonEscape})
	}
}

// onScrollOrResize repositions immediately, then once more after the
// recompute delay to catch layout that settles late.
func (e *Engine) onScrollOrResize(*dom.Event) {
	if e.state != Active || e.hovered == nil {
		return
	}
	e.reposition()
	if e.hovered == nil {
		return
	}

	gen := e.gen
	e.timerSeq++
	id := e.timerSeq
	e.pending[id] = e.sched.AfterFunc(e.recomputeDelay, func() { e.recompute(gen, id) })
}

func (e *Engine) recompute(gen, id uint64) {
	e.mu.Lock()
	delete(e.pending, id)
	if e.gen != gen || e.state != Active || e.hovered == nil {
		e.mu.Unlock()
		return
	}
	e.reposition()
	e.unlock(context.Background())
}

// reposition updates geometry for the hovered node, forgetting it when it
// left the document.
func (e *Engine) reposition() {
	if !e.doc.Attached(e.hovered) {
		e.overlay.Hide()
		e.hovered = nil
		return
	}
	e.overlay.Reposition(e.hovered)
}

// emit queues ev for delivery once the lock is released.
func (e *Engine) emit(ev message.Event) {
	ev.ID = e.newID()
	ev.Timestamp = e.now().UnixMilli()
	e.outbox = append(e.outbox, ev)
}

// unlock releases the engine lock, then delivers queued events and the
// overlay state. Sinks may call back into the engine.
func (e *Engine) unlock(ctx context.Context) {
	out := e.outbox
	e.outbox = nil
	var st OverlayStatus
	if e.onRender != nil {
		st = e.overlayStatusLocked()
	}
	state, changed := e.state, e.state != e.reported
	e.reported = e.state
	e.mu.Unlock()

	if e.onRender != nil {
		e.onRender(st)
	}
	if changed && e.onState != nil {
		e.onState(state)
	}
	for _, ev := range out {
		if e.sink == nil {
			e.logger.Debug("inspector: event dropped, no sink", "type", ev.Type)
			continue
		}
		if err := e.sink.Send(ctx, ev); err != nil {
			e.logger.Warn("inspector: deliver event", "type", ev.Type, "error", err)
		}
	}
}

func (e *Engine) overlayStatusLocked() OverlayStatus {
	return OverlayStatus{
		Visible:   e.overlay.Visible(),
		Highlight: e.overlay.Geometry(),
		Tooltip:   e.overlay.TooltipPosition(),
		Lines:     e.overlay.TooltipText(),

		HighlightCSS: e.overlay.HighlightCSS(),
		TooltipCSS:   e.overlay.TooltipCSS(),
	}
}

// Status reports the state, the hovered node and the overlay.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{State: e.state.String(), Overlay: e.overlayStatusLocked()}
	if e.hovered != nil {
		st.Hovered, _ = e.synth.BuildAbsoluteXPath(e.hovered)
	}
	return st
}

// Selectors synthesizes the bundle for the node at xpath without a click
// cycle. It works in either state and emits nothing.
func (e *Engine) Selectors(xpath string) (selector.Bundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.resolve(xpath)
	if err != nil {
		return selector.Bundle{}, err
	}
	b, err := e.synthesize(n)
	if err != nil {
		return selector.Bundle{}, &SynthesisError{Tag: dom.TagName(n), Cause: err}
	}
	return b, nil
}

// Locate re-finds the element described by b and returns its absolute
// XPath together with the bundle field that matched.
func (e *Engine) Locate(b selector.Bundle) (string, selector.Strategy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, strategy, err := selector.Locate(e.doc, b)
	if err != nil {
		return "", "", err
	}
	xp, err := e.synth.BuildAbsoluteXPath(n)
	if err != nil {
		return "", "", err
	}
	return xp, strategy, nil
}

// Snippet exports the content of the node at xpath.
func (e *Engine) Snippet(xpath string, f snippet.Format) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, err := e.resolve(xpath)
	if err != nil {
		return "", err
	}
	return e.exporter.Export(n, f, e.baseURL)
}

// Render serialises the document, overlay included.
func (e *Engine) Render(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Render(w)
}
