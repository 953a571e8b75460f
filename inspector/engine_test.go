package inspector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/elemscope/dom"
	"github.com/hazyhaar/elemscope/idgen"
	"github.com/hazyhaar/elemscope/inspector/message"
	"github.com/hazyhaar/elemscope/overlay"
	"github.com/hazyhaar/elemscope/snippet"
)

const page = `<!DOCTYPE html>
<html><head><title>Shop</title></head><body>
<main id="app">
  <form>
    <input name="q" placeholder="Search">
    <button>Go</button>
    <button>Go</button>
  </form>
  <p class="lead">Hello <a href="/docs">docs</a></p>
</main>
</body></html>`

const (
	xpMain    = "/html[1]/body[1]/main[1]"
	xpButton2 = "/html[1]/body[1]/main[1]/form[1]/button[2]"
	xpP       = "/html[1]/body[1]/main[1]/p[1]"
	xpA       = "/html[1]/body[1]/main[1]/p[1]/a[1]"
)

var testClock = time.UnixMilli(1700000000000)

type fakeTask struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeScheduler struct {
	tasks []*fakeTask
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	t := &fakeTask{d: d, f: f}
	s.tasks = append(s.tasks, t)
	return func() bool {
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// fire runs every task that is still pending.
func (s *fakeScheduler) fire() int {
	n := 0
	for _, t := range append([]*fakeTask(nil), s.tasks...) {
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.f()
		n++
	}
	return n
}

type harness struct {
	e      *Engine
	doc    *dom.Document
	layout *dom.FlowLayout
	sched  *fakeScheduler
	events []message.Event
}

func newHarness(t *testing.T, src string, opts ...Option) *harness {
	t.Helper()
	doc, err := dom.ParseString(src)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		doc:    doc,
		layout: dom.NewFlowLayout(doc, dom.Size{Width: 800, Height: 600}),
		sched:  &fakeScheduler{},
	}
	base := []Option{
		WithSink(NewCallbackSink(func(_ context.Context, ev message.Event) error {
			h.events = append(h.events, ev)
			return nil
		})),
		WithScheduler(h.sched),
		WithIDGenerator(idgen.Prefixed("evt_", idgen.Sequential())),
		WithClock(func() time.Time { return testClock }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.e = New(doc, h.layout, append(base, opts...)...)
	return h
}

func (h *harness) dispatch(t *testing.T, in EventInput) bool {
	t.Helper()
	ok, err := h.e.DispatchAt(context.Background(), in)
	if err != nil {
		t.Fatalf("dispatch %s: %v", in.Type, err)
	}
	return ok
}

func (h *harness) activate(t *testing.T) {
	t.Helper()
	if err := h.e.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
}

func overlayNodes(doc *dom.Document) int {
	return len(doc.QuerySelectorAll("[" + overlay.MarkerAttr + "]"))
}

func TestEngine_ActivateDeactivate(t *testing.T) {
	h := newHarness(t, page)
	ctx := context.Background()

	if h.e.State() != Inactive {
		t.Fatal("new engine must be inactive")
	}
	h.activate(t)
	h.activate(t)

	if h.e.State() != Active {
		t.Fatal("expected active")
	}
	if got := h.doc.ListenerCount(); got != 7 {
		t.Fatalf("listeners: got %d, want 7", got)
	}
	if got := len(h.doc.QuerySelectorAll("[" + overlay.MarkerAttr + "=highlight]")); got != 1 {
		t.Fatalf("highlight nodes: got %d, want 1", got)
	}

	h.e.Deactivate(ctx)
	h.e.Deactivate(ctx)

	if h.e.State() != Inactive {
		t.Fatal("expected inactive")
	}
	if got := h.doc.ListenerCount(); got != 0 {
		t.Fatalf("listeners after deactivate: got %d", got)
	}
	if got := overlayNodes(h.doc); got != 0 {
		t.Fatalf("overlay nodes after deactivate: got %d", got)
	}
	if len(h.events) != 0 {
		t.Fatalf("explicit activation cycle emitted %d events", len(h.events))
	}
}

func TestEngine_InactiveIgnoresEvents(t *testing.T) {
	h := newHarness(t, page)

	if !h.dispatch(t, EventInput{Type: dom.Click, Target: xpButton2}) {
		t.Fatal("inactive engine must not cancel clicks")
	}
	h.dispatch(t, EventInput{Type: dom.KeyDown, Key: "Escape"})
	if len(h.events) != 0 {
		t.Fatalf("events: %d", len(h.events))
	}
}

func TestEngine_Escape(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)

	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})
	h.dispatch(t, EventInput{Type: dom.KeyDown, Key: "a"})
	if h.e.State() != Active {
		t.Fatal("non-Escape key must not deactivate")
	}

	h.dispatch(t, EventInput{Type: dom.KeyDown, Key: "Escape"})

	if h.e.State() != Inactive {
		t.Fatal("Escape must deactivate")
	}
	if len(h.events) != 1 {
		t.Fatalf("events: got %d, want 1: %+v", len(h.events), h.events)
	}
	ev := h.events[0]
	if ev.Type != message.EvtDeactivated || ev.Reason != message.ReasonEscape {
		t.Fatalf("event: %+v", ev)
	}
	if ev.ID != "evt_1" || ev.Timestamp != testClock.UnixMilli() {
		t.Fatalf("id/timestamp: %q %d", ev.ID, ev.Timestamp)
	}
	if overlayNodes(h.doc) != 0 || h.doc.ListenerCount() != 0 {
		t.Fatal("Escape left overlay or listeners behind")
	}
}

func TestEngine_ClickEmitsSelectors(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)

	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpButton2})
	if h.dispatch(t, EventInput{Type: dom.Click, Target: xpButton2}) {
		t.Fatal("click must be cancelled")
	}

	if h.e.State() != Inactive {
		t.Fatal("click must deactivate")
	}
	if len(h.events) != 2 {
		t.Fatalf("events: got %d, want 2: %+v", len(h.events), h.events)
	}
	if ev := h.events[0]; ev.Type != message.EvtDeactivated || ev.Reason != message.ReasonInspected {
		t.Fatalf("first event: %+v", ev)
	}
	sel := h.events[1]
	if sel.Type != message.EvtSelectors || sel.Selectors == nil {
		t.Fatalf("second event: %+v", sel)
	}

	b := sel.Selectors
	if b.CSS != "#app > form:nth-child(1) > button:nth-child(3)" {
		t.Errorf("css: %q", b.CSS)
	}
	if b.XPath != "/html/body/main[1]/form[1]/button[2]" {
		t.Errorf("xpath: %q", b.XPath)
	}
	if b.FullXPath != xpButton2 {
		t.Errorf("fullXPath: %q", b.FullXPath)
	}
	if b.ElementInfo.TagName != "button" || b.ElementInfo.Text != "Go" {
		t.Errorf("elementInfo: %+v", b.ElementInfo)
	}
	if overlayNodes(h.doc) != 0 {
		t.Error("overlay left mounted after click")
	}
}

func TestEngine_ClickSynthesisFailure(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)

	orphan := dom.NewElement("span")
	ok := h.e.Dispatch(context.Background(), &dom.Event{Type: dom.Click, Target: orphan})
	if ok {
		t.Fatal("click must be cancelled even when synthesis fails")
	}

	if h.e.State() != Inactive {
		t.Fatal("failed synthesis must still deactivate")
	}
	if len(h.events) != 2 {
		t.Fatalf("events: got %d, want 2: %+v", len(h.events), h.events)
	}
	if ev := h.events[0]; ev.Type != message.EvtError || !strings.Contains(ev.Message, "<span>") {
		t.Fatalf("first event: %+v", ev)
	}
	if ev := h.events[1]; ev.Type != message.EvtDeactivated || ev.Reason != message.ReasonError {
		t.Fatalf("second event: %+v", ev)
	}
}

func TestEngine_ContextMenu(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)

	if h.dispatch(t, EventInput{Type: dom.ContextMenu, Target: xpP}) {
		t.Fatal("contextmenu must be cancelled")
	}
	if len(h.events) != 1 || h.events[0].Reason != message.ReasonContextMenu {
		t.Fatalf("events: %+v", h.events)
	}
}

func TestEngine_Hover(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)

	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: "/html[1]/body[1]"})
	if h.e.Status().Overlay.Visible {
		t.Fatal("hovering <body> must not show the overlay")
	}

	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})
	st := h.e.Status()
	if !st.Overlay.Visible {
		t.Fatal("overlay hidden after mouseover")
	}
	if st.Hovered != xpP {
		t.Fatalf("hovered: %q", st.Hovered)
	}
	want := dom.Rect{Left: 32, Top: 120, Width: 768, Height: 40}
	if st.Overlay.Highlight != want {
		t.Fatalf("highlight: got %+v, want %+v", st.Overlay.Highlight, want)
	}
	if len(st.Overlay.Lines) == 0 || st.Overlay.Lines[0] != "p.lead" {
		t.Fatalf("tooltip lines: %q", st.Overlay.Lines)
	}
}

func TestEngine_MouseOut(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)
	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpMain})

	h.dispatch(t, EventInput{Type: dom.MouseOut, Target: xpMain, RelatedTarget: xpA})
	if !h.e.Status().Overlay.Visible {
		t.Fatal("moving into a descendant must keep the overlay")
	}

	h.dispatch(t, EventInput{Type: dom.MouseOut, Target: xpMain})
	st := h.e.Status()
	if st.Overlay.Visible || st.Hovered != "" {
		t.Fatalf("leaving the element must hide the overlay: %+v", st)
	}
}

func TestEngine_ScrollRecompute(t *testing.T) {
	h := newHarness(t, page, WithRecomputeDelay(25*time.Millisecond))
	h.activate(t)
	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})

	h.layout.ScrollTo(0, 50)
	h.dispatch(t, EventInput{Type: dom.Scroll})
	if top := h.e.Status().Overlay.Highlight.Top; top != 70 {
		t.Fatalf("immediate reposition: top %v, want 70", top)
	}
	if len(h.sched.tasks) != 1 || h.sched.tasks[0].d != 25*time.Millisecond {
		t.Fatalf("scheduled tasks: %+v", h.sched.tasks)
	}

	// Layout settles after the event.
	h.layout.ScrollTo(0, 60)
	if n := h.sched.fire(); n != 1 {
		t.Fatalf("fired %d tasks", n)
	}
	if top := h.e.Status().Overlay.Highlight.Top; top != 60 {
		t.Fatalf("recompute: top %v, want 60", top)
	}
}

func TestEngine_StaleRecompute(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)
	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})
	h.dispatch(t, EventInput{Type: dom.Resize})
	if len(h.sched.tasks) != 1 {
		t.Fatalf("scheduled tasks: %d", len(h.sched.tasks))
	}

	h.e.Deactivate(context.Background())
	if !h.sched.tasks[0].stopped {
		t.Fatal("deactivate must cancel pending recomputes")
	}

	// A timer that already fired when Deactivate ran.
	h.sched.tasks[0].f()
	if st := h.e.Status(); st.Overlay.Visible || st.State != "inactive" {
		t.Fatalf("stale recompute changed state: %+v", st)
	}
	if overlayNodes(h.doc) != 0 {
		t.Fatal("stale recompute remounted the overlay")
	}
}

func TestEngine_ScrollAfterDetach(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)
	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})

	p, err := h.doc.FindXPath(xpP)
	if err != nil {
		t.Fatal(err)
	}
	dom.Detach(p)

	h.dispatch(t, EventInput{Type: dom.Scroll})
	st := h.e.Status()
	if st.Overlay.Visible || st.Hovered != "" {
		t.Fatalf("detached node still tracked: %+v", st)
	}
	if len(h.sched.tasks) != 0 {
		t.Fatal("no recompute expected for a detached node")
	}
}

func TestEngine_OverlayEventsIgnored(t *testing.T) {
	h := newHarness(t, page)
	h.activate(t)
	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})

	hl := h.doc.QuerySelectorAll("[" + overlay.MarkerAttr + "=highlight]")[0]
	h.e.Dispatch(context.Background(), &dom.Event{Type: dom.MouseOver, Target: hl})
	h.e.Dispatch(context.Background(), &dom.Event{Type: dom.Click, Target: hl})

	if h.e.State() != Active || len(h.events) != 0 {
		t.Fatalf("overlay events must be ignored: state %v, events %d", h.e.State(), len(h.events))
	}
	if h.e.Status().Hovered != xpP {
		t.Fatal("hover moved to the overlay")
	}
}

func TestEngine_ActivationFailure(t *testing.T) {
	doc := dom.New(&html.Node{Type: html.DocumentNode})
	var events []message.Event
	e := New(doc, dom.NewStaticLayout(dom.Size{Width: 800, Height: 600}),
		WithSink(NewCallbackSink(func(_ context.Context, ev message.Event) error {
			events = append(events, ev)
			return nil
		})),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	err := e.Activate(context.Background())
	var aerr *ActivationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected ActivationError, got %v", err)
	}
	if !errors.Is(err, overlay.ErrNoDocumentElement) {
		t.Fatalf("cause: %v", err)
	}
	if e.State() != Inactive || doc.ListenerCount() != 0 {
		t.Fatal("failed activation must leave the engine inactive")
	}
	if len(events) != 1 || events[0].Type != message.EvtError {
		t.Fatalf("events: %+v", events)
	}

	reply := e.HandleCommand(context.Background(), message.Command{Type: message.CmdActivate})
	if reply.Success || reply.Error == "" {
		t.Fatalf("reply: %+v", reply)
	}
}

func TestEngine_SinkReentry(t *testing.T) {
	var e *Engine
	h := newHarness(t, page, WithSink(NewCallbackSink(func(ctx context.Context, ev message.Event) error {
		if ev.Reason == message.ReasonEscape {
			return e.Activate(ctx)
		}
		return nil
	})))
	e = h.e
	h.activate(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.DispatchAt(context.Background(), EventInput{Type: dom.KeyDown, Key: "Escape"})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink calling back into the engine deadlocked")
	}
	if e.State() != Active {
		t.Fatal("sink re-activation lost")
	}
}

func TestEngine_RenderHook(t *testing.T) {
	var seen []OverlayStatus
	h := newHarness(t, page, WithRenderHook(func(st OverlayStatus) { seen = append(seen, st) }))
	h.activate(t)
	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})
	h.dispatch(t, EventInput{Type: dom.KeyDown, Key: "Escape"})

	if len(seen) != 3 {
		t.Fatalf("render calls: %d", len(seen))
	}
	if !seen[1].Visible || seen[2].Visible {
		t.Fatalf("visibility sequence: %v %v", seen[1].Visible, seen[2].Visible)
	}
}

func TestEngine_RenderHookCarriesStyle(t *testing.T) {
	var last OverlayStatus
	h := newHarness(t, page,
		WithOverlayStyle(overlay.Style{HighlightBorder: "red", TooltipColor: "lime"}),
		WithRenderHook(func(st OverlayStatus) { last = st }))
	h.activate(t)
	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})

	if !strings.Contains(last.HighlightCSS, "border:2px solid red") {
		t.Errorf("highlight css: %q", last.HighlightCSS)
	}
	if !strings.Contains(last.HighlightCSS, "left:32px;top:120px;width:768px;height:40px") {
		t.Errorf("highlight geometry: %q", last.HighlightCSS)
	}
	if !strings.Contains(last.TooltipCSS, "color:lime") {
		t.Errorf("tooltip css: %q", last.TooltipCSS)
	}
}

func TestEngine_HandleCommand(t *testing.T) {
	h := newHarness(t, page)
	ctx := context.Background()

	if r := h.e.HandleCommand(ctx, message.Command{Type: message.CmdActivate}); !r.Success {
		t.Fatalf("activate: %+v", r)
	}
	if h.e.State() != Active {
		t.Fatal("not active")
	}
	if r := h.e.HandleCommand(ctx, message.Command{Type: message.CmdDeactivate}); !r.Success {
		t.Fatalf("deactivate: %+v", r)
	}
	r := h.e.HandleCommand(ctx, message.Command{Type: "reload"})
	if r.Success || !strings.Contains(r.Error, "unknown command") {
		t.Fatalf("unknown: %+v", r)
	}
	if len(h.events) != 0 {
		t.Fatalf("commands emitted events: %+v", h.events)
	}
}

func TestEngine_DispatchAtErrors(t *testing.T) {
	h := newHarness(t, page)

	if _, err := h.e.DispatchAt(context.Background(), EventInput{Type: "dblclick"}); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("unknown type: %v", err)
	}
	_, err := h.e.DispatchAt(context.Background(), EventInput{Type: dom.Click, Target: "/html[1]/body[1]/nav[1]"})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("missing target: %v", err)
	}
}

func TestEngine_Queries(t *testing.T) {
	h := newHarness(t, page, WithBaseURL("https://shop.example"))

	b, err := h.e.Selectors(xpA)
	if err != nil {
		t.Fatal(err)
	}
	if b.XPath != `//a[text()="docs"]` {
		t.Errorf("xpath: %q", b.XPath)
	}

	xp, strategy, err := h.e.Locate(b)
	if err != nil {
		t.Fatal(err)
	}
	if xp != xpA || strategy != "xpath" {
		t.Errorf("locate: %q via %q", xp, strategy)
	}

	md, err := h.e.Snippet(xpP, snippet.FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "https://shop.example/docs") {
		t.Errorf("markdown: %q", md)
	}

	if _, err := h.e.Selectors("/html[1]/body[1]/nav[1]"); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("missing node: %v", err)
	}
	if len(h.events) != 0 {
		t.Error("queries must not emit events")
	}
}

func TestAttach_OnePerDocument(t *testing.T) {
	doc := dom.MustParse(page)
	layout := dom.NewFlowLayout(doc, dom.Size{Width: 800, Height: 600})

	a := Attach(doc, layout)
	b := Attach(doc, layout, WithRecomputeDelay(time.Second))
	if a != b {
		t.Fatal("Attach must return the existing engine")
	}
	if a.Document() != doc {
		t.Fatal("wrong document")
	}
}

func TestEngine_StateHook(t *testing.T) {
	var states []State
	h := newHarness(t, page, WithStateHook(func(s State) { states = append(states, s) }))
	h.activate(t)
	h.activate(t)
	h.dispatch(t, EventInput{Type: dom.MouseOver, Target: xpP})
	h.dispatch(t, EventInput{Type: dom.ContextMenu, Target: xpP})

	if len(states) != 2 || states[0] != Active || states[1] != Inactive {
		t.Fatalf("states: %v", states)
	}
}
