package dom

import "golang.org/x/net/html"

// EventType names a DOM event.
type EventType string

const (
	MouseOver   EventType = "mouseover"
	MouseOut    EventType = "mouseout"
	Click       EventType = "click"
	ContextMenu EventType = "contextmenu"
	KeyDown     EventType = "keydown"
	Scroll      EventType = "scroll"
	Resize      EventType = "resize"
)

// Target is the object a listener is attached to.
type Target int

const (
	WindowTarget Target = iota
	DocumentTarget
)

// Phase selects capture or bubble delivery.
type Phase int

const (
	Capture Phase = iota
	Bubble
)

// Event is a single dispatched DOM event.
type Event struct {
	Type          EventType
	Target        *html.Node // nil for window-level events (resize)
	RelatedTarget *html.Node // mouseover/mouseout counterpart
	Key           string     // keydown key value, e.g. "Escape"

	defaultPrevented   bool
	propagationStopped bool
}

// PreventDefault marks the event so the page's default action is skipped.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// StopPropagation stops delivery to listeners further along the path.
func (e *Event) StopPropagation() { e.propagationStopped = true }

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// PropagationStopped reports whether StopPropagation was called.
func (e *Event) PropagationStopped() bool { return e.propagationStopped }

// Listener wraps a handler. Listeners are compared by pointer, so the value
// passed to AddEventListener must be the one passed to RemoveEventListener.
type Listener struct {
	fn func(*Event)
}

// NewListener creates a Listener calling fn.
func NewListener(fn func(*Event)) *Listener {
	return &Listener{fn: fn}
}

type registration struct {
	target   Target
	typ      EventType
	phase    Phase
	listener *Listener
}

// AddEventListener registers l. Adding an identical registration twice is a
// no-op.
func (d *Document) AddEventListener(target Target, typ EventType, l *Listener, phase Phase) {
	r := registration{target: target, typ: typ, phase: phase, listener: l}
	if d.indexOf(r) >= 0 {
		return
	}
	d.listeners = append(d.listeners, r)
}

// RemoveEventListener unregisters l. Removing an unknown listener is a no-op.
func (d *Document) RemoveEventListener(target Target, typ EventType, l *Listener, phase Phase) {
	i := d.indexOf(registration{target: target, typ: typ, phase: phase, listener: l})
	if i < 0 {
		return
	}
	d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
}

// ListenerCount returns the number of registered listeners.
func (d *Document) ListenerCount() int { return len(d.listeners) }

func (d *Document) indexOf(r registration) int {
	for i, cur := range d.listeners {
		if cur == r {
			return i
		}
	}
	return -1
}

// DispatchEvent delivers ev along window capture, document capture,
// document bubble, window bubble. Listeners removed while the event is in
// flight are not invoked. It returns false when the default was prevented.
func (d *Document) DispatchEvent(ev *Event) bool {
	path := []struct {
		target Target
		phase  Phase
	}{
		{WindowTarget, Capture},
		{DocumentTarget, Capture},
		{DocumentTarget, Bubble},
		{WindowTarget, Bubble},
	}
	for _, step := range path {
		// Window-level events never reach the document.
		if ev.Target == nil && step.target == DocumentTarget {
			continue
		}
		snapshot := append([]registration(nil), d.listeners...)
		for _, r := range snapshot {
			if r.target != step.target || r.phase != step.phase || r.typ != ev.Type {
				continue
			}
			if d.indexOf(r) < 0 {
				continue
			}
			r.listener.fn(ev)
		}
		if ev.propagationStopped {
			break
		}
	}
	return !ev.defaultPrevented
}
