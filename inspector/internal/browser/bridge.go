package browser

import (
	"context"
	"fmt"

	"github.com/ysmood/gson"
)

// RawEvent is a page event as reported by the in-page bridge. Targets are
// absolute XPaths; an empty target means window or document.
type RawEvent struct {
	Type    string `json:"type"`
	Target  string `json:"target"`
	Related string `json:"related"`
	Key     string `json:"key"`
}

const bridgeName = "__elemscopeEmit"

// bridgeJS forwards the inspected event types to the exposed binding while
// window.__elemscopeActive is set. Clicks and context menus are cancelled in
// the page synchronously since the binding is asynchronous.
const bridgeJS = `(name) => {
	if (window.__elemscopeBridge) return;
	window.__elemscopeBridge = true;
	window.__elemscopeActive = false;
	const path = (n) => {
		if (!n || n.nodeType !== 1) return "";
		const segs = [];
		for (let c = n; c && c.nodeType === 1; c = c.parentNode) {
			let k = 1;
			for (let s = c.previousElementSibling; s; s = s.previousElementSibling) {
				if (s.localName === c.localName) k++;
			}
			segs.unshift(c.localName + "[" + k + "]");
		}
		return "/" + segs.join("/");
	};
	const owned = (n) => n && n.closest && n.closest("[data-elemscope-overlay]");
	const send = (e) => window[name]({
		type: e.type,
		target: path(e.target),
		related: path(e.relatedTarget),
		key: e.key || "",
	});
	for (const t of ["mouseover", "mouseout", "click", "contextmenu", "keydown", "scroll"]) {
		document.addEventListener(t, (e) => {
			if (!window.__elemscopeActive || owned(e.target)) return;
			if (t === "click" || t === "contextmenu") {
				e.preventDefault();
				e.stopPropagation();
			}
			send(e);
		}, true);
	}
	window.addEventListener("resize", (e) => {
		if (window.__elemscopeActive) send(e);
	});
}`

// Bridge installs the in-page listeners and calls fn for every forwarded
// event. The returned stop function removes the binding.
func (p *Page) Bridge(ctx context.Context, fn func(RawEvent)) (func() error, error) {
	stop, err := p.page.Context(ctx).Expose(bridgeName, func(j gson.JSON) (interface{}, error) {
		fn(RawEvent{
			Type:    j.Get("type").Str(),
			Target:  j.Get("target").Str(),
			Related: j.Get("related").Str(),
			Key:     j.Get("key").Str(),
		})
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("browser: expose bridge: %w", err)
	}
	if _, err := p.page.Context(ctx).Eval(bridgeJS, bridgeName); err != nil {
		stop()
		return nil, fmt.Errorf("browser: install bridge: %w", err)
	}
	return stop, nil
}

// SetActive toggles event forwarding in the page.
func (p *Page) SetActive(ctx context.Context, on bool) error {
	_, err := p.page.Context(ctx).Eval(`(on) => { window.__elemscopeActive = on; }`, on)
	if err != nil {
		return fmt.Errorf("browser: set active: %w", err)
	}
	return nil
}

// PaintState is the overlay as the inspector last rendered it. The CSS
// fields are the renderer's inline styles (geometry and configured colours)
// and are copied verbatim into the page.
type PaintState struct {
	Visible      bool
	Lines        []string
	HighlightCSS string
	TooltipCSS   string
}

const paintJS = `(st) => {
	const ensure = (kind) => {
		let n = document.querySelector('[data-elemscope-overlay="' + kind + '"]');
		if (!n) {
			n = document.createElement("div");
			n.setAttribute("data-elemscope-overlay", kind);
			document.documentElement.appendChild(n);
		}
		return n;
	};
	const hl = ensure("highlight");
	const tip = ensure("tooltip");
	const base = "position:fixed;pointer-events:none;z-index:2147483647;";
	if (!st.visible) {
		hl.setAttribute("style", base + "display:none;");
		tip.setAttribute("style", base + "display:none;");
		return;
	}
	hl.setAttribute("style", st.highlightCSS);
	tip.setAttribute("style", st.tooltipCSS);
	tip.textContent = st.lines.join("\n");
}`

// Paint mirrors the overlay into the live page.
func (p *Page) Paint(ctx context.Context, st PaintState) error {
	lines := st.Lines
	if lines == nil {
		lines = []string{}
	}
	_, err := p.page.Context(ctx).Eval(paintJS, map[string]any{
		"visible":      st.Visible,
		"lines":        lines,
		"highlightCSS": st.HighlightCSS,
		"tooltipCSS":   st.TooltipCSS,
	})
	if err != nil {
		return fmt.Errorf("browser: paint: %w", err)
	}
	return nil
}

// Unpaint removes the mirrored overlay.
func (p *Page) Unpaint(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(`() => document.querySelectorAll("[data-elemscope-overlay]").forEach((n) => n.remove())`)
	return err
}
