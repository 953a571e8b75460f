package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

// startBrowser skips unless a local Chrome is installed.
func startBrowser(t *testing.T) *Browser {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in -short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome binary found")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	b, err := Launch(ctx, Config{Bin: bin, ViewportWidth: 800, ViewportHeight: 600})
	if err != nil {
		t.Skipf("chrome unavailable: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPage_SnapshotAndLayout(t *testing.T) {
	b := startBrowser(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body style="margin:0"><div id="box" style="margin-top:40px;width:120px;height:30px">x</div></body></html>`))
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := b.Open(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	doc, err := p.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	box, err := doc.FindXPath(`//*[@id="box"]`)
	if err != nil {
		t.Fatal(err)
	}

	l := p.Layout(doc)
	r, ok := l.BoundingClientRect(box)
	if !ok {
		t.Fatal("box not measurable")
	}
	if r.Top != 40 || r.Width != 120 || r.Height != 30 {
		t.Errorf("rect: got %+v", r)
	}
	if vp := l.Viewport(); vp.Width != 800 || vp.Height != 600 {
		t.Errorf("viewport: got %+v", vp)
	}
}

func TestPage_PaintCopiesStyles(t *testing.T) {
	b := startBrowser(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>x</p></body></html>`))
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := b.Open(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	err = p.Paint(ctx, PaintState{
		Visible:      true,
		Lines:        []string{"p", "x"},
		HighlightCSS: "position:fixed;border:2px solid red;",
		TooltipCSS:   "position:fixed;color:lime;",
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.page.Eval(`() => document.querySelector('[data-elemscope-overlay="highlight"]').style.borderColor +
		"|" + document.querySelector('[data-elemscope-overlay="tooltip"]').style.color`)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Value.Str(); got != "red|lime" {
		t.Errorf("painted styles: got %q", got)
	}

	if err := p.Unpaint(ctx); err != nil {
		t.Fatal(err)
	}
}
