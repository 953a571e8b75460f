package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/elemscope/audit"
	"github.com/hazyhaar/elemscope/dbopen"
	"github.com/hazyhaar/elemscope/dom"
	"github.com/hazyhaar/elemscope/inspector/internal/browser"
	"github.com/hazyhaar/elemscope/kit"
)

// Session assembles an Engine from a Config: it loads the page (a local
// file, or a URL rendered by Chrome), builds the sinks and, in browser
// mode, bridges live page events into the engine and paints the overlay
// back into the tab.
type Session struct {
	cfg    *Config
	logger *slog.Logger
	engine *Engine
	hub    *Hub
	sink   Sink

	auditDB  *sql.DB
	auditLog *audit.SQLiteLogger

	browser    *browser.Browser
	page       *browser.Page
	stopBridge func() error
}

// Open loads the configured page and returns a ready, Inactive session.
// extra sinks are added to the ones named in cfg.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger, extra ...Sink) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Page.URL == "" && cfg.Page.File == "" {
		return nil, errors.New("inspector: no page configured")
	}

	s := &Session{cfg: cfg, logger: logger}
	sinks := append(s.buildSinks(), extra...)
	opts := append(OptionsFrom(cfg), WithLogger(logger))
	if cfg.Audit.Path != "" {
		if err := s.openAudit(); err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewEventSink(s.auditLog))
		opts = append(opts, WithEndpointMiddleware(func(op string) kit.Middleware {
			return audit.Middleware(s.auditLog, op)
		}))
	}
	s.sink = NewRouter(logger, sinks...)
	opts = append(opts, WithSink(s.sink))

	var (
		doc    *dom.Document
		layout dom.Layout
	)
	if cfg.Page.File != "" {
		f, err := os.Open(cfg.Page.File)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("inspector: open page: %w", err)
		}
		doc, err = dom.Parse(f)
		f.Close()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("inspector: parse page: %w", err)
		}
		layout = dom.NewFlowLayout(doc, dom.Size{
			Width:  float64(cfg.Browser.ViewportWidth),
			Height: float64(cfg.Browser.ViewportHeight),
		})
		logger.Info("inspector: page loaded", "file", cfg.Page.File)
	} else {
		var err error
		doc, layout, err = s.openBrowser(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts = append(opts,
			WithBaseURL(cfg.Page.URL),
			WithRenderHook(s.paint),
			WithStateHook(s.setActive),
		)
	}

	s.engine = Attach(doc, layout, opts...)

	if s.page != nil {
		stop, err := s.page.Bridge(ctx, s.forward)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.stopBridge = stop
	}
	return s, nil
}

func (s *Session) openAudit() error {
	ac := s.cfg.Audit
	db, err := audit.Open(ac.Path,
		dbopen.WithBusyTimeout(ac.BusyTimeout),
		dbopen.WithSynchronous(ac.Synchronous))
	if err != nil {
		return fmt.Errorf("inspector: open audit db: %w", err)
	}
	s.auditDB = db
	s.auditLog = audit.NewSQLiteLogger(db,
		audit.WithLogger(s.logger),
		audit.WithRetry(dbopen.Retry{Attempts: ac.Retries, Backoff: dbopen.DefaultRetry.Backoff}))
	s.logger.Info("inspector: audit enabled", "path", s.cfg.Audit.Path)
	return nil
}

func (s *Session) buildSinks() []Sink {
	var sinks []Sink
	for _, sc := range s.cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, sc.Retries, s.logger))
		case "websocket":
			if s.hub == nil {
				s.hub = NewHub(s.logger)
				sinks = append(sinks, s.hub)
			}
		}
	}
	return sinks
}

func (s *Session) openBrowser(ctx context.Context) (*dom.Document, dom.Layout, error) {
	bc := s.cfg.Browser
	b, err := browser.Launch(ctx, browser.Config{
		RemoteURL:      bc.Remote,
		Bin:            bc.Bin,
		Headful:        bc.Headful,
		Stealth:        bc.Stealth,
		ViewportWidth:  bc.ViewportWidth,
		ViewportHeight: bc.ViewportHeight,
		LoadTimeout:    bc.LoadTimeout,
		Logger:         s.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	s.browser = b

	page, err := b.Open(ctx, s.cfg.Page.URL)
	if err != nil {
		return nil, nil, err
	}
	s.page = page

	doc, err := page.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("inspector: page loaded", "url", s.cfg.Page.URL)
	return doc, page.Layout(doc), nil
}

// forward feeds one bridged page event to the engine.
func (s *Session) forward(raw browser.RawEvent) {
	_, err := s.engine.DispatchAt(context.Background(), EventInput{
		Type:          dom.EventType(raw.Type),
		Target:        raw.Target,
		RelatedTarget: raw.Related,
		Key:           raw.Key,
	})
	if err != nil {
		s.logger.Debug("inspector: bridged event dropped", "type", raw.Type, "error", err)
	}
}

func (s *Session) paint(st OverlayStatus) {
	err := s.page.Paint(context.Background(), browser.PaintState{
		Visible:      st.Visible,
		Lines:        st.Lines,
		HighlightCSS: st.HighlightCSS,
		TooltipCSS:   st.TooltipCSS,
	})
	if err != nil {
		s.logger.Warn("inspector: paint overlay", "error", err)
	}
}

func (s *Session) setActive(st State) {
	ctx := context.Background()
	if err := s.page.SetActive(ctx, st == Active); err != nil {
		s.logger.Warn("inspector: toggle page bridge", "error", err)
	}
	if st == Inactive {
		if err := s.page.Unpaint(ctx); err != nil {
			s.logger.Warn("inspector: remove overlay", "error", err)
		}
	}
}

// Engine returns the session's engine.
func (s *Session) Engine() *Engine { return s.engine }

// Hub returns the websocket hub, nil when no websocket sink is configured.
func (s *Session) Hub() *Hub { return s.hub }

// Audit returns the audit logger, nil when auditing is disabled.
func (s *Session) Audit() *audit.SQLiteLogger { return s.auditLog }

// Handler returns the HTTP API, with /ws when a websocket sink is configured
// and /audit when auditing is enabled.
func (s *Session) Handler() http.Handler {
	if s.auditLog == nil {
		return s.engine.Handler(s.hub)
	}
	return s.engine.Handler(s.hub, func(r chi.Router) {
		r.Get("/audit", s.serveAudit)
	})
}

// serveAudit lists recent audit entries, filtered by ?action= and capped by ?limit=.
func (s *Session) serveAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := s.auditLog.Recent(r.Context(), q.Get("action"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Close deactivates the engine and releases the browser and sinks.
func (s *Session) Close() error {
	if s.engine != nil {
		s.engine.Deactivate(context.Background())
	}
	var errs []error
	if s.stopBridge != nil {
		errs = append(errs, s.stopBridge())
	}
	if s.page != nil {
		errs = append(errs, s.page.Close())
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	if s.sink != nil {
		errs = append(errs, s.sink.Close())
	}
	if s.auditLog != nil {
		errs = append(errs, s.auditLog.Close())
	}
	if s.auditDB != nil {
		errs = append(errs, s.auditDB.Close())
	}
	return errors.Join(errs...)
}
