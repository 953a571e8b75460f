// Package browser drives a Chrome tab through Rod: it snapshots the live
// DOM into a dom.Document, measures nodes for the overlay, and bridges real
// page events back to the inspector.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome binary for local launches. Empty = auto-detect.
	Bin string

	// Headful shows the browser window so a user can inspect by hand.
	Headful bool

	// Stealth opens tabs with anti-detection patches applied.
	Stealth bool

	// ViewportWidth and ViewportHeight size the tab. Default: 1280x800.
	ViewportWidth  int
	ViewportHeight int

	// LoadTimeout bounds navigation. Default: 30s.
	LoadTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 800
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser owns one Chrome connection.
type Browser struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// Launch starts Chrome (or connects to a remote instance).
func Launch(ctx context.Context, cfg Config) (*Browser, error) {
	cfg.defaults()
	log := cfg.Logger

	var wsURL string
	var lnch *launcher.Launcher
	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		lnch = launcher.New().Context(ctx).Headless(!cfg.Headful)
		if cfg.Bin != "" {
			lnch = lnch.Bin(cfg.Bin)
		}
		lnch = lnch.Set("disable-blink-features", "AutomationControlled")

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		log.Info("browser: launched local chrome", "url", wsURL, "headful", cfg.Headful)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return &Browser{cfg: cfg, browser: b, lnch: lnch}, nil
}

// Open creates a tab, sizes it and navigates to url.
func (b *Browser) Open(ctx context.Context, url string) (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("browser: closed")
	}

	var page *rod.Page
	var err error
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.cfg.ViewportWidth,
		Height: b.cfg.ViewportHeight,
	}); err != nil {
		b.cfg.Logger.Warn("browser: set viewport failed", "error", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.LoadTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	return &Page{page: page, url: url, logger: b.cfg.Logger}, nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.browser.Close()
	if b.lnch != nil {
		b.lnch.Kill()
		b.lnch.Cleanup()
	}
	return err
}
