// Package config handles inspector configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/elemscope/overlay"
)

// Config is the top-level inspector configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	LogLevel  string          `yaml:"log_level"` // debug | info | warn | error
	MCP       bool            `yaml:"mcp"`       // serve MCP over stdio
	Browser   BrowserConfig   `yaml:"browser"`
	Page      PageConfig      `yaml:"page"`
	Inspector InspectorConfig `yaml:"inspector"`
	Overlay   overlay.Style   `yaml:"overlay"`
	Sinks     []SinkConfig    `yaml:"sinks"`
	Audit     AuditConfig     `yaml:"audit"`
}

// BrowserConfig controls Chrome lifecycle. Unused when the page is a file.
type BrowserConfig struct {
	Remote         string        `yaml:"remote"` // ws:// control URL of a running Chrome
	Bin            string        `yaml:"bin"`
	Headful        bool          `yaml:"headful"`
	Stealth        bool          `yaml:"stealth"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	LoadTimeout    time.Duration `yaml:"load_timeout"`
}

// PageConfig selects the document to inspect: a URL rendered by Chrome, or
// a local HTML file parsed without a browser.
type PageConfig struct {
	URL  string `yaml:"url"`
	File string `yaml:"file"`
}

// InspectorConfig tunes the state machine.
type InspectorConfig struct {
	RecomputeDelay time.Duration `yaml:"recompute_delay"`
	VerifyIDs      bool          `yaml:"verify_ids"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook | websocket
	URL     string `yaml:"url"`  // for webhook
	Retries int    `yaml:"retries"`
}

// AuditConfig enables the SQLite audit log. Empty Path disables it.
type AuditConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	Synchronous string        `yaml:"synchronous"` // OFF | NORMAL | FULL | EXTRA
	Retries     int           `yaml:"retries"`     // attempts per batch flush
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 800
	}
	if c.Browser.LoadTimeout <= 0 {
		c.Browser.LoadTimeout = 30 * time.Second
	}
	if c.Inspector.RecomputeDelay <= 0 {
		c.Inspector.RecomputeDelay = 10 * time.Millisecond
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
	if c.Audit.BusyTimeout <= 0 {
		c.Audit.BusyTimeout = 10 * time.Second
	}
	if c.Audit.Synchronous == "" {
		c.Audit.Synchronous = "NORMAL"
	}
	if c.Audit.Retries <= 0 {
		c.Audit.Retries = 3
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Page.URL != "" && c.Page.File != "" {
		errs = append(errs, errors.New("config: page.url and page.file are mutually exclusive"))
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout", "websocket":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("config: sinks[%d]: webhook needs a url", i))
			}
		default:
			errs = append(errs, fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	switch strings.ToUpper(c.Audit.Synchronous) {
	case "", "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		errs = append(errs, fmt.Errorf("config: unknown audit.synchronous %q", c.Audit.Synchronous))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
