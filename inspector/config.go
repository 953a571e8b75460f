package inspector

import (
	"github.com/hazyhaar/elemscope/inspector/internal/config"
)

// Config is the top-level configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig selects the inspected document.
type PageConfig = config.PageConfig

// InspectorConfig tunes the state machine.
type InspectorConfig = config.InspectorConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// AuditConfig enables the SQLite audit log.
type AuditConfig = config.AuditConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// OptionsFrom translates the inspector and overlay sections of cfg into
// engine options.
func OptionsFrom(cfg *Config) []Option {
	return []Option{
		WithRecomputeDelay(cfg.Inspector.RecomputeDelay),
		WithVerifiedIDs(cfg.Inspector.VerifyIDs),
		WithOverlayStyle(cfg.Overlay),
	}
}
