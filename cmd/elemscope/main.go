// Command elemscope serves an element inspector over one page.
//
// Usage:
//
//	elemscope -config elemscope.yaml               # everything from YAML
//	elemscope -url https://example.com             # inspect a live page in Chrome
//	elemscope -file page.html -addr :8090          # inspect a local file, no browser
//	elemscope -file page.html -mcp                 # also serve MCP tools over stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/elemscope/inspector"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to elemscope.yaml config file")
	pageURL := flag.String("url", "", "inspect a URL rendered by Chrome")
	pageFile := flag.String("file", "", "inspect a local HTML file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools over stdio")
	headful := flag.Bool("headful", false, "show the browser window")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "elemscope:", err)
		os.Exit(1)
	}
	if *pageURL != "" {
		cfg.Page = inspector.PageConfig{URL: *pageURL}
	}
	if *pageFile != "" {
		cfg.Page = inspector.PageConfig{File: *pageFile}
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *serveMCP {
		cfg.MCP = true
	}
	if *headful {
		cfg.Browser.Headful = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.Page.URL == "" && cfg.Page.File == "" {
		fmt.Fprintln(os.Stderr, "usage: elemscope -config <file> | -url <url> | -file <path> [-addr :8090] [-mcp]")
		os.Exit(1)
	}
	if cfg.MCP {
		// stdout carries the MCP stream.
		for i, sc := range cfg.Sinks {
			if sc.Type == "stdout" {
				cfg.Sinks = append(cfg.Sinks[:i:i], cfg.Sinks[i+1:]...)
				logger.Warn("elemscope: stdout sink disabled in MCP mode")
				break
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("elemscope: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*inspector.Config, error) {
	if path == "" {
		return inspector.DefaultConfig(), nil
	}
	return inspector.LoadConfigFile(path)
}

func run(ctx context.Context, logger *slog.Logger, cfg *inspector.Config) error {
	sess, err := inspector.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer sess.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           sess.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 2)
	go func() {
		logger.Info("elemscope: listening", "addr", cfg.Listen, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	if cfg.MCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "elemscope", Version: version}, nil)
		sess.Engine().RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("mcp: %w", err)
			}
		}()
		logger.Info("elemscope: MCP on stdio")
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("elemscope: shutdown", "error", serr)
	}
	return err
}
