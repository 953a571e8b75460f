package inspector

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/elemscope/inspector/internal/sink"
	"github.com/hazyhaar/elemscope/inspector/message"
)

// Sink is the output interface for inspector events.
type Sink = sink.Sink

// Hub is the websocket transport: it broadcasts events and accepts
// commands from connected clients.
type Hub = sink.Hub

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookRetries(retries), sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink.
func NewCallbackSink(fn func(ctx context.Context, ev message.Event) error) Sink {
	return sink.NewCallback(fn)
}

// NewRouter fans events out to every sink.
func NewRouter(logger *slog.Logger, sinks ...Sink) Sink {
	return sink.NewRouter(logger, sinks...)
}

// NewHub creates a websocket hub. Wire its commands to an engine with
// ServeCommands.
func NewHub(logger *slog.Logger) *Hub {
	return sink.NewHub(logger)
}

// ServeCommands routes the hub's inbound commands to e.
func (e *Engine) ServeCommands(h *Hub) {
	h.SetCommandHandler(e.HandleCommand)
}
