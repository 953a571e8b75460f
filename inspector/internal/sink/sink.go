// Package sink defines output backends for inspector events.
package sink

import (
	"context"

	"github.com/hazyhaar/elemscope/inspector/message"
)

// Sink is the output interface. Implementations deliver events to
// different backends (stdout, webhook, websocket, in-process callback).
type Sink interface {
	Send(ctx context.Context, ev message.Event) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
