package sink

import (
	"context"

	"github.com/hazyhaar/elemscope/inspector/message"
)

// EventFunc is called for each event (in-process, zero serialisation).
type EventFunc func(ctx context.Context, ev message.Event) error

// Callback delivers events via Go function calls, for embedders that run
// the inspector in the same binary as the consumer.
type Callback struct {
	fn EventFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn EventFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, ev message.Event) error {
	if c.fn != nil {
		return c.fn(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
