package inspector

import (
	"context"
	"fmt"

	"github.com/hazyhaar/elemscope/inspector/message"
)

// HandleCommand executes an activation command and builds its reply.
func (e *Engine) HandleCommand(ctx context.Context, cmd message.Command) message.Reply {
	switch cmd.Type {
	case message.CmdActivate:
		if err := e.Activate(ctx); err != nil {
			return message.Reply{Error: err.Error()}
		}
		return message.Reply{Success: true}
	case message.CmdDeactivate:
		e.Deactivate(ctx)
		return message.Reply{Success: true}
	default:
		return message.Reply{Error: fmt.Sprintf("unknown command %q", cmd.Type)}
	}
}
