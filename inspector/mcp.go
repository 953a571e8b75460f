package inspector

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/elemscope/kit"
)

// RegisterMCP registers the inspector tools on an MCP server.
func (e *Engine) RegisterMCP(srv *mcp.Server) {
	eps := e.Endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inspector_activate",
		Description: "Enter inspection mode: mount the overlay and start tracking hover, click and key events.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.Activate, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inspector_deactivate",
		Description: "Leave inspection mode and remove the overlay. Emits no event.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.Deactivate, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inspector_status",
		Description: "Report the activation state, the hovered element and the overlay geometry.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, eps.Status, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inspector_dispatch",
		Description: "Dispatch a page event (mouseover, mouseout, click, contextmenu, keydown, scroll, resize) at an element addressed by absolute XPath.",
		InputSchema: inputSchema(map[string]any{
			"type":           map[string]any{"type": "string", "description": "Event type"},
			"target":         map[string]any{"type": "string", "description": "Absolute XPath of the target; empty means <body>"},
			"related_target": map[string]any{"type": "string", "description": "Absolute XPath of the related target (mouseout)"},
			"key":            map[string]any{"type": "string", "description": "Key name for keydown, e.g. Escape"},
		}, []string{"type"}),
	}, eps.Dispatch, kit.DecodeJSON[EventInput]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inspector_selectors",
		Description: "Synthesize CSS, XPath and absolute XPath selectors plus metadata for an element.",
		InputSchema: inputSchema(map[string]any{
			"xpath": map[string]any{"type": "string", "description": "Absolute XPath of the element"},
		}, []string{"xpath"}),
	}, eps.Selectors, kit.DecodeJSON[SelectorsRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inspector_locate",
		Description: "Re-find an element from a selector bundle. Tries xpath, then css, then fullXPath.",
		InputSchema: inputSchema(map[string]any{
			"css":       map[string]any{"type": "string"},
			"xpath":     map[string]any{"type": "string"},
			"fullXPath": map[string]any{"type": "string"},
		}, nil),
	}, eps.Locate, kit.DecodeJSON[LocateRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inspector_snippet",
		Description: "Export an element as html, text, markdown or sanitised html.",
		InputSchema: inputSchema(map[string]any{
			"xpath":  map[string]any{"type": "string", "description": "Absolute XPath of the element"},
			"format": map[string]any{"type": "string", "enum": []string{"html", "safe-html", "text", "markdown"}},
		}, []string{"xpath"}),
	}, eps.Snippet, kit.DecodeJSON[SnippetRequest]())
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
