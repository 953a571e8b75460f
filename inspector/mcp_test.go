package inspector

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/elemscope/inspector/message"
)

var testMCPImpl = &mcp.Implementation{Name: "elemscope-test", Version: "0.1.0"}

func mcpSession(t *testing.T, e *Engine) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	e.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func mcpCallOK(t *testing.T, session *mcp.ClientSession, name string, args any, out any) {
	t.Helper()
	text, isErr := mcpCall(t, session, name, args)
	if isErr {
		t.Fatalf("CallTool(%s) tool error: %s", name, text)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("CallTool(%s): decode %q: %v", name, text, err)
	}
}

func TestMCP_InspectionCycle(t *testing.T) {
	h := newHarness(t, page)
	session := mcpSession(t, h.e)

	var st Status
	mcpCallOK(t, session, "inspector_activate", map[string]any{}, &st)
	if st.State != "active" {
		t.Fatalf("activate: %+v", st)
	}

	var dr DispatchResponse
	mcpCallOK(t, session, "inspector_dispatch", map[string]any{"type": "mouseover", "target": xpP}, &dr)
	mcpCallOK(t, session, "inspector_status", map[string]any{}, &st)
	if !st.Overlay.Visible || st.Hovered != xpP {
		t.Fatalf("status after hover: %+v", st)
	}

	mcpCallOK(t, session, "inspector_dispatch", map[string]any{"type": "click", "target": xpP}, &dr)
	if !dr.DefaultPrevented {
		t.Fatal("click must be cancelled")
	}
	if len(h.events) != 2 || h.events[1].Type != message.EvtSelectors {
		t.Fatalf("events: %+v", h.events)
	}

	mcpCallOK(t, session, "inspector_deactivate", map[string]any{}, &st)
	if st.State != "inactive" {
		t.Fatalf("deactivate: %+v", st)
	}
}

func TestMCP_Queries(t *testing.T) {
	h := newHarness(t, page)
	session := mcpSession(t, h.e)

	var b struct {
		CSS       string `json:"css"`
		XPath     string `json:"xpath"`
		FullXPath string `json:"fullXPath"`
	}
	mcpCallOK(t, session, "inspector_selectors", map[string]any{"xpath": xpA}, &b)
	if b.FullXPath != xpA {
		t.Fatalf("selectors: %+v", b)
	}

	var loc LocateResponse
	mcpCallOK(t, session, "inspector_locate", map[string]any{"fullXPath": xpA}, &loc)
	if loc.XPath != xpA || loc.Strategy != "fullXPath" {
		t.Fatalf("locate: %+v", loc)
	}

	var sn SnippetResponse
	mcpCallOK(t, session, "inspector_snippet", map[string]any{"xpath": xpA, "format": "safe-html"}, &sn)
	if sn.Content != `<a href="/docs" rel="nofollow">docs</a>` {
		t.Fatalf("snippet: %q", sn.Content)
	}
}

func TestMCP_ToolErrors(t *testing.T) {
	h := newHarness(t, page)
	session := mcpSession(t, h.e)

	if _, isErr := mcpCall(t, session, "inspector_selectors", map[string]any{"xpath": "/html[1]/body[1]/nav[1]"}); !isErr {
		t.Fatal("missing node must be a tool error")
	}
	if _, isErr := mcpCall(t, session, "inspector_dispatch", map[string]any{"type": "dblclick"}); !isErr {
		t.Fatal("unknown event must be a tool error")
	}
}
