package inspector

import (
	"context"
	"errors"

	"github.com/hazyhaar/elemscope/inspector/message"
	"github.com/hazyhaar/elemscope/kit"
	"github.com/hazyhaar/elemscope/selector"
	"github.com/hazyhaar/elemscope/snippet"
)

// SelectorsRequest addresses a node by absolute XPath.
type SelectorsRequest struct {
	XPath string `json:"xpath"`
}

// LocateRequest carries the selector fields of a bundle.
type LocateRequest struct {
	CSS       string `json:"css,omitempty"`
	XPath     string `json:"xpath,omitempty"`
	FullXPath string `json:"fullXPath,omitempty"`
}

// LocateResponse names the re-found node and the field that matched.
type LocateResponse struct {
	XPath    string            `json:"xpath"`
	Strategy selector.Strategy `json:"strategy"`
}

// SnippetRequest selects a node and an export format.
type SnippetRequest struct {
	XPath  string `json:"xpath"`
	Format string `json:"format,omitempty"`
}

// SnippetResponse is an exported snippet.
type SnippetResponse struct {
	Format  snippet.Format `json:"format"`
	Content string         `json:"content"`
}

// DispatchResponse reports whether a listener cancelled the event.
type DispatchResponse struct {
	DefaultPrevented bool `json:"default_prevented"`
}

// ErrBadRequest marks endpoint input that can never succeed.
var ErrBadRequest = errors.New("inspector: bad request")

// Endpoints are the engine operations in transport-neutral form. The
// request of each is a pointer to its request type.
type Endpoints struct {
	Activate   kit.Endpoint // *struct{}
	Deactivate kit.Endpoint // *struct{}
	Command    kit.Endpoint // *message.Command
	Dispatch   kit.Endpoint // *EventInput
	Status     kit.Endpoint // *struct{}
	Selectors  kit.Endpoint // *SelectorsRequest
	Locate     kit.Endpoint // *LocateRequest
	Snippet    kit.Endpoint // *SnippetRequest
}

// Endpoints builds the endpoint set of e. Middlewares registered with
// WithEndpointMiddleware wrap every endpoint, outside the logging.
func (e *Engine) Endpoints() Endpoints {
	wrap := func(op string, ep kit.Endpoint) kit.Endpoint {
		var mws []kit.Middleware
		for _, mw := range e.endpointMW {
			mws = append(mws, mw(op))
		}
		mws = append(mws, kit.Logging(e.logger, op))
		return kit.Chain(mws...)(ep)
	}
	return Endpoints{
		Activate:   wrap("activate", e.activateEndpoint),
		Deactivate: wrap("deactivate", e.deactivateEndpoint),
		Command:    wrap("command", e.commandEndpoint),
		Dispatch:   wrap("dispatch", e.dispatchEndpoint),
		Status:     wrap("status", e.statusEndpoint),
		Selectors:  wrap("selectors", e.selectorsEndpoint),
		Locate:     wrap("locate", e.locateEndpoint),
		Snippet:    wrap("snippet", e.snippetEndpoint),
	}
}

func (e *Engine) activateEndpoint(ctx context.Context, _ any) (any, error) {
	if err := e.Activate(ctx); err != nil {
		return nil, err
	}
	return e.Status(), nil
}

func (e *Engine) deactivateEndpoint(ctx context.Context, _ any) (any, error) {
	e.Deactivate(ctx)
	return e.Status(), nil
}

func (e *Engine) commandEndpoint(ctx context.Context, req any) (any, error) {
	cmd := req.(*message.Command)
	if !cmd.Type.Valid() {
		return nil, errors.Join(ErrBadRequest, errors.New("unknown command "+string(cmd.Type)))
	}
	return e.HandleCommand(ctx, *cmd), nil
}

func (e *Engine) dispatchEndpoint(ctx context.Context, req any) (any, error) {
	ok, err := e.DispatchAt(ctx, *req.(*EventInput))
	if err != nil {
		return nil, err
	}
	return DispatchResponse{DefaultPrevented: !ok}, nil
}

func (e *Engine) statusEndpoint(context.Context, any) (any, error) {
	return e.Status(), nil
}

func (e *Engine) selectorsEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*SelectorsRequest)
	if r.XPath == "" {
		return nil, errors.Join(ErrBadRequest, errors.New("xpath is required"))
	}
	return e.Selectors(r.XPath)
}

func (e *Engine) locateEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*LocateRequest)
	if r.CSS == "" && r.XPath == "" && r.FullXPath == "" {
		return nil, errors.Join(ErrBadRequest, errors.New("one of css, xpath, fullXPath is required"))
	}
	xp, strategy, err := e.Locate(selector.Bundle{CSS: r.CSS, XPath: r.XPath, FullXPath: r.FullXPath})
	if err != nil {
		return nil, err
	}
	return LocateResponse{XPath: xp, Strategy: strategy}, nil
}

func (e *Engine) snippetEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*SnippetRequest)
	if r.XPath == "" {
		return nil, errors.Join(ErrBadRequest, errors.New("xpath is required"))
	}
	f, err := snippet.ParseFormat(r.Format)
	if err != nil {
		return nil, err
	}
	content, err := e.Snippet(r.XPath, f)
	if err != nil {
		return nil, err
	}
	return SnippetResponse{Format: f, Content: content}, nil
}
