package inspector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/elemscope/inspector/message"
	"github.com/hazyhaar/elemscope/kit"
	"github.com/hazyhaar/elemscope/selector"
	"github.com/hazyhaar/elemscope/shield"
	"github.com/hazyhaar/elemscope/snippet"
)

// Handler returns the HTTP API of the engine. When hub is non-nil it is
// mounted on /ws and its commands are routed to the engine. extra mounts
// additional routes behind the same middleware stack.
func (e *Engine) Handler(hub *Hub, extra ...func(chi.Router)) http.Handler {
	eps := e.Endpoints()

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/commands", func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, 400, err)
			return
		}
		cmd, err := message.UnmarshalCommand(data)
		if err != nil {
			writeError(w, 400, err)
			return
		}
		resp, err := eps.Command(r.Context(), &cmd)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		reply := resp.(message.Reply)
		code := 200
		if !reply.Success {
			code = http.StatusConflict
		}
		writeJSON(w, code, reply)
	})

	r.Post("/activate", serve(eps.Activate, noRequest))
	r.Post("/deactivate", serve(eps.Deactivate, noRequest))
	r.Get("/status", serve(eps.Status, noRequest))
	r.Post("/events", serve(eps.Dispatch, decodeBody[EventInput]))
	r.Post("/selectors", serve(eps.Selectors, decodeBody[SelectorsRequest]))
	r.Post("/locate", serve(eps.Locate, decodeBody[LocateRequest]))
	r.Get("/snippet", serve(eps.Snippet, func(r *http.Request) (any, error) {
		q := r.URL.Query()
		return &SnippetRequest{XPath: q.Get("xpath"), Format: q.Get("format")}, nil
	}))

	r.Get("/document", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := e.Render(w); err != nil {
			shield.GetLogger(r.Context()).Warn("inspector: render document", "error", err)
		}
	})

	if hub != nil {
		e.ServeCommands(hub)
		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			hub.ServeHTTP(w, r.WithContext(kit.WithTransport(r.Context(), "ws")))
		})
	}
	for _, mount := range extra {
		mount(r)
	}
	return r
}

func serve(ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, 400, err)
			return
		}
		resp, err := ep(r.Context(), req)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, 200, resp)
	}
}

func noRequest(*http.Request) (any, error) { return &struct{}{}, nil }

func decodeBody[T any](r *http.Request) (any, error) {
	v := new(T)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return v, nil
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	var aerr *ActivationError
	var serr *SynthesisError
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrUnknownEvent),
		errors.Is(err, snippet.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrTargetNotFound), errors.Is(err, selector.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &aerr):
		return http.StatusConflict
	case errors.As(err, &serr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
