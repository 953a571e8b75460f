package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/elemscope/idgen"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	chained := Chain(mw("a"), mw("b"), mw("c"))(base)
	resp, err := chained(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}

	expected := []string{"a_before", "b_before", "c_before", "endpoint", "c_after", "b_after", "a_after"}
	if len(order) != len(expected) {
		t.Fatalf("order length: got %d, want %d", len(order), len(expected))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("order[%d]: got %q, want %q", i, order[i], v)
		}
	}
}

func TestChain_ErrorPropagation(t *testing.T) {
	errFail := errors.New("fail")
	base := func(_ context.Context, _ any) (any, error) {
		return nil, errFail
	}

	noop := func(next Endpoint) Endpoint { return next }
	chained := Chain(noop)(base)

	_, err := chained(context.Background(), nil)
	if !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestWithRequestIDs(t *testing.T) {
	var got []string
	base := func(ctx context.Context, _ any) (any, error) {
		got = append(got, GetRequestID(ctx))
		return nil, nil
	}
	ep := WithRequestIDs(idgen.Prefixed("req_", idgen.Sequential()))(base)

	ep(context.Background(), nil)
	ep(WithRequestID(context.Background(), "req_fixed"), nil)
	ep(context.Background(), nil)

	want := []string{"req_1", "req_fixed", "req_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ok := Logging(logger, "status")(func(context.Context, any) (any, error) { return 1, nil })
	fail := Logging(logger, "locate")(func(context.Context, any) (any, error) { return nil, errors.New("boom") })

	ctx := WithTransport(context.Background(), "mcp")
	if _, err := ok(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := fail(ctx, nil); err == nil {
		t.Fatal("expected error")
	}

	out := buf.String()
	for _, want := range []string{"op=status", "transport=mcp", "op=locate", "error=boom", "level=WARN"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestContext_Transport_Default(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
}

func TestContext_Transport_Set(t *testing.T) {
	ctx := WithTransport(context.Background(), "ws")
	if v := GetTransport(ctx); v != "ws" {
		t.Fatalf("transport: got %q", v)
	}
}

func TestContext_EmptyDefaults(t *testing.T) {
	ctx := context.Background()
	if v := GetRequestID(ctx); v != "" {
		t.Fatalf("request_id default: got %q", v)
	}
	if v := GetRemoteAddr(ctx); v != "" {
		t.Fatalf("remote_addr default: got %q", v)
	}
	ctx = WithRemoteAddr(ctx, "127.0.0.1:9")
	if v := GetRemoteAddr(ctx); v != "127.0.0.1:9" {
		t.Fatalf("remote_addr: got %q", v)
	}
}
