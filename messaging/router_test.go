package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRegisterLocal_and_Call(t *testing.T) {
	r := New()
	r.RegisterLocal("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})

	resp, err := r.Call(context.Background(), "echo", []byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp) != "hello" {
		t.Fatalf("got %q, want %q", resp, "hello")
	}
}

func TestCall_CommandNotFound(t *testing.T) {
	_, err := New().Call(context.Background(), "NOPE", nil)
	var nf *ErrCommandNotFound
	if !errors.As(err, &nf) || nf.Command != "NOPE" {
		t.Fatalf("expected ErrCommandNotFound, got %T: %v", err, err)
	}
}

func TestSetRoute_RemoteOverridesLocalThenBack(t *testing.T) {
	r := New()
	r.RegisterLocal("svc", func(context.Context, []byte) ([]byte, error) { return []byte("local"), nil })

	closed := 0
	r.RegisterTransport("fake", func(endpoint string, _ json.RawMessage) (Handler, func(), error) {
		return func(context.Context, []byte) ([]byte, error) { return []byte(endpoint), nil },
			func() { closed++ }, nil
	})

	if err := r.SetRoute(Route{Command: "svc", Strategy: "fake", Endpoint: "remote-a"}); err != nil {
		t.Fatal(err)
	}
	if resp, _ := r.Call(context.Background(), "svc", nil); string(resp) != "remote-a" {
		t.Fatalf("got %q", resp)
	}

	// Same route: handler kept.
	if err := r.SetRoute(Route{Command: "svc", Strategy: "fake", Endpoint: "remote-a"}); err != nil {
		t.Fatal(err)
	}
	if closed != 0 {
		t.Fatalf("unchanged route closed its handler")
	}

	if err := r.SetRoute(Route{Command: "svc", Strategy: "fake", Endpoint: "remote-b"}); err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("replaced route not closed: %d", closed)
	}

	if err := r.SetRoute(Route{Command: "svc", Strategy: "local"}); err != nil {
		t.Fatal(err)
	}
	if resp, _ := r.Call(context.Background(), "svc", nil); string(resp) != "local" {
		t.Fatalf("got %q", resp)
	}
	if closed != 2 {
		t.Fatalf("removed route not closed: %d", closed)
	}
}

func TestSetRoute_Noop(t *testing.T) {
	r := New()
	r.RegisterLocal("svc", func(context.Context, []byte) ([]byte, error) {
		t.Fatal("local handler called on a noop route")
		return nil, nil
	})
	if err := r.SetRoute(Route{Command: "svc", Strategy: "noop"}); err != nil {
		t.Fatal(err)
	}
	resp, err := r.Call(context.Background(), "svc", []byte("x"))
	if err != nil || resp != nil {
		t.Fatalf("noop: got %q, %v", resp, err)
	}
}

func TestSetRoute_NoFactory(t *testing.T) {
	err := New().SetRoute(Route{Command: "svc", Strategy: "quic", Endpoint: "x"})
	var nf *ErrNoFactory
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNoFactory, got %T: %v", err, err)
	}
}

func TestChain(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(command string, next Handler) Handler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				order = append(order, name+"-before-"+command)
				resp, err := next(ctx, payload)
				order = append(order, name+"-after")
				return resp, err
			}
		}
	}
	base := func(context.Context, []byte) ([]byte, error) {
		order = append(order, "handler")
		return nil, nil
	}

	Chain(mw("mw1"), mw("mw2"))(CmdAutoGrade, base)(context.Background(), nil)

	expected := []string{"mw1-before-AUTO_GRADE", "mw2-before-AUTO_GRADE", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("got %v, want %v", order, expected)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Fatalf("at index %d: got %q, want %q", i, order[i], v)
		}
	}
}

func TestRecoveryThroughRouter(t *testing.T) {
	r := New(WithMiddleware(Recovery(slog.Default())))
	r.RegisterLocal(CmdAutoGrade, func(context.Context, []byte) ([]byte, error) { panic("boom") })

	_, err := r.Call(context.Background(), CmdAutoGrade, nil)
	var ep *ErrPanic
	if !errors.As(err, &ep) || ep.Command != CmdAutoGrade {
		t.Fatalf("expected ErrPanic for %s, got %T: %v", CmdAutoGrade, err, err)
	}
}

func TestTimeout_PerCommand(t *testing.T) {
	r := New(WithMiddleware(Timeout(20*time.Millisecond, map[string]time.Duration{CmdAIComment: 0})))
	slow := func(ctx context.Context, _ []byte) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(60 * time.Millisecond):
			return []byte(`{"status":"ok"}`), nil
		}
	}
	r.RegisterLocal(CmdAutoGrade, slow)
	r.RegisterLocal(CmdAIComment, slow)

	if _, err := r.Call(context.Background(), CmdAutoGrade, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("bounded command: got %v", err)
	}
	if _, err := r.Call(context.Background(), CmdAIComment, nil); err != nil {
		t.Fatalf("unbounded command: got %v", err)
	}
}

func TestLogging_ErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(WithMiddleware(Logging(logger)))
	r.RegisterLocal(CmdAIComment, Typed(func(context.Context, AIComment) (Response, error) {
		return Fail("busy", errors.New("already running")), nil
	}))

	if _, err := r.Call(context.Background(), CmdAIComment, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "command=AI_COMMENT", "code=busy"} {
		if !strings.Contains(out, want) {
			t.Errorf("log lacks %q: %s", want, out)
		}
	}
}

func TestTypedAndInvoke(t *testing.T) {
	r := New()
	r.RegisterLocal(CmdAutoGrade, Typed(func(_ context.Context, req AutoGrade) (Response, error) {
		if req.Rating <= 0 {
			return Fail("invalid_rating", errors.New("rating must be positive")), nil
		}
		return OK(map[string]int{"graded": req.Rating}), nil
	}))

	resp, err := Invoke[AutoGrade, Response](context.Background(), r, CmdAutoGrade, AutoGrade{Rating: 4})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusOK || string(resp.Result) != `{"graded":4}` {
		t.Fatalf("got %+v", resp)
	}

	resp, err = Invoke[AutoGrade, Response](context.Background(), r, CmdAutoGrade, AutoGrade{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusError || resp.Code != "invalid_rating" {
		t.Fatalf("got %+v", resp)
	}
}

func TestHTTPFactory_PostsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Header.Get("X-Token") != "t" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(req.Body)
		w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	h, closeFn, err := HTTPFactory()(srv.URL, json.RawMessage(`{"timeout_ms": 2000, "headers": {"X-Token": "t"}}`))
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	resp, err := h(context.Background(), []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "echo:{}" {
		t.Fatalf("got %q", resp)
	}
}

func TestHTTPFactory_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	h, _, err := HTTPFactory()(srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h(context.Background(), nil); err == nil {
		t.Fatal("expected status error")
	}
}

func TestHTTPFactory_RejectsBadEndpoint(t *testing.T) {
	for _, ep := range []string{"ftp://example.com", "http://", "::bad"} {
		if _, _, err := HTTPFactory()(ep, nil); err == nil {
			t.Errorf("%q accepted", ep)
		}
	}
}

func TestCommands(t *testing.T) {
	r := New()
	r.RegisterLocal("B", func(context.Context, []byte) ([]byte, error) { return nil, nil })
	r.RegisterLocal("A", func(context.Context, []byte) ([]byte, error) { return nil, nil })
	got := r.Commands()
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("Commands: %v", got)
	}
}
