package server

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
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/notice"
	"github.com/hazyhaar/chamdiem/settings"
)

type fixture struct {
	router *messaging.Router
	store  *settings.Store
	hub    *notice.Hub
	srv    *httptest.Server

	mu          sync.Mutex
	lastGrade   messaging.AutoGrade
	lastComment messaging.AutoComment
}

func newFixture(t *testing.T, withSession bool) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := settings.Open(ctx, ":memory:", slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{router: messaging.New(), store: store, hub: notice.NewHub(slog.Default())}
	f.router.RegisterLocal(messaging.CmdAIGenerate, messaging.Typed(
		func(_ context.Context, req messaging.AIGenerate) (messaging.GenerateResult, error) {
			if req.Input == "" {
				return messaging.GenerateResult{Status: messaging.StatusError, Code: "empty_input", Error: "empty input"}, nil
			}
			return messaging.GenerateResult{Status: messaging.StatusOK, Text: "gen:" + req.Input, Model: "test"}, nil
		}))
	if withSession {
		f.router.RegisterLocal(messaging.CmdAutoGrade, messaging.Typed(
			func(_ context.Context, req messaging.AutoGrade) (messaging.Response, error) {
				f.mu.Lock()
				f.lastGrade = req
				f.mu.Unlock()
				return messaging.OK(map[string]int{"rating": req.Rating}), nil
			}))
		f.router.RegisterLocal(messaging.CmdAutoComment, messaging.Typed(
			func(_ context.Context, req messaging.AutoComment) (messaging.Response, error) {
				f.mu.Lock()
				f.lastComment = req
				f.mu.Unlock()
				return messaging.OK(map[string]string{"comment": req.Comment}), nil
			}))
		f.router.RegisterLocal(messaging.CmdAIComment, messaging.Typed(
			func(_ context.Context, req messaging.AIComment) (messaging.Response, error) {
				return messaging.Fail("quota", errors.New("quota exceeded")), nil
			}))
	}

	s := New(f.router, store, f.hub, slog.Default())
	f.srv = httptest.NewServer(s.Handler(nil))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, messaging.Response) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out messaging.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (f *fixture) graded() messaging.AutoGrade {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastGrade
}

func (f *fixture) commented() messaging.AutoComment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastComment
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestSettings_GetAndPut(t *testing.T) {
	f := newFixture(t, false)

	code, resp := f.do(t, http.MethodGet, "/api/settings", "")
	if code != http.StatusOK || resp.Status != messaging.StatusOK {
		t.Fatalf("get: %d %+v", code, resp)
	}
	var rec settings.Record
	if err := json.Unmarshal(resp.Result, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.DefaultRating != settings.MaxRating {
		t.Errorf("default rating %d", rec.DefaultRating)
	}

	code, resp = f.do(t, http.MethodPut, "/api/settings", `{"defaultRating":3,"apiKey":"sk-secret-value"}`)
	if code != http.StatusOK {
		t.Fatalf("put: %d %+v", code, resp)
	}
	if err := json.Unmarshal(resp.Result, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.DefaultRating != 3 || !rec.APIKeySet {
		t.Errorf("record %+v", rec)
	}
	if bytes.Contains(resp.Result, []byte("sk-secret-value")) {
		t.Error("api key returned in clear")
	}
}

func TestSettings_InvalidRating(t *testing.T) {
	f := newFixture(t, false)
	code, resp := f.do(t, http.MethodPut, "/api/settings", `{"defaultRating":9}`)
	if code != http.StatusBadRequest || resp.Code != "invalid_rating" {
		t.Errorf("got %d %+v", code, resp)
	}
}

func TestSettings_BadBody(t *testing.T) {
	f := newFixture(t, false)
	code, resp := f.do(t, http.MethodPut, "/api/settings", `{"defaultRating":`)
	if code != http.StatusBadRequest || resp.Code != "bad_request" {
		t.Errorf("got %d %+v", code, resp)
	}
}

func TestGrade_DefaultRating(t *testing.T) {
	f := newFixture(t, true)
	rating := 4
	if _, err := f.store.Update(context.Background(), settings.Patch{DefaultRating: &rating}); err != nil {
		t.Fatal(err)
	}

	code, resp := f.do(t, http.MethodPost, "/api/grade", "")
	if code != http.StatusOK || resp.Status != messaging.StatusOK {
		t.Fatalf("got %d %+v", code, resp)
	}
	if got := f.graded(); got.Rating != 4 || !got.Force {
		t.Errorf("got %+v, want stored default 4 forced", got)
	}

	f.do(t, http.MethodPost, "/api/grade", `{"rating":2,"force":false}`)
	if got := f.graded(); got.Rating != 2 || got.Force {
		t.Errorf("explicit request %+v", got)
	}
}

func TestComment_DefaultComment(t *testing.T) {
	f := newFixture(t, true)
	text := "Bài làm tốt"
	if _, err := f.store.Update(context.Background(), settings.Patch{DefaultComment: &text}); err != nil {
		t.Fatal(err)
	}
	code, _ := f.do(t, http.MethodPost, "/api/comment", `{"autoSend":true}`)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if got := f.commented(); got.Comment != text || !got.AutoSend || !got.Force {
		t.Errorf("forwarded %+v", got)
	}
}

func TestAIComment_FailurePassesThrough(t *testing.T) {
	f := newFixture(t, true)
	code, resp := f.do(t, http.MethodPost, "/api/ai-comment", "{}")
	if code != http.StatusOK || resp.Status != messaging.StatusError || resp.Code != "quota" {
		t.Errorf("got %d %+v", code, resp)
	}
}

func TestNoSession(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/api/grade", "/api/comment", "/api/ai-comment"} {
		code, resp := f.do(t, http.MethodPost, path, `{"rating":5,"comment":"x"}`)
		if code != http.StatusServiceUnavailable || resp.Code != "no_session" {
			t.Errorf("%s: got %d %+v", path, code, resp)
		}
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t, false)
	resp, err := http.Post(f.srv.URL+"/api/generate", "application/json", strings.NewReader(`{"input":"bài văn"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var res messaging.GenerateResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Status != messaging.StatusOK || res.Text != "gen:bài văn" {
		t.Errorf("got %+v", res)
	}
}

func TestMessages_RawPassthrough(t *testing.T) {
	f := newFixture(t, false)
	resp, err := http.Post(f.srv.URL+"/api/messages/AI_GENERATE", "application/json", strings.NewReader(`{"input":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"text":"gen:x"`) {
		t.Errorf("got %d %s", resp.StatusCode, body)
	}

	code, out := f.do(t, http.MethodPost, "/api/messages/NOPE", "{}")
	if code != http.StatusServiceUnavailable || out.Code != "no_session" {
		t.Errorf("unknown command: %d %+v", code, out)
	}
}

func TestNotices_Websocket(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/notices"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The subscription is registered after the handshake; keep notifying
	// until one arrives.
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				f.hub.Notify(dom.LevelInfo, "Đã điền nhận xét")
			}
		}
	}()

	var n notice.Notice
	if err := wsjson.Read(ctx, conn, &n); err != nil {
		t.Fatal(err)
	}
	if n.Message != "Đã điền nhận xét" || n.Level != dom.LevelInfo {
		t.Errorf("got %+v", n)
	}
}
