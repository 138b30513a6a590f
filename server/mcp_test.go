package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/settings"
)

var testMCPImpl = &mcp.Implementation{Name: "chamdiem-test", Version: "0.1.0"}

func mcpSession(t *testing.T, f *fixture) *mcp.ClientSession {
	t.Helper()
	s := New(f.router, f.store, f.hub, slog.Default())
	srv := mcp.NewServer(testMCPImpl, nil)
	s.RegisterMCP(srv)

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
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): no content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_ListTools(t *testing.T) {
	session := mcpSession(t, newFixture(t, true))
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"chamdiem_grade": true, "chamdiem_comment": true, "chamdiem_settings": true}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	for name := range want {
		t.Errorf("missing tool %s", name)
	}
}

func TestMCP_GradeUsesDefaultRating(t *testing.T) {
	f := newFixture(t, true)
	session := mcpSession(t, f)

	text, isErr := mcpCall(t, session, "chamdiem_grade", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	if got := f.graded(); got.Rating != settings.DefaultRating || !got.Force {
		t.Errorf("forwarded %+v", got)
	}
	var resp messaging.Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil || resp.Status != messaging.StatusOK {
		t.Errorf("result %s", text)
	}
}

func TestMCP_CommentWithText(t *testing.T) {
	f := newFixture(t, true)
	session := mcpSession(t, f)

	_, isErr := mcpCall(t, session, "chamdiem_comment", map[string]any{"comment": "Tốt", "force": true})
	if isErr {
		t.Fatal("tool error")
	}
	if got := f.commented(); got.Comment != "Tốt" || !got.Force {
		t.Errorf("forwarded %+v", got)
	}
}

func TestMCP_CommentWithoutTextGenerates(t *testing.T) {
	session := mcpSession(t, newFixture(t, true))
	text, isErr := mcpCall(t, session, "chamdiem_comment", map[string]any{})
	if !isErr || text != "quota: quota exceeded" {
		t.Errorf("got %q error=%v", text, isErr)
	}
}

func TestMCP_NoSession(t *testing.T) {
	session := mcpSession(t, newFixture(t, false))
	if _, isErr := mcpCall(t, session, "chamdiem_grade", map[string]any{"rating": 3}); !isErr {
		t.Error("expected tool error without a page session")
	}
}

func TestMCP_Settings(t *testing.T) {
	session := mcpSession(t, newFixture(t, false))

	text, isErr := mcpCall(t, session, "chamdiem_settings", map[string]any{"defaultRating": 2, "model": "gemini-2.5-flash"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var rec settings.Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.DefaultRating != 2 || rec.Model != "gemini-2.5-flash" {
		t.Errorf("record %+v", rec)
	}

	// No arguments reads without changing anything.
	text, _ = mcpCall(t, session, "chamdiem_settings", map[string]any{})
	if err := json.Unmarshal([]byte(text), &rec); err != nil || rec.DefaultRating != 2 {
		t.Errorf("read %s", text)
	}

	if _, isErr := mcpCall(t, session, "chamdiem_settings", map[string]any{"defaultRating": 7}); !isErr {
		t.Error("invalid rating accepted")
	}
}
