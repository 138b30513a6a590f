package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/settings"
)

// RegisterMCP registers the chamdiem tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerGradeTool(srv)
	s.registerCommentTool(srv)
	s.registerSettingsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func textResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

func decodeArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params.Arguments, v)
}

// pageResult turns a page command response into a tool result.
func pageResult(resp messaging.Response, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	if resp.Status != messaging.StatusOK {
		return errorResult(fmt.Errorf("%s: %s", resp.Code, resp.Error)), nil
	}
	return textResult(resp)
}

func (s *Server) registerGradeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chamdiem_grade",
		Description: "Grade the open page: select the given star rating in every rating group and press the grade button.",
		InputSchema: inputSchema(map[string]any{
			"rating": map[string]any{"type": "integer", "minimum": 1, "description": "Star rating (default: stored default rating)"},
			"force":  map[string]any{"type": "boolean", "description": "Press the grade button even if nothing changed (default true)"},
		}, nil),
	}
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := messaging.AutoGrade{Force: true}
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		if args.Rating == 0 {
			rec, err := s.settings.Get(ctx)
			if err != nil {
				return errorResult(err), nil
			}
			args.Rating = rec.DefaultRating
		}
		return pageResult(messaging.Invoke[messaging.AutoGrade, messaging.Response](ctx, s.router, messaging.CmdAutoGrade, args))
	})
}

func (s *Server) registerCommentTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chamdiem_comment",
		Description: "Write a comment into the open page's comment fields. Without a comment, the text is generated from the page.",
		InputSchema: inputSchema(map[string]any{
			"comment":  map[string]any{"type": "string", "description": "Comment text; empty generates one"},
			"force":    map[string]any{"type": "boolean", "description": "Overwrite fields that already hold text (default true)"},
			"autoSend": map[string]any{"type": "boolean", "description": "Press the send button after filling"},
		}, nil),
	}
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := messaging.AutoComment{Force: true}
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		if args.Comment == "" {
			return pageResult(messaging.Invoke[messaging.AIComment, messaging.Response](ctx, s.router,
				messaging.CmdAIComment, messaging.AIComment{AutoSend: args.AutoSend}))
		}
		return pageResult(messaging.Invoke[messaging.AutoComment, messaging.Response](ctx, s.router, messaging.CmdAutoComment, args))
	})
}

func (s *Server) registerSettingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chamdiem_settings",
		Description: "Read the settings, or update the given fields. The API key is never returned in clear.",
		InputSchema: inputSchema(map[string]any{
			"defaultRating":  map[string]any{"type": "integer", "minimum": settings.MinRating, "maximum": settings.MaxRating},
			"defaultComment": map[string]any{"type": "string"},
			"systemPrompt":   map[string]any{"type": "string", "description": "Prompt template; {{content}} marks the page content"},
			"model":          map[string]any{"type": "string"},
			"apiKey":         map[string]any{"type": "string", "description": "Empty string removes the key"},
		}, nil),
	}
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var p settings.Patch
		if err := decodeArgs(req, &p); err != nil {
			return errorResult(err), nil
		}
		var (
			rec settings.Record
			err error
		)
		if p == (settings.Patch{}) {
			rec, err = s.settings.Get(ctx)
		} else {
			rec, err = s.settings.Update(ctx, p)
		}
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(rec)
	})
}
