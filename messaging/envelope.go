package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// Commands.
const (
	CmdAutoGrade   = "AUTO_GRADE"
	CmdAutoComment = "AUTO_COMMENT"
	CmdAIComment   = "AI_COMMENT"
	CmdAIGenerate  = "AI_GENERATE"
)

// Status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// AutoGrade asks the page session for a grading pass.
type AutoGrade struct {
	Rating int  `json:"rating"`
	Force  bool `json:"force,omitempty"`
}

// AutoComment asks the page session for a fill pass.
type AutoComment struct {
	Comment  string `json:"comment"`
	Force    bool   `json:"force,omitempty"`
	AutoSend bool   `json:"autoSend,omitempty"`
}

// AIComment asks the page session for a generate-then-fill flow.
type AIComment struct {
	AutoSend bool `json:"autoSend,omitempty"`
}

// AIGenerate asks the background for generated text.
type AIGenerate struct {
	Input           string  `json:"input"`
	Mode            string  `json:"mode,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// Generation modes.
const (
	ModeComment = "comment"
	ModeReply   = "reply"
)

// Response answers page commands.
type Response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// OK is a successful Response carrying result, which may be nil.
func OK(result any) Response {
	resp := Response{Status: StatusOK}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			resp.Result = b
		}
	}
	return resp
}

// Fail is an error Response.
func Fail(code string, err error) Response {
	return Response{Status: StatusError, Code: code, Error: err.Error()}
}

// GenerateResult answers AI_GENERATE.
type GenerateResult struct {
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Model  string `json:"model,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Typed adapts a typed function to a Handler. An empty payload decodes to
// the zero request.
func Typed[Req, Resp any](fn func(ctx context.Context, req Req) (Resp, error)) Handler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, fmt.Errorf("messaging: decode request: %w", err)
			}
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}

// Invoke calls a command with a typed request and decodes the response.
func Invoke[Req, Resp any](ctx context.Context, r *Router, command string, req Req) (Resp, error) {
	var out Resp
	payload, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("messaging: encode %s: %w", command, err)
	}
	raw, err := r.Call(ctx, command, payload)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("messaging: decode %s: %w", command, err)
	}
	return out, nil
}
