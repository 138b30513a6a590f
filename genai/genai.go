// Package genai calls the Gemini generateContent REST endpoint.
//
// One request is one model call: there is no retry and no model fallback.
// Identical requests within the cache window are answered from memory.
package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Error codes.
const (
	CodeNoAPIKey = "no_api_key"
	CodeAuth     = "auth"
	CodeQuota    = "quota"
	CodeNotFound = "not_found"
	CodeTimeout  = "timeout"
	CodeUpstream = "upstream"
	CodeEmpty    = "empty"
)

// Error is a failed generation.
type Error struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("genai: %s (http %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("genai: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of a *Error, or CodeUpstream for anything else.
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeUpstream
}

// Config configures a Client.
type Config struct {
	// Endpoint is the API base URL. Default: https://generativelanguage.googleapis.com/v1beta
	Endpoint        string
	Model           string
	MaxOutputTokens int
	Temperature     float64
	// Timeout bounds one call. Default: 30s.
	Timeout time.Duration
	// CacheTTL keeps answers for identical requests. Default: 10m. Negative disables.
	CacheTTL time.Duration
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 512
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 10 * time.Minute
	}
}

// Request is one generation. Zero fields take the client defaults.
type Request struct {
	APIKey          string
	Model           string
	System          string
	Input           string
	MaxOutputTokens int
	Temperature     float64
}

// Result is the generated text.
type Result struct {
	Text   string
	Model  string
	Cached bool
}

// Client is a Gemini REST client. Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	cache  *cache.Cache
	logger *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c
}

// DefaultModel is the model used when a request names none.
func (c *Client) DefaultModel() string { return c.cfg.Model }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion   string `json:"modelVersion"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate performs one model call.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, &Error{Code: CodeNoAPIKey, Message: "no API key configured"}
	}
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	if req.MaxOutputTokens <= 0 {
		req.MaxOutputTokens = c.cfg.MaxOutputTokens
	}
	if req.Temperature == 0 {
		req.Temperature = c.cfg.Temperature
	}

	key := cacheKey(req)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			res := *v.(*Result)
			res.Cached = true
			c.logger.Debug("genai: cache hit", "model", req.Model)
			return &res, nil
		}
	}

	body := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: req.Input}}}},
		GenerationConfig: generationConfig{MaxOutputTokens: req.MaxOutputTokens, Temperature: req.Temperature},
	}
	if strings.TrimSpace(req.System) != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("genai: encode: %w", err)
	}

	u := strings.TrimRight(c.cfg.Endpoint, "/") + "/models/" + url.PathEscape(req.Model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("genai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, &Error{Code: CodeTimeout, Message: "request timed out", Err: err}
		}
		return nil, &Error{Code: CodeUpstream, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, &Error{Code: CodeTimeout, Message: "response timed out", Err: err}
		}
		return nil, &Error{Code: CodeUpstream, Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, raw)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, &Error{Code: CodeUpstream, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	text := gr.text()
	if text == "" {
		msg := "no text in response"
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			msg = "prompt blocked: " + gr.PromptFeedback.BlockReason
		}
		return nil, &Error{Code: CodeEmpty, Message: msg}
	}

	res := &Result{Text: text, Model: req.Model}
	if gr.ModelVersion != "" {
		res.Model = gr.ModelVersion
	}
	if c.cache != nil {
		c.cache.SetDefault(key, res)
	}
	c.logger.Info("genai: generated",
		"model", res.Model, "chars", len(text), "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (gr *generateResponse) text() string {
	for _, cand := range gr.Candidates {
		var sb strings.Builder
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if t := strings.TrimSpace(sb.String()); t != "" {
			return t
		}
	}
	return ""
}

func statusError(status int, raw []byte) *Error {
	var ae apiError
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}
	e := &Error{Status: status, Message: msg}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = CodeAuth
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "api key"):
		e.Code = CodeAuth
	case status == http.StatusTooManyRequests:
		e.Code = CodeQuota
	case status == http.StatusNotFound:
		e.Code = CodeNotFound
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		e.Code = CodeTimeout
	default:
		e.Code = CodeUpstream
	}
	return e
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func cacheKey(r Request) string {
	h := sha256.New()
	for _, s := range []string{r.Model, r.System, r.Input, strconv.Itoa(r.MaxOutputTokens),
		strconv.FormatFloat(r.Temperature, 'g', -1, 64)} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
