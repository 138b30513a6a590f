package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"time"
)

// Middleware wraps the handler a command resolved to. It sees the command
// name, so one chain can treat page commands and generation differently.
type Middleware func(command string, next Handler) Handler

// Chain composes middlewares; the first one runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(command string, next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](command, next)
		}
		return next
	}
}

// Logging logs each call. A call that returns an error envelope is logged
// at warn with its code: page commands report failures that way and never
// as Go errors.
func Logging(logger *slog.Logger) Middleware {
	return func(command string, next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			out, err := next(ctx, payload)
			ms := time.Since(start).Milliseconds()
			switch {
			case err != nil:
				logger.ErrorContext(ctx, "messaging: call failed", "command", command, "duration_ms", ms, "error", err)
			case envelopeStatus(out) == StatusError:
				var resp Response
				json.Unmarshal(out, &resp)
				logger.WarnContext(ctx, "messaging: command refused",
					"command", command, "duration_ms", ms, "code", resp.Code, "error", resp.Error)
			default:
				logger.DebugContext(ctx, "messaging: call ok", "command", command, "duration_ms", ms, "bytes", len(out))
			}
			return out, err
		}
	}
}

// envelopeStatus reads the status of a Response body, "" for anything else.
func envelopeStatus(out []byte) string {
	var head struct {
		Status string `json:"status"`
	}
	if len(out) == 0 || json.Unmarshal(out, &head) != nil {
		return ""
	}
	return head.Status
}

// Timeout bounds calls to d, or to the command's own entry in perCommand.
// A zero bound leaves the call unbounded.
func Timeout(d time.Duration, perCommand map[string]time.Duration) Middleware {
	return func(command string, next Handler) Handler {
		limit := d
		if v, ok := perCommand[command]; ok {
			limit = v
		}
		if limit <= 0 {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, limit)
			defer cancel()
			return next(ctx, payload)
		}
	}
}

// Recovery turns a handler panic into *ErrPanic naming the command.
func Recovery(logger *slog.Logger) Middleware {
	return func(command string, next Handler) Handler {
		return func(ctx context.Context, payload []byte) (out []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "messaging: handler panicked",
						"command", command, "panic", r, "stack", string(debug.Stack()))
					out, err = nil, &ErrPanic{Command: command, Value: r}
				}
			}()
			return next(ctx, payload)
		}
	}
}
