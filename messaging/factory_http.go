package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxHTTPResponseBody caps what is read from a remote endpoint (10 MiB).
const maxHTTPResponseBody int64 = 10 << 20

type httpConfig struct {
	TimeoutMs   int64             `json:"timeout_ms"`
	ContentType string            `json:"content_type"`
	Headers     map[string]string `json:"headers"`
}

// HTTPFactory creates Handlers that POST the payload to an http(s)
// endpoint. Per-route config: timeout_ms, content_type, headers.
//
//	router.RegisterTransport("http", messaging.HTTPFactory())
func HTTPFactory() TransportFactory {
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("messaging/http: parse endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, nil, fmt.Errorf("messaging/http: unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return nil, nil, fmt.Errorf("messaging/http: endpoint has no host")
		}

		var cfg httpConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, nil, fmt.Errorf("messaging/http: config: %w", err)
			}
		}
		timeout := 30 * time.Second
		if cfg.TimeoutMs > 0 {
			timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		contentType := "application/json"
		if cfg.ContentType != "" {
			contentType = cfg.ContentType
		}

		client := &http.Client{Timeout: timeout}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("messaging/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", contentType)
			for k, v := range cfg.Headers {
				req.Header.Set(k, v)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("messaging/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBody+1))
			if err != nil {
				return nil, fmt.Errorf("messaging/http: read response: %w", err)
			}
			if int64(len(body)) > maxHTTPResponseBody {
				return nil, fmt.Errorf("messaging/http: response exceeds %d bytes", maxHTTPResponseBody)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("messaging/http: status %d: %s", resp.StatusCode, body)
			}
			return body, nil
		}

		return handler, client.CloseIdleConnections, nil
	}
}
