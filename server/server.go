// Package server is the local control surface: the settings popup, the
// page commands, the AI_GENERATE endpoint used by remote sessions, a
// websocket stream of notices and MCP tools.
//
// Every JSON endpoint answers with the messaging envelope:
// {"status":"ok","result":...} or {"status":"error","error":...,"code":...}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/notice"
	"github.com/hazyhaar/chamdiem/settings"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// Server serves the HTTP API.
type Server struct {
	router   *messaging.Router
	settings *settings.Store
	hub      *notice.Hub
	logger   *slog.Logger
}

// New creates a Server. router carries the page commands and AI_GENERATE;
// hub may be nil when no notices are streamed.
func New(router *messaging.Router, store *settings.Store, hub *notice.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{router: router, settings: store, hub: hub, logger: logger}
}

// Handler returns the chi router. mcpHandler, when not nil, is mounted at
// /mcp.
func (s *Server) Handler(mcpHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.putSettings)

		r.Post("/grade", s.grade)
		r.Post("/comment", s.comment)
		r.Post("/ai-comment", s.aiComment)
		r.Post("/generate", s.generate)
		r.Post("/messages/{command}", s.message)

		r.Get("/notices", s.notices)
	})

	if mcpHandler != nil {
		r.Handle("/mcp", mcpHandler)
		r.Handle("/mcp/*", mcpHandler)
	}
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("server: request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	rec, err := s.settings.Get(r.Context())
	if err != nil {
		writeFail(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, messaging.OK(rec))
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var p settings.Patch
	if !decode(w, r, &p) {
		return
	}
	rec, err := s.settings.Update(r.Context(), p)
	switch {
	case errors.Is(err, settings.ErrInvalidRating):
		writeFail(w, http.StatusBadRequest, "invalid_rating", err)
		return
	case err != nil:
		writeFail(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, messaging.OK(rec))
}

// grade falls back to the stored default rating. Requests force unless they
// say otherwise.
func (s *Server) grade(w http.ResponseWriter, r *http.Request) {
	req := messaging.AutoGrade{Force: true}
	if !decode(w, r, &req) {
		return
	}
	if req.Rating == 0 {
		rec, err := s.settings.Get(r.Context())
		if err != nil {
			writeFail(w, http.StatusInternalServerError, "internal", err)
			return
		}
		req.Rating = rec.DefaultRating
	}
	s.forward(w, r, messaging.CmdAutoGrade, req)
}

// comment falls back to the stored default comment and forces like grade.
func (s *Server) comment(w http.ResponseWriter, r *http.Request) {
	req := messaging.AutoComment{Force: true}
	if !decode(w, r, &req) {
		return
	}
	if req.Comment == "" {
		rec, err := s.settings.Get(r.Context())
		if err != nil {
			writeFail(w, http.StatusInternalServerError, "internal", err)
			return
		}
		req.Comment = rec.DefaultComment
	}
	s.forward(w, r, messaging.CmdAutoComment, req)
}

func (s *Server) aiComment(w http.ResponseWriter, r *http.Request) {
	var req messaging.AIComment
	if !decode(w, r, &req) {
		return
	}
	s.forward(w, r, messaging.CmdAIComment, req)
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, command string, req any) {
	resp, err := messaging.Invoke[any, messaging.Response](r.Context(), s.router, command, req)
	if err != nil {
		s.callFailed(w, command, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req messaging.AIGenerate
	if !decode(w, r, &req) {
		return
	}
	res, err := messaging.Invoke[messaging.AIGenerate, messaging.GenerateResult](r.Context(), s.router, messaging.CmdAIGenerate, req)
	if err != nil {
		s.callFailed(w, messaging.CmdAIGenerate, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// message passes a raw payload to any registered command.
func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	command := chi.URLParam(r, "command")
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeFail(w, http.StatusRequestEntityTooLarge, "too_large", err)
		return
	}
	out, err := s.router.Call(r.Context(), command, payload)
	if err != nil {
		s.callFailed(w, command, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if len(out) == 0 {
		out = []byte(`{"status":"ok"}`)
	}
	w.Write(out)
}

func (s *Server) callFailed(w http.ResponseWriter, command string, err error) {
	var nf *messaging.ErrCommandNotFound
	switch {
	case errors.As(err, &nf):
		writeFail(w, http.StatusServiceUnavailable, "no_session", err)
	case errors.Is(err, context.DeadlineExceeded):
		writeFail(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		s.logger.Warn("server: command failed", "command", command, "error", err)
		writeFail(w, http.StatusBadGateway, "upstream", err)
	}
}

// decode reads an optional JSON body. An empty body leaves v unchanged.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeFail(w, http.StatusBadRequest, "bad_request", err)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeFail(w http.ResponseWriter, code int, errCode string, err error) {
	writeJSON(w, code, messaging.Fail(errCode, err))
}
