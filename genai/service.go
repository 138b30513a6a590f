package genai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/chamdiem/compose"
	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/settings"
)

// SettingsSource resolves the user's generation settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.Record, error)
	APIKey(ctx context.Context) (string, error)
}

// Service answers AI_GENERATE with the stored API key, model and prompt.
type Service struct {
	client   *Client
	settings SettingsSource
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(client *Client, src SettingsSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, settings: src, logger: logger}
}

// Generate never returns an error: failures travel in the envelope.
func (s *Service) Generate(ctx context.Context, req messaging.AIGenerate) (messaging.GenerateResult, error) {
	fail := func(err error) (messaging.GenerateResult, error) {
		code := CodeOf(err)
		s.logger.Warn("genai: generation failed", "code", code, "error", err)
		return messaging.GenerateResult{Status: messaging.StatusError, Error: err.Error(), Code: code}, nil
	}

	rec, err := s.settings.Get(ctx)
	if err != nil {
		return fail(err)
	}
	key, err := s.settings.APIKey(ctx)
	if err != nil {
		return fail(err)
	}
	if req.Input == "" {
		return fail(&Error{Code: CodeEmpty, Message: "empty input"})
	}

	res, err := s.client.Generate(ctx, Request{
		APIKey:          key,
		Model:           rec.Model,
		Input:           compose.Apply(rec.SystemPrompt, req.Input),
		MaxOutputTokens: req.MaxOutputTokens,
		Temperature:     req.Temperature,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("genai: caller went away")
		}
		return fail(err)
	}
	return messaging.GenerateResult{Status: messaging.StatusOK, Text: res.Text, Model: res.Model}, nil
}

// Handler exposes the service as the AI_GENERATE messaging handler.
func (s *Service) Handler() messaging.Handler {
	return messaging.Typed(s.Generate)
}
