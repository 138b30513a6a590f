// Command chamdiem grades and comments on a learning-platform page.
//
// Usage:
//
//	chamdiem -config chamdiem.yaml           # live session plus local API
//	chamdiem -url https://lms.example/grade  # live session with defaults
//	chamdiem -inspect saved.html             # report what the engines see
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hazyhaar/chamdiem/compose"
	"github.com/hazyhaar/chamdiem/controller"
	"github.com/hazyhaar/chamdiem/domwatch"
	"github.com/hazyhaar/chamdiem/genai"
	"github.com/hazyhaar/chamdiem/internal/config"
	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/notice"
	"github.com/hazyhaar/chamdiem/server"
	"github.com/hazyhaar/chamdiem/settings"
	"github.com/hazyhaar/chamdiem/vocab"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to chamdiem.yaml")
	pageURL := flag.String("url", "", "page to open (overrides page.url)")
	inspectPath := flag.String("inspect", "", "report on a saved HTML page and exit")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides log.level)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "chamdiem: %v\n", err)
			os.Exit(1)
		}
	}
	if *pageURL != "" {
		cfg.Page.URL = *pageURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	if *inspectPath != "" {
		if err := inspect(os.Stdout, cfg, *inspectPath, logger); err != nil {
			logger.Error("chamdiem: inspect", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("chamdiem: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(lc config.LogConfig) (*slog.Logger, func()) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	var out io.Writer = os.Stderr
	closeFn := func() {}
	if lc.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closeFn = func() { rotator.Close() }
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closeFn
}

func loadVocabulary(cfg *config.Config) (*vocab.Vocabulary, error) {
	if cfg.Vocabulary.Path == "" {
		return vocab.Default(), nil
	}
	return vocab.Load(cfg.Vocabulary.Path)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := settings.Open(ctx, cfg.Settings.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := loadVocabulary(cfg)
	if err != nil {
		return fmt.Errorf("vocabulary: %w", err)
	}

	// AI_GENERATE answers locally unless a route sends it to another
	// instance. AI_COMMENT, one generation plus the wait for a comment
	// field, is the longest command.
	callTimeout := cfg.GenAI.Timeout + 5*time.Second
	router := messaging.New(
		messaging.WithLogger(logger),
		messaging.WithMiddleware(
			messaging.Recovery(logger),
			messaging.Logging(logger),
			messaging.Timeout(callTimeout, map[string]time.Duration{
				messaging.CmdAIComment: callTimeout + cfg.Detection.WaitTimeout,
			}),
		),
	)
	defer router.Close()
	router.RegisterTransport("http", messaging.HTTPFactory())

	client := genai.New(genai.Config{
		Endpoint:        cfg.GenAI.Endpoint,
		Model:           cfg.GenAI.Model,
		MaxOutputTokens: cfg.GenAI.MaxOutputTokens,
		Temperature:     cfg.GenAI.Temperature,
		Timeout:         cfg.GenAI.Timeout,
		CacheTTL:        cfg.GenAI.CacheTTL,
	}, logger)
	router.RegisterLocal(messaging.CmdAIGenerate, genai.NewService(client, store, logger).Handler())

	routes, err := cfg.MessagingRoutes()
	if err != nil {
		return err
	}
	for _, rt := range routes {
		if err := router.SetRoute(rt); err != nil {
			return fmt.Errorf("route %s: %w", rt.Command, err)
		}
	}

	hub := notice.NewHub(logger)
	watcher, err := domwatch.New(cfg, hub, store, logger)
	if err != nil {
		return err
	}

	autoRating := 0
	if cfg.Detection.AutoGrade {
		rec, err := store.Get(ctx)
		if err != nil {
			return err
		}
		autoRating = rec.DefaultRating
	}
	ctl := controller.New(controller.Options{
		Config: controller.Config{
			PollInterval:    cfg.Detection.PollInterval,
			WaitTimeout:     cfg.Detection.WaitTimeout,
			MaxOutputTokens: cfg.GenAI.MaxOutputTokens,
			Temperature:     cfg.GenAI.Temperature,
			AutoRating:      autoRating,
		},
		Vocabulary: v,
		Document:   watcher.Document,
		Router:     router,
		Composer:   compose.New(cfg.Detection.ContextBudget),
		Notifier:   hub,
		Logger:     logger,
	})
	ctl.Register(router)

	srv := server.New(router, store, hub, logger)
	var mcpHandler http.Handler
	if cfg.Server.MCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "chamdiem", Version: version}, nil)
		srv.RegisterMCP(mcpSrv)
		mcpHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
	}
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(mcpHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := watcher.Start(ctx, ctl); err != nil {
		return err
	}
	defer watcher.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chamdiem: listening", "addr", cfg.Server.Addr, "mcp", cfg.Server.MCP)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	}

	logger.Info("chamdiem: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
