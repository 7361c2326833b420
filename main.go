package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	flag "github.com/spf13/pflag"

	"github.com/pilixiaohui/testnovel/internal/backend"
	"github.com/pilixiaohui/testnovel/internal/config"
	"github.com/pilixiaohui/testnovel/internal/server"
	"github.com/pilixiaohui/testnovel/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Server.Transport, "transport", cfg.Server.Transport, "Transport mode: stdio or http")
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP port (only used with --transport http)")
	flag.StringVar(&cfg.Storage.DataDir, "data-dir", cfg.Storage.DataDir, "Directory for the persisted working context")
	flag.StringVar(&cfg.Storage.Driver, "storage", cfg.Storage.Driver, "Context storage driver: sqlite or file")
	flag.StringVar(&cfg.Backend.BaseURL, "backend-url", cfg.Backend.BaseURL, "Base URL of the branch/version API")
	flag.DurationVar(&cfg.Backend.Timeout, "backend-timeout", cfg.Backend.Timeout, "Timeout of one backend request")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level: debug, info, warn or error")
	flag.Parse()

	// stdout belongs to the stdio transport
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	prefs, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DataDir)
	if err != nil {
		logger.Error("Failed to open context storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer prefs.Close()

	client := backend.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Build the MCP server with all tools registered
	srv, err := server.New(ctx, client, prefs, logger)
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		os.Exit(1)
	}

	switch cfg.Server.Transport {
	case "stdio":
		logger.Info("Story MCP server starting (stdio)", "backend", cfg.Backend.BaseURL)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case "http":
		addr := ":" + cfg.Server.Port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		httpSrv := &http.Server{Addr: addr, Handler: handler}
		go func() {
			<-ctx.Done()
			_ = httpSrv.Shutdown(context.Background())
		}()
		logger.Info("Story MCP server listening", "addr", addr, "backend", cfg.Backend.BaseURL)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("Unknown transport (use stdio or http)", "transport", cfg.Server.Transport)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
