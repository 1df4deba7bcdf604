package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/script-kb-assistant/internal/adapters/mcp"
	"github.com/kirillkom/script-kb-assistant/internal/bootstrap"
	"github.com/kirillkom/script-kb-assistant/internal/config"
	"github.com/kirillkom/script-kb-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the MCP protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "mcp", Logger: logger})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(cfg.MCPServerName, version, mcpadapter.NewHandlers(app.Queries, app.Classifier))
	logger.Info("mcp_serving_stdio", "name", cfg.MCPServerName)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
