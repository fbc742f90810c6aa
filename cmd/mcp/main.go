package main

import (
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/credential-verifier/internal/adapters/mcp"
	"github.com/kirillkom/credential-verifier/internal/bootstrap"
	"github.com/kirillkom/credential-verifier/internal/config"
	"github.com/kirillkom/credential-verifier/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout is the MCP transport.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	bundle, err := bootstrap.NewVerifier(cfg, logger, nil)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer bundle.Close()

	if err := mcpadapter.NewServer(bundle.Verifier, version).ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
