package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/credential-verifier/internal/adapters/http"
	"github.com/kirillkom/credential-verifier/internal/bootstrap"
	"github.com/kirillkom/credential-verifier/internal/config"
	"github.com/kirillkom/credential-verifier/internal/observability/logging"
	"github.com/kirillkom/credential-verifier/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Observers{Verification: httpMetrics})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.QueueMode == bootstrap.QueueModeInline {
		go func() {
			if err := app.RunWorker(ctx); err != nil {
				logger.Error("inline_worker_failed", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Verifier:    app.Verifier.Verifier,
		Intake:      app.SubmitUC,
		Submissions: app.Repo,
		Metrics:     httpMetrics,
		OCREngine:   app.Verifier.OCREngine,
	}).Handler()
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("api_listen_failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "queue_mode", cfg.QueueMode)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
