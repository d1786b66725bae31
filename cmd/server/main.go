package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/FlorentDgrs/Dvoting/internal/app"
	"github.com/FlorentDgrs/Dvoting/internal/config"
	"github.com/FlorentDgrs/Dvoting/internal/journal"
	httpTransport "github.com/FlorentDgrs/Dvoting/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var logger *slog.Logger
	logOpts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, logOpts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, logOpts))
	}

	slog.SetDefault(logger)

	logger.Info("starting election ledger server",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"admin", cfg.Admin().Hex(),
		"maxVoters", cfg.Election.MaxVoters,
	)

	// Create the ledger
	ledger := app.NewLedger(cfg.Admin(), cfg.Election.MaxVoters, logger)
	defer ledger.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Archive notifications when a journal is configured
	var wg sync.WaitGroup
	if cfg.Journal.DSN != "" {
		j, err := journal.Open(ctx, cfg.Journal.DSN, logger)
		if err != nil {
			logger.Error("journal unavailable", "error", err)
			os.Exit(1)
		}
		defer j.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := j.Run(ctx, ledger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("journal stopped", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := httpTransport.NewServer(cfg, ledger, logger)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	stop()
	wg.Wait()

	logger.Info("server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
