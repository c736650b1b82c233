package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cozyfin/internal/amqp"
	"cozyfin/internal/config"
	"cozyfin/internal/log"
	"cozyfin/internal/store/sheets"
	"cozyfin/internal/store/sqlite"
	"cozyfin/internal/worker"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentApp})
	logger.Info("starting cozyfin-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("mirror worker needs GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	st, err := sqlite.New(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to initialize sqlite store",
			log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mirror, err := sheets.New(ctx, sheets.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsFile: cfg.GoogleCredentialsFile,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
	})
	if err != nil {
		logger.Error("failed to initialize sheets client", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	// AMQP is optional: without a broker the periodic scan alone drives the
	// mirror.
	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("amqp unavailable, falling back to polling only",
				log.FieldError, err.Error())
		} else {
			defer amqpClient.Close()
			consumer = amqpClient
			logger.Info("amqp client initialized", "queue", cfg.AMQPQueue)
		}
	}

	w, err := worker.New(st, mirror, consumer, worker.Config{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	}, logger)
	if err != nil {
		logger.Error("failed to build worker", log.FieldError, err.Error())
		os.Exit(1)
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("worker stopped gracefully")
}
