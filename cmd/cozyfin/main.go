package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cozyfin/internal/amqp"
	"cozyfin/internal/auth"
	"cozyfin/internal/config"
	"cozyfin/internal/core"
	apphttp "cozyfin/internal/http"
	"cozyfin/internal/log"
	"cozyfin/internal/services"
	"cozyfin/internal/store"
	"cozyfin/internal/store/memory"
	"cozyfin/internal/store/resilient"
	"cozyfin/internal/store/sqlite"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentApp})

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	rates, err := cfg.Rates()
	if err != nil {
		logger.Error("invalid exchange rates", log.FieldError, err.Error())
		os.Exit(1)
	}
	conv, err := core.NewConverter(rates)
	if err != nil {
		logger.Error("failed to build converter", log.FieldError, err.Error())
		os.Exit(1)
	}
	fallback, err := cfg.FallbackMonthly()
	if err != nil {
		logger.Error("invalid fallback monthly rate", log.FieldError, err.Error())
		os.Exit(1)
	}

	// Choose data backend (default: sqlite).
	var backing store.Store
	switch cfg.DataBackend {
	case "memory":
		backing = memory.New()
		logger.Info("initialized memory backend")
	default:
		st, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("failed to initialize sqlite store",
				log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		backing = st
		logger.Info("initialized sqlite backend", "path", cfg.SQLiteDBPath)
	}

	policy := resilient.Policy{
		MaxRetries: cfg.RemoteMaxRetries,
		BaseDelay:  cfg.RemoteRetryDelay,
		Timeout:    cfg.RemoteTimeout,
	}
	resilientStore, err := resilient.New(backing, policy, logger)
	if err != nil {
		logger.Error("failed to wrap store", log.FieldError, err.Error())
		os.Exit(1)
	}

	// AMQP is optional: without a broker the worker's periodic scan still
	// mirrors entries, just slower.
	var publisher services.SyncPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("amqp unavailable, continuing without queue",
				log.FieldError, err.Error())
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("amqp client initialized", "exchange", cfg.AMQPExchange)
		}
	}

	svc := services.NewLedgerService(resilientStore, conv, fallback, publisher, logger)
	defer func() {
		if err := resilientStore.Close(); err != nil {
			logger.Error("store close failed", log.FieldError, err.Error())
		}
	}()

	authSvc, err := auth.New(cfg.JWTSecret, cfg.PINHash, cfg.SessionTTL)
	if err != nil {
		logger.Error("failed to initialize auth", log.FieldError, err.Error())
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, authSvc, resilientStore, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("starting cozyfin server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
