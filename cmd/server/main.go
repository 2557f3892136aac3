package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dafny-verifier-bridge/internal/api"
	"dafny-verifier-bridge/internal/config"
	"dafny-verifier-bridge/internal/monitor"
	"dafny-verifier-bridge/internal/storage"
	"dafny-verifier-bridge/internal/verifier"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	if bin := os.Getenv("DAFNY_BIN"); bin != "" {
		log.Info().Str("bin", bin).Msg("using verifier binary from environment")
		cfg.Verifier.Bin = bin
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	metrics := monitor.NewMetrics()

	// Initialize verifier backend (local subprocess or remote service)
	backend, err := verifier.NewBackend(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create verifier backend")
	}

	cache := verifier.NewCache(cfg.Cache.Capacity)
	svc := verifier.NewService(backend, cache, metrics, cfg.Verifier)

	// Initialize database (optional — runs without it for development)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, run history disabled")
		} else {
			defer db.Close()
		}
	}

	// Initialize history writer (buffered, reliable logging)
	var history *storage.HistoryWriter
	if db != nil {
		history = storage.NewHistoryWriter(db, 10000)
		history.Start()
		defer history.Flush(10 * time.Second)
	}

	// Create and start HTTP server
	server := api.NewServer(cfg, svc, backend, db, history, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		if err := svc.Close(); err != nil {
			log.Error().Err(err).Msg("verifier service close error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Str("verifier_bin", cfg.Verifier.Bin).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
